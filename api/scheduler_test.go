/*
scheduler_test.go - Lifecycle tests for the sweep scheduler

Tests drive the scheduler over the in-memory store with a short
interval: start, a manual sweep, and a clean stop.
*/
package api

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recon-engine/escalation"
	"github.com/warp/recon-engine/ledger/store"
)

func newTestScheduler(t *testing.T) (*SweepScheduler, *store.Memory) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	mem := store.NewMemory()
	sched := NewSweepScheduler(escalation.NewEngine(mem, nil, log), log)
	sched.Interval = 50 * time.Millisecond
	return sched, mem
}

func TestSchedulerRunNowRecordsSweep(t *testing.T) {
	sched, mem := newTestScheduler(t)

	sched.RunNow()

	runs, err := mem.ListSweepRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 0, runs[0].Examined)
	assert.Empty(t, runs[0].Error)
}

func TestSchedulerStartStopDrains(t *testing.T) {
	sched, mem := newTestScheduler(t)

	sched.Start()

	// The startup sweep records a run without waiting for a tick.
	require.Eventually(t, func() bool {
		runs, err := mem.ListSweepRuns(context.Background())
		return err == nil && len(runs) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return, sweep goroutine leaked")
	}

	// A repeated Stop is a no-op.
	sched.Stop()
}

func TestSchedulerDisabledDoesNotStart(t *testing.T) {
	sched, mem := newTestScheduler(t)
	sched.Enabled = false

	sched.Start()
	sched.Stop()

	runs, err := mem.ListSweepRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}
