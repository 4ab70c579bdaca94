/*
scheduler.go - Automated escalation sweep scheduler

PURPOSE:
  Periodically runs the escalation sweep so overdue cases climb levels
  without an operator pressing a button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick delegates to the escalation engine's Sweep
  - Sweep outcomes are recorded as audit rows by the engine itself

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(handler.Escalation, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - escalation/sweep.go: The sweep itself
  - handlers.go: RunSweep endpoint (manual trigger)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/recon-engine/escalation"
)

// SweepScheduler runs escalation sweeps on a timer.
type SweepScheduler struct {
	Engine   *escalation.Engine
	Interval time.Duration
	Enabled  bool
	Log      *logrus.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a scheduler with the default interval.
func NewSweepScheduler(engine *escalation.Engine, log *logrus.Logger) *SweepScheduler {
	if log == nil {
		log = logrus.New()
	}
	return &SweepScheduler{
		Engine:   engine,
		Interval: 1 * time.Hour,
		Enabled:  true,
		Log:      log,
		stop:     make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("sweep scheduler disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	s.Log.WithField("interval", s.Interval).Info("sweep scheduler started")
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
		close(s.stop)
		s.wg.Wait()
		s.Log.Info("sweep scheduler stopped")
	}
}

// RunNow triggers one sweep outside the timer, for admin use and tests.
func (s *SweepScheduler) RunNow() {
	s.sweep()
}

func (s *SweepScheduler) run() {
	defer s.wg.Done()

	// Sweep once on startup so a restart never delays overdue cases.
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *SweepScheduler) sweep() {
	run, err := s.Engine.Sweep(context.Background())
	if err != nil {
		s.Log.WithError(err).Error("scheduled sweep failed")
		return
	}
	s.Log.WithFields(logrus.Fields{
		"run":       run.ID,
		"examined":  run.Examined,
		"escalated": run.Escalated,
		"failed":    run.Failed,
	}).Info("scheduled sweep completed")
}
