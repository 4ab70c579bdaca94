/*
sweep.go - Background escalation pass

PURPOSE:
  The sweep promotes every open case whose next escalation date has
  passed: level +1 (capped at 5), status escalated, a fresh date from
  the rules, one history entry, one notification request. Each case is
  processed in its own transaction so one failure never aborts the
  whole pass; failures are logged and counted in the sweep's audit row.

SAFETY:
  Safe to run concurrently with itself and with manual status changes.
  Cases are re-read inside their transaction; a case resolved or
  already advanced since the listing loses the version check and is
  skipped. A case not yet due is a no-op.
*/
package escalation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/warp/recon-engine/ledger"
)

// MaxLevel caps escalation; a case at level 5 keeps escalated status
// and a fresh date but climbs no further.
const MaxLevel = 5

// =============================================================================
// SWEEP
// =============================================================================

// Sweep runs one escalation pass over all due open cases and saves an
// audit row describing the run. The returned error covers only the
// pass itself (listing, audit persistence); per-case failures are
// isolated, logged, and reported in the run counters.
func (e *Engine) Sweep(ctx context.Context) (ledger.SweepRun, error) {
	now := e.Now()
	run := ledger.SweepRun{
		ID:        fmt.Sprintf("sweep-%d", now.UnixNano()),
		StartedAt: now,
	}

	due, err := e.Store.ListCases(ctx, ledger.CaseFilter{
		OpenOnly:  true,
		DueBefore: &now,
	})
	if err != nil {
		run.Error = err.Error()
		_ = e.Store.SaveSweepRun(ctx, run)
		return run, err
	}

	for _, c := range due {
		run.Examined++
		escalated, err := e.escalateOne(ctx, c.ID)
		if err != nil {
			if ledger.IsRetryable(err) {
				// Lost the version race to a manual change; the other
				// writer's state wins.
				e.Log.WithField("case", c.ID).Debug("sweep skipped case after concurrent update")
				continue
			}
			run.Failed++
			e.Log.WithFields(logrus.Fields{
				"case":  c.ID,
				"error": err.Error(),
			}).Error("sweep failed to escalate case")
			continue
		}
		if escalated {
			run.Escalated++
		}
	}

	done := e.Now()
	run.CompletedAt = &done
	if err := e.Store.SaveSweepRun(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// escalateOne advances a single case in its own transaction. Returns
// false without error when the case turns out not to be due or not to
// be in a sweepable status on the in-transaction read.
func (e *Engine) escalateOne(ctx context.Context, id ledger.CaseID) (bool, error) {
	escalated := false
	err := e.Store.WithTx(ctx, func(s ledger.Store) error {
		c, err := s.GetCase(ctx, id)
		if err != nil {
			return err
		}

		now := e.Now()
		if !sweepable(c.Status) || c.NextEscalationAt.After(now) {
			return nil
		}

		rules, err := s.ListRules(ctx, c.Company)
		if err != nil {
			return err
		}
		next, err := nextEscalation(rules, c, now)
		if err != nil {
			return err
		}

		from := c.Status
		expect := c.Version
		if c.Level < MaxLevel {
			c.Level++
		}
		c.Status = ledger.CaseEscalated
		c.NextEscalationAt = next
		if err := s.UpdateCase(ctx, c, expect); err != nil {
			return err
		}

		if err := s.AppendHistory(ctx, ledger.HistoryEntry{
			CaseID: id,
			From:   from,
			To:     ledger.CaseEscalated,
			Actor:  "system",
			Note:   fmt.Sprintf("escalated to level %d", c.Level),
			At:     now,
		}); err != nil {
			return err
		}

		e.Notifier.Enqueue(Notification{
			Recipient: "company:" + c.Company,
			Template:  "case_escalated",
			CaseID:    id,
			Payload: map[string]string{
				"reason":  string(c.Reason),
				"level":   fmt.Sprintf("%d", c.Level),
				"subject": c.Subject.String(),
				"amount":  c.Amount.String(),
			},
		})
		escalated = true
		return nil
	})
	return escalated, err
}

// sweepable statuses are promotable by time. Manual holds and terminal
// states are not.
func sweepable(s ledger.CaseStatus) bool {
	switch s {
	case ledger.CasePending, ledger.CaseInProgress, ledger.CaseEscalated:
		return true
	}
	return false
}
