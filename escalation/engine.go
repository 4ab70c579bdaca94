/*
Package escalation advances unresolved non-reconciliation cases through
a time- and rule-driven workflow.

PURPOSE:
  When a movement or expense cannot be matched, a case records why,
  scoped to one (subject, reason) pair. Cases carry an escalation level
  and a next-escalation timestamp computed from company rules; a
  background sweep promotes overdue cases and emits notification
  requests.

STATUS TRANSITIONS:
  pending ──────────▶ in_progress          (work started)
  pending/in_progress/escalated ─▶ escalated   (time-driven, level +1)
  any open ─────────▶ resolved | dismissed (terminal, user-driven)
  any open ─────────▶ on_hold | requires_approval (manual, reversible)

  Every transition appends an immutable history entry: previous status,
  new status, actor, timestamp. The history log is never rewritten.

CONCURRENT SWEEPS:
  The sweep is idempotent and version-checked. Re-evaluating a case not
  yet due is a no-op; a case resolved between the sweep's read and
  write loses the version race and is left alone.

SEE ALSO:
  - rules.go: delay computation
  - sweep.go: the background promotion pass
  - notify.go: fire-and-forget notification queue
*/
package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/recon-engine/ledger"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store    ledger.TxStore
	Notifier Notifier
	Log      *logrus.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

func NewEngine(store ledger.TxStore, notifier Notifier, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	if notifier == nil {
		notifier = NewQueue(256, log)
	}
	return &Engine{Store: store, Notifier: notifier, Log: log, Now: time.Now}
}

// OpenInput describes one case to open.
type OpenInput struct {
	ID      ledger.CaseID
	Company string
	Subject ledger.CaseSubject
	Reason  ledger.ReasonCode
	Impact  ledger.ImpactTier
	// Priority is the resolution-priority tier, 1-4.
	Priority int
	Amount   ledger.Amount
	Note     string
	Actor    string
}

// =============================================================================
// OPEN
// =============================================================================

// OpenCase opens a case for (subject, reason). If an open case already
// exists for the pair it is returned unchanged: a subject never carries
// two open cases for the same reason. The next escalation date comes
// from the company's rules, or the 7-day default.
func (e *Engine) OpenCase(ctx context.Context, in OpenInput) (ledger.Case, error) {
	var out ledger.Case
	err := e.Store.WithTx(ctx, func(s ledger.Store) error {
		if !in.Subject.Valid() {
			return &ledger.StateError{Record: "case " + string(in.ID), Reason: "subject must name exactly one expense or movement"}
		}
		if !ledger.KnownReason(in.Reason) {
			return &ledger.StateError{Record: "case " + string(in.ID), Reason: fmt.Sprintf("unknown reason code %q", in.Reason)}
		}
		if in.Priority < 1 || in.Priority > 4 {
			return &ledger.StateError{Record: "case " + string(in.ID), Reason: "priority outside [1, 4]"}
		}

		existing, found, err := s.FindOpenCase(ctx, in.Subject, in.Reason)
		if err != nil {
			return err
		}
		if found {
			out = existing
			return nil
		}

		rules, err := s.ListRules(ctx, in.Company)
		if err != nil {
			return err
		}
		now := e.Now()
		c := ledger.Case{
			ID:        in.ID,
			Company:   in.Company,
			Subject:   in.Subject,
			Reason:    in.Reason,
			Status:    ledger.CasePending,
			Level:     1,
			Impact:    in.Impact,
			Priority:  in.Priority,
			Amount:    in.Amount,
			Note:      in.Note,
			CreatedAt: now,
		}
		if c.Impact == "" {
			c.Impact = ledger.ImpactLow
		}
		c.NextEscalationAt, err = nextEscalation(rules, c, now)
		if err != nil {
			return err
		}

		if err := s.PutCase(ctx, c); err != nil {
			return err
		}
		if err := s.AppendHistory(ctx, ledger.HistoryEntry{
			CaseID: c.ID,
			From:   "",
			To:     ledger.CasePending,
			Actor:  in.Actor,
			Note:   in.Note,
			At:     now,
		}); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// =============================================================================
// USER-DRIVEN TRANSITIONS
// =============================================================================

// Start moves a pending case into in_progress.
func (e *Engine) Start(ctx context.Context, id ledger.CaseID, actor string) (ledger.Case, error) {
	return e.transition(ctx, id, ledger.CaseInProgress, actor, "", func(c ledger.Case) error {
		if c.Status != ledger.CasePending {
			return &ledger.StateError{
				Record: "case " + string(id),
				Reason: fmt.Sprintf("cannot start from status %s", c.Status),
			}
		}
		return nil
	})
}

// Resolve closes a case as resolved. Terminal.
func (e *Engine) Resolve(ctx context.Context, id ledger.CaseID, actor, note string) (ledger.Case, error) {
	return e.close(ctx, id, ledger.CaseResolved, actor, note)
}

// Dismiss closes a case as dismissed. Terminal.
func (e *Engine) Dismiss(ctx context.Context, id ledger.CaseID, actor, note string) (ledger.Case, error) {
	return e.close(ctx, id, ledger.CaseDismissed, actor, note)
}

// Hold parks an open case. Held cases are skipped by the sweep and
// resumed manually.
func (e *Engine) Hold(ctx context.Context, id ledger.CaseID, actor, note string) (ledger.Case, error) {
	return e.transition(ctx, id, ledger.CaseOnHold, actor, note, requireOpen(id))
}

// RequireApproval parks an open case pending sign-off.
func (e *Engine) RequireApproval(ctx context.Context, id ledger.CaseID, actor, note string) (ledger.Case, error) {
	return e.transition(ctx, id, ledger.CaseRequiresApproval, actor, note, requireOpen(id))
}

// Resume returns a held case to in_progress.
func (e *Engine) Resume(ctx context.Context, id ledger.CaseID, actor string) (ledger.Case, error) {
	return e.transition(ctx, id, ledger.CaseInProgress, actor, "", func(c ledger.Case) error {
		if c.Status != ledger.CaseOnHold && c.Status != ledger.CaseRequiresApproval {
			return &ledger.StateError{
				Record: "case " + string(id),
				Reason: fmt.Sprintf("cannot resume from status %s", c.Status),
			}
		}
		return nil
	})
}

func requireOpen(id ledger.CaseID) func(ledger.Case) error {
	return func(c ledger.Case) error {
		if !c.Status.Open() {
			return &ledger.StateError{
				Record: "case " + string(id),
				Reason: fmt.Sprintf("case is closed (%s)", c.Status),
			}
		}
		return nil
	}
}

func (e *Engine) close(ctx context.Context, id ledger.CaseID, to ledger.CaseStatus, actor, note string) (ledger.Case, error) {
	return e.transition(ctx, id, to, actor, note, requireOpen(id))
}

// transition applies one status change under version check and appends
// the history entry in the same transaction.
func (e *Engine) transition(ctx context.Context, id ledger.CaseID, to ledger.CaseStatus, actor, note string, check func(ledger.Case) error) (ledger.Case, error) {
	var out ledger.Case
	err := e.Store.WithTx(ctx, func(s ledger.Store) error {
		c, err := s.GetCase(ctx, id)
		if err != nil {
			return err
		}
		if err := check(c); err != nil {
			return err
		}

		now := e.Now()
		from := c.Status
		expect := c.Version
		c.Status = to
		if to == ledger.CaseResolved || to == ledger.CaseDismissed {
			c.ResolvedAt = &now
		}
		if err := s.UpdateCase(ctx, c, expect); err != nil {
			return err
		}
		c.Version = expect + 1

		if err := s.AppendHistory(ctx, ledger.HistoryEntry{
			CaseID: id,
			From:   from,
			To:     to,
			Actor:  actor,
			Note:   note,
			At:     now,
		}); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// Case returns one case by id.
func (e *Engine) Case(ctx context.Context, id ledger.CaseID) (ledger.Case, error) {
	return e.Store.GetCase(ctx, id)
}

// History returns a case's append-only transition log.
func (e *Engine) History(ctx context.Context, id ledger.CaseID) ([]ledger.HistoryEntry, error) {
	return e.Store.CaseHistory(ctx, id)
}
