/*
Package advance tracks employee-funded expenses pending company
reimbursement.

PURPOSE:
  When an employee pays a company expense out of pocket, the expense was
  never paid from a company account and must not be matched against bank
  movements. This package creates the advance record, flags the linked
  expense reconciliation-exempt in the same transaction, and drives the
  reimbursement lifecycle.

STATE MACHINE:
  pending ──▶ partial ──▶ completed
     │           │
     └───────────┴──▶ cancelled   (administrative, terminal)

  Transitions into partial/completed are driven exclusively by
  RecordReimbursement: status is completed exactly when the pending
  amount reaches zero, partial while reimbursed is positive but short.
  Completed advances are retained for audit, never deleted.

EXCLUSIVITY:
  An expense cannot be both awaiting a bank match and awaiting advance
  reimbursement. Creating an advance for an expense with reconciled
  funds, an open split group, or an existing advance fails with
  ConflictingReconciliationMode.

SEE ALSO:
  - ledger package: record types and movement deltas
  - allocation package: blocks advance-flagged expenses from splits
*/
package advance

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/recon-engine/ledger"
)

// =============================================================================
// LEDGER - Advance lifecycle service
// =============================================================================

type Ledger struct {
	Store ledger.TxStore

	// Now is overridable for tests.
	Now func() time.Time
}

func NewLedger(store ledger.TxStore) *Ledger {
	return &Ledger{Store: store, Now: time.Now}
}

// CreateInput describes one advance to open. Amount defaults to the
// linked expense's amount when zero.
type CreateInput struct {
	ID       ledger.AdvanceID
	Company  string
	Employee ledger.EmployeeID
	Expense  ledger.ExpenseID
	Amount   ledger.Amount
	Channel  ledger.ReimbursementChannel
}

// =============================================================================
// CREATE
// =============================================================================

// Create opens an advance and flags its linked expense as
// reconciliation-exempt in one atomic transaction. The expense must be
// untouched by reconciliation: any reconciled funds, open split group,
// or prior advance makes the two modes conflict.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (ledger.Advance, error) {
	var out ledger.Advance
	err := l.Store.WithTx(ctx, func(s ledger.Store) error {
		if in.ID == "" || in.Employee == "" || in.Expense == "" {
			return &ledger.StateError{Record: "advance", Reason: "missing id, employee, or expense"}
		}

		exp, err := s.GetExpense(ctx, in.Expense)
		if err != nil {
			return err
		}
		if exp.IsAdvance || exp.AdvanceRef != "" {
			return fmt.Errorf("expense %s already advance-funded: %w",
				exp.ID, ledger.ErrConflictingReconciliationMode)
		}
		if !exp.Reconciled.IsZero() || exp.SplitGroup != "" {
			return fmt.Errorf("expense %s is awaiting a bank match: %w",
				exp.ID, ledger.ErrConflictingReconciliationMode)
		}

		amount := in.Amount
		if amount.IsZero() {
			amount = exp.Amount
		}
		if !amount.IsPositive() {
			return &ledger.StateError{Record: "advance " + string(in.ID), Reason: "amount must be positive"}
		}
		if !amount.SameCurrency(exp.Amount) {
			return fmt.Errorf("advance %s: %w", in.ID, ledger.ErrCurrencyMismatch)
		}

		channel := in.Channel
		if channel == "" {
			channel = ledger.ChannelPending
		}

		adv := ledger.Advance{
			ID:         in.ID,
			Company:    in.Company,
			Employee:   in.Employee,
			Expense:    in.Expense,
			Amount:     amount,
			Reimbursed: amount.Zero(),
			Channel:    channel,
			Status:     ledger.AdvancePending,
			CreatedAt:  l.Now(),
		}
		if err := s.PutAdvance(ctx, adv); err != nil {
			return err
		}

		expect := exp.Version
		exp.IsAdvance = true
		exp.Mode = ledger.ModeNonReconcilable
		exp.AdvanceRef = adv.ID
		exp.Reimbursement = ledger.ReimbursePending
		if err := s.UpdateExpense(ctx, exp, expect); err != nil {
			return err
		}

		out = adv
		return nil
	})
	return out, err
}

// =============================================================================
// REIMBURSEMENT
// =============================================================================

// RecordReimbursement applies one repayment to an advance. The advance
// moves to partial while short and to completed exactly when the pending
// amount reaches zero; over-reimbursement is rejected, never clamped.
// When movementID identifies the reimbursing bank transaction, its
// allocated total absorbs the amount and the advance links to it. op,
// when non-empty, makes a retried recording a no-op.
func (l *Ledger) RecordReimbursement(ctx context.Context, id ledger.AdvanceID, amount ledger.Amount, movementID ledger.MovementID, op ledger.OperationID) (ledger.Advance, error) {
	var out ledger.Advance
	err := l.Store.WithTx(ctx, func(s ledger.Store) error {
		adv, err := s.GetAdvance(ctx, id)
		if err != nil {
			return err
		}

		if op != "" {
			if err := s.MarkOperation(ctx, op); err != nil {
				if err == ledger.ErrDuplicateOperation {
					out = adv
					return nil
				}
				return err
			}
		}

		if adv.Status == ledger.AdvanceCancelled || adv.Status == ledger.AdvanceCompleted {
			return &ledger.StateError{
				Record: "advance " + string(id),
				Reason: fmt.Sprintf("no reimbursement possible in status %s", adv.Status),
			}
		}
		if !amount.IsPositive() {
			return &ledger.StateError{Record: "advance " + string(id), Reason: "reimbursement must be positive"}
		}
		if !amount.SameCurrency(adv.Amount) {
			return fmt.Errorf("advance %s: %w", id, ledger.ErrCurrencyMismatch)
		}
		if amount.GreaterThan(adv.PendingAmount()) {
			return &ledger.StateError{
				Record: "advance " + string(id),
				Reason: fmt.Sprintf("reimbursement %s exceeds pending %s", amount, adv.PendingAmount()),
			}
		}

		if movementID != "" {
			if _, err := ledger.ApplyMovementDelta(ctx, s, movementID, amount, "", nil); err != nil {
				return err
			}
			adv.Movement = movementID
			if adv.Channel == ledger.ChannelPending {
				adv.Channel = ledger.ChannelTransfer
			}
		}

		expect := adv.Version
		adv.Reimbursed = adv.Reimbursed.Add(amount)
		switch {
		case adv.PendingAmount().IsZero():
			adv.Status = ledger.AdvanceCompleted
		default:
			adv.Status = ledger.AdvancePartial
		}
		if err := s.UpdateAdvance(ctx, adv, expect); err != nil {
			return err
		}
		adv.Version = expect + 1

		if err := l.syncExpense(ctx, s, adv); err != nil {
			return err
		}

		out = adv
		return nil
	})
	return out, err
}

// syncExpense mirrors the advance status onto the linked expense's
// reimbursement field.
func (l *Ledger) syncExpense(ctx context.Context, s ledger.Store, adv ledger.Advance) error {
	exp, err := s.GetExpense(ctx, adv.Expense)
	if err != nil {
		return err
	}
	expect := exp.Version
	switch adv.Status {
	case ledger.AdvanceCompleted:
		exp.Reimbursement = ledger.ReimburseCompleted
	case ledger.AdvancePartial:
		exp.Reimbursement = ledger.ReimbursePartial
	case ledger.AdvancePending:
		exp.Reimbursement = ledger.ReimbursePending
	case ledger.AdvanceCancelled:
		exp.Reimbursement = ledger.ReimburseNotRequired
	}
	return s.UpdateExpense(ctx, exp, expect)
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel administratively terminates a pending or partial advance and
// returns the linked expense to ordinary reconciliation. Recorded
// reimbursements stay on the row for audit; a completed advance cannot
// be cancelled.
func (l *Ledger) Cancel(ctx context.Context, id ledger.AdvanceID) (ledger.Advance, error) {
	var out ledger.Advance
	err := l.Store.WithTx(ctx, func(s ledger.Store) error {
		adv, err := s.GetAdvance(ctx, id)
		if err != nil {
			return err
		}
		if adv.Status != ledger.AdvancePending && adv.Status != ledger.AdvancePartial {
			return &ledger.StateError{
				Record: "advance " + string(id),
				Reason: fmt.Sprintf("cannot cancel in status %s", adv.Status),
			}
		}

		expect := adv.Version
		adv.Status = ledger.AdvanceCancelled
		if err := s.UpdateAdvance(ctx, adv, expect); err != nil {
			return err
		}
		adv.Version = expect + 1

		exp, err := s.GetExpense(ctx, adv.Expense)
		if err != nil {
			return err
		}
		expVersion := exp.Version
		exp.IsAdvance = false
		exp.Mode = ledger.ModeSimple
		exp.Reimbursement = ledger.ReimburseNotRequired
		if err := s.UpdateExpense(ctx, exp, expVersion); err != nil {
			return err
		}

		out = adv
		return nil
	})
	return out, err
}

// Advance returns one advance by id.
func (l *Ledger) Advance(ctx context.Context, id ledger.AdvanceID) (ledger.Advance, error) {
	return l.Store.GetAdvance(ctx, id)
}
