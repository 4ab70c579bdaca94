/*
ledger.go - Delta-based idempotent mutation service

PURPOSE:
  The Ledger is the only writer of allocation and reconciliation running
  totals. Every mutation is expressed as a signed delta against the
  current total, validated against the record's derived-field invariants,
  and applied under per-record optimistic concurrency.

CRITICAL INVARIANTS:
  1. 0 <= Movement.Allocated <= |Movement.Amount| at all times
  2. 0 <= Expense.Reconciled <= Expense.Amount at all times
  3. Applying the same delta twice with the same operation id is a no-op
  4. Derived fields (Unallocated, Pending) are recomputed, never stored

IDEMPOTENCY:
  The allocation engine may retry after a partial failure. Callers supply
  an operation id per delta; the store records applied ids, and a repeat
  application returns the current record unchanged.

CONCURRENCY:
  Updates are conditional on the version read. On ErrConcurrencyConflict
  the caller retries the whole operation from a fresh read - stale data is
  never patched.

SEE ALSO:
  - store.go: Store and TxStore contracts
  - allocation package: composes these deltas into atomic split groups
*/
package ledger

import (
	"context"
	"fmt"
)

// =============================================================================
// TRANSACTION-SCOPED DELTA HELPERS
// =============================================================================
// These operate against an already-open store view so that engines can
// compose several deltas plus their own rows into one atomic transaction.
// Invariant maintenance is an explicit, synchronous call - never a hidden
// side effect of a write.

// ApplyMovementDelta adjusts a movement's allocated running total by delta.
// group, when non-nil, sets (or clears, when it points at the empty id)
// the movement's open split-group reference in the same write.
//
// A positive delta allocates, a negative delta releases. The resulting
// total must stay within [0, |Amount|]; a movement with zero amount, or a
// cancelled movement, accepts no allocations.
func ApplyMovementDelta(ctx context.Context, s Store, id MovementID, delta Amount, op OperationID, group *GroupID) (Movement, error) {
	m, err := s.GetMovement(ctx, id)
	if err != nil {
		return Movement{}, err
	}

	if op != "" {
		if err := s.MarkOperation(ctx, op); err != nil {
			if err == ErrDuplicateOperation {
				// Already applied: idempotent no-op.
				return m, nil
			}
			return Movement{}, err
		}
	}

	if m.Status == MovementCancelled {
		return Movement{}, &StateError{Record: "movement " + string(id), Reason: "movement is cancelled"}
	}
	if !delta.SameCurrency(m.Amount) {
		return Movement{}, fmt.Errorf("movement %s: %w", id, ErrCurrencyMismatch)
	}
	if delta.IsZero() {
		return Movement{}, &StateError{Record: "movement " + string(id), Reason: "zero delta"}
	}
	if m.Amount.IsZero() {
		return Movement{}, &StateError{Record: "movement " + string(id), Reason: "zero-amount movement cannot receive allocations"}
	}

	next := m.Allocated.Add(delta)
	if next.IsNegative() {
		return Movement{}, &StateError{Record: "movement " + string(id), Reason: "release exceeds allocated total"}
	}
	if next.GreaterThan(m.Amount.Abs()) {
		return Movement{}, &StateError{Record: "movement " + string(id), Reason: "allocated total would exceed movement amount"}
	}

	expect := m.Version
	m.Allocated = next
	if group != nil {
		m.SplitGroup = *group
	}
	if err := s.UpdateMovement(ctx, m, expect); err != nil {
		return Movement{}, err
	}
	m.Version = expect + 1
	return m, nil
}

// ApplyExpenseDelta adjusts an expense's reconciled running total by delta,
// with the same contract as ApplyMovementDelta. An expense flagged
// non-reconcilable (employee advance) rejects positive deltas: it is never
// matched against company bank movements.
func ApplyExpenseDelta(ctx context.Context, s Store, id ExpenseID, delta Amount, op OperationID, group *GroupID) (Expense, error) {
	e, err := s.GetExpense(ctx, id)
	if err != nil {
		return Expense{}, err
	}

	if op != "" {
		if err := s.MarkOperation(ctx, op); err != nil {
			if err == ErrDuplicateOperation {
				return e, nil
			}
			return Expense{}, err
		}
	}

	if !delta.SameCurrency(e.Amount) {
		return Expense{}, fmt.Errorf("expense %s: %w", id, ErrCurrencyMismatch)
	}
	if delta.IsZero() {
		return Expense{}, &StateError{Record: "expense " + string(id), Reason: "zero delta"}
	}
	if !e.Amount.IsPositive() {
		return Expense{}, &StateError{Record: "expense " + string(id), Reason: "expense amount must be positive"}
	}
	if e.Mode == ModeNonReconcilable && delta.IsPositive() {
		return Expense{}, fmt.Errorf("expense %s awaits advance reimbursement: %w", id, ErrConflictingReconciliationMode)
	}

	next := e.Reconciled.Add(delta)
	if next.IsNegative() {
		return Expense{}, &StateError{Record: "expense " + string(id), Reason: "release exceeds reconciled total"}
	}
	if next.GreaterThan(e.Amount) {
		return Expense{}, &StateError{Record: "expense " + string(id), Reason: "reconciled total would exceed expense amount"}
	}

	expect := e.Version
	e.Reconciled = next
	if group != nil {
		e.SplitGroup = *group
	}
	if err := s.UpdateExpense(ctx, e, expect); err != nil {
		return Expense{}, err
	}
	e.Version = expect + 1
	return e, nil
}

// =============================================================================
// LEDGER - Public mutation contract
// =============================================================================

// Ledger exposes the store contract of the reconciliation core: record
// lookups plus delta-based, idempotent mutations of the running totals.
type Ledger struct {
	Store TxStore
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{Store: store}
}

func (l *Ledger) Movement(ctx context.Context, id MovementID) (Movement, error) {
	return l.Store.GetMovement(ctx, id)
}

func (l *Ledger) Expense(ctx context.Context, id ExpenseID) (Expense, error) {
	return l.Store.GetExpense(ctx, id)
}

// UpdateMovementAllocation applies a single allocation delta atomically.
func (l *Ledger) UpdateMovementAllocation(ctx context.Context, id MovementID, delta Amount, op OperationID) (Movement, error) {
	var out Movement
	err := l.Store.WithTx(ctx, func(s Store) error {
		var err error
		out, err = ApplyMovementDelta(ctx, s, id, delta, op, nil)
		return err
	})
	return out, err
}

// UpdateExpenseReconciliation applies a single reconciliation delta atomically.
func (l *Ledger) UpdateExpenseReconciliation(ctx context.Context, id ExpenseID, delta Amount, op OperationID) (Expense, error) {
	var out Expense
	err := l.Store.WithTx(ctx, func(s Store) error {
		var err error
		out, err = ApplyExpenseDelta(ctx, s, id, delta, op, nil)
		return err
	})
	return out, err
}

// Retry runs fn up to attempts times, retrying only on concurrency
// conflicts. Validation errors are returned immediately, never retried.
func Retry(attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}
