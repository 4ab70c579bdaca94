/*
store.go - Persistence interfaces for the reconciliation ledger

PURPOSE:
  Defines the contract between the engines and the database. Two
  implementations exist: an in-memory store for engine tests and dev, and
  a SQLite store for production.

OPTIMISTIC CONCURRENCY:
  Every Update* method is conditional on the record's current version.
  A mismatch returns ErrConcurrencyConflict; the caller retries its whole
  operation from a fresh read rather than patching stale data.

IDEMPOTENCY:
  MarkOperation records a caller-supplied operation id; a second Mark of
  the same id returns ErrDuplicateOperation. The mutation service uses
  this to make delta application idempotent per operation id.

ATOMIC TRANSACTIONS:
  WithTx executes a function against a transactional store view. A split
  group spans several records; either every member allocation and the
  group row commit together, or none do. Partial application is never
  observable.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, snapshot rollback
  - store/sqlite/sqlite.go: SQLite, sql.Tx
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Persistence contract for all record types
// =============================================================================

// Store persists all reconciliation records. Create methods fail on
// duplicate ids; Update methods are conditional on expectVersion.
type Store interface {
	// Movements
	PutMovement(ctx context.Context, m Movement) error
	GetMovement(ctx context.Context, id MovementID) (Movement, error)
	ListMovements(ctx context.Context, company string) ([]Movement, error)
	UpdateMovement(ctx context.Context, m Movement, expectVersion int64) error

	// Expenses
	PutExpense(ctx context.Context, e Expense) error
	GetExpense(ctx context.Context, id ExpenseID) (Expense, error)
	ListExpenses(ctx context.Context, company string) ([]Expense, error)
	UpdateExpense(ctx context.Context, e Expense, expectVersion int64) error

	// Applied operations (idempotency keys for delta mutations)
	MarkOperation(ctx context.Context, op OperationID) error

	// Split groups
	PutGroup(ctx context.Context, g SplitGroup) error
	GetGroup(ctx context.Context, id GroupID) (SplitGroup, error)
	UpdateGroup(ctx context.Context, g SplitGroup) error
	ListGroups(ctx context.Context) ([]SplitGroup, error)

	// Advances
	PutAdvance(ctx context.Context, a Advance) error
	GetAdvance(ctx context.Context, id AdvanceID) (Advance, error)
	ListAdvances(ctx context.Context, company string) ([]Advance, error)
	UpdateAdvance(ctx context.Context, a Advance, expectVersion int64) error

	// Non-reconciliation cases
	PutCase(ctx context.Context, c Case) error
	GetCase(ctx context.Context, id CaseID) (Case, error)
	ListCases(ctx context.Context, f CaseFilter) ([]Case, error)
	UpdateCase(ctx context.Context, c Case, expectVersion int64) error
	// FindOpenCase returns the open case for (subject, reason), if any.
	FindOpenCase(ctx context.Context, subject CaseSubject, reason ReasonCode) (Case, bool, error)

	// Case history (append-only, never rewritten)
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	CaseHistory(ctx context.Context, id CaseID) ([]HistoryEntry, error)

	// Escalation rules
	PutRule(ctx context.Context, r Rule) error
	ListRules(ctx context.Context, company string) ([]Rule, error)
	DeleteRule(ctx context.Context, id RuleID) error

	// Sweep audit
	SaveSweepRun(ctx context.Context, run SweepRun) error
	ListSweepRuns(ctx context.Context) ([]SweepRun, error)
}

// CaseFilter narrows ListCases. Zero values mean "any".
type CaseFilter struct {
	Company   string
	Status    CaseStatus
	Reason    ReasonCode
	OpenOnly  bool
	DueBefore *time.Time
	Subject   *CaseSubject
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with multi-record transaction support. If fn returns
// an error the transaction rolls back entirely.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
