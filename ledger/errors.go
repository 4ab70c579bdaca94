/*
errors.go - Centralized error taxonomy for the reconciliation core

PURPOSE:
  All error types in one place. Engines wrap these with context; the API
  layer maps them to HTTP status codes via the classifier helpers.

ERROR CATEGORIES:
  1. Lookup errors     - referenced record absent
  2. Validation errors - business rule or invariant violations, never retried
  3. Concurrency       - optimistic version mismatch, always retryable
  4. Rule evaluation   - malformed escalation rule, logged and isolated

SEE ALSO:
  - ledger.go: Raises lookup/validation/concurrency errors
  - allocation, advance, escalation packages: wrap with domain context
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidState is returned when a mutation would violate a derived
	// field invariant (allocated > total, negative remainder) or the amount
	// sign convention.
	ErrInvalidState = errors.New("invalid state")

	// ErrAllocationOverflow is returned when member allocations would exceed
	// the split target amount.
	ErrAllocationOverflow = errors.New("allocation overflow")

	// ErrAlreadyAllocated is returned when a record already belongs to a
	// different open split group.
	ErrAlreadyAllocated = errors.New("record already in an open split group")

	// ErrInvalidSplitType is returned for mixed-direction split members or
	// an unknown split type.
	ErrInvalidSplitType = errors.New("invalid split type")

	// ErrConflictingReconciliationMode is returned when an expense cannot be
	// both awaiting a bank match and awaiting advance reimbursement.
	ErrConflictingReconciliationMode = errors.New("conflicting reconciliation mode")

	// ErrConcurrencyConflict is returned on an optimistic version mismatch.
	// Callers retry the whole operation with fresh data.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrCurrencyMismatch is returned when amounts of different currencies
	// would be combined.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrDuplicateOperation is returned by stores when an operation id has
	// already been applied. The mutation service absorbs it: re-applying the
	// same operation is a no-op.
	ErrDuplicateOperation = errors.New("duplicate operation id")

	// ErrRuleEvaluation is returned when an escalation rule is malformed.
	// The sweep logs it and leaves the case unescalated.
	ErrRuleEvaluation = errors.New("rule evaluation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StateError details a derived-field or sign-convention violation.
type StateError struct {
	Record string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state for %s: %s", e.Record, e.Reason)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// OverflowError details an allocation that would exceed its target.
type OverflowError struct {
	GroupID   GroupID
	Target    Amount
	Requested Amount
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("split %s: requested %s exceeds target %s",
		e.GroupID, e.Requested, e.Target)
}

func (e *OverflowError) Unwrap() error { return ErrAllocationOverflow }

// AllocatedError details a record already held by another open group.
type AllocatedError struct {
	Record string
	Group  GroupID
}

func (e *AllocatedError) Error() string {
	return fmt.Sprintf("%s already belongs to open split group %s", e.Record, e.Group)
}

func (e *AllocatedError) Unwrap() error { return ErrAlreadyAllocated }

// RuleError details a malformed escalation rule.
type RuleError struct {
	RuleID RuleID
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %s", e.RuleID, e.Reason)
}

func (e *RuleError) Unwrap() error { return ErrRuleEvaluation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation may succeed when retried with
// fresh data. Only concurrency conflicts qualify; validation errors never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrAllocationOverflow) ||
		errors.Is(err, ErrAlreadyAllocated) ||
		errors.Is(err, ErrInvalidSplitType) ||
		errors.Is(err, ErrConflictingReconciliationMode) ||
		errors.Is(err, ErrCurrencyMismatch)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
