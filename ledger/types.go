/*
Package ledger provides the core reconciliation ledger types and store
contracts.

PURPOSE:
  This package contains the primary record types of the reconciliation
  system (bank movements and expense records), the minor-unit money type,
  the error taxonomy, and the persistence interfaces. The allocation,
  advance, and escalation engines all operate through this package.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: an exact quantity in integer minor currency units
  - Movement: a single bank-reported transaction
  - Expense: a single recorded expense awaiting reconciliation
  - SplitGroup/SplitMember: a partial match between the two
  - Advance: an employee-funded expense pending reimbursement
  - Case: an open record of why something could not be matched

DESIGN PRINCIPLES:
  1. Exactness: amounts are int64 minor units; decimal only at the
     parse/format boundary. Completeness is exact equality, no tolerance.
  2. Closed enumerations: statuses, modes, and reason codes are constant
     sets with validation constructors, not free-form strings.
  3. Optimistic concurrency: every mutable record carries a Version;
     conditional writes detect lost updates.
  4. Auditability: split rows and case history are append-only.

SEE ALSO:
  - errors.go: Error taxonomy
  - store.go: Persistence interfaces
  - ledger.go: Delta-based idempotent mutation service
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Exact money in integer minor currency units
// =============================================================================

type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
)

// Exponent returns the number of minor-unit digits for the currency.
func (c Currency) Exponent() int32 {
	if c == CurrencyJPY {
		return 0
	}
	return 2
}

// Amount is a signed quantity in integer minor currency units (cents for
// EUR/USD). All arithmetic is exact; there is no floating point anywhere
// in the invariant paths.
type Amount struct {
	Units    int64
	Currency Currency
}

func NewAmount(units int64, currency Currency) Amount {
	return Amount{Units: units, Currency: currency}
}

// ParseAmount converts a display string ("500.00") to minor units.
// Rejects values with more fractional digits than the currency carries,
// rather than rounding: the caller must supply exact minor units.
func ParseAmount(s string, currency Currency) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	shifted := d.Shift(currency.Exponent())
	if !shifted.IsInteger() {
		return Amount{}, fmt.Errorf("amount %q has sub-minor-unit precision", s)
	}
	return Amount{Units: shifted.IntPart(), Currency: currency}, nil
}

// Decimal returns the display-scale decimal value (minor units shifted
// back by the currency exponent).
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(a.Units, -a.Currency.Exponent())
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(a.Currency.Exponent())
}

func (a Amount) Zero() Amount          { return Amount{Units: 0, Currency: a.Currency} }
func (a Amount) Add(b Amount) Amount   { return Amount{Units: a.Units + b.Units, Currency: a.Currency} }
func (a Amount) Sub(b Amount) Amount   { return Amount{Units: a.Units - b.Units, Currency: a.Currency} }
func (a Amount) Neg() Amount           { return Amount{Units: -a.Units, Currency: a.Currency} }
func (a Amount) IsZero() bool          { return a.Units == 0 }
func (a Amount) IsNegative() bool      { return a.Units < 0 }
func (a Amount) IsPositive() bool      { return a.Units > 0 }
func (a Amount) Equal(b Amount) bool   { return a.Units == b.Units && a.Currency == b.Currency }
func (a Amount) GreaterThan(b Amount) bool { return a.Units > b.Units }
func (a Amount) LessThan(b Amount) bool    { return a.Units < b.Units }

func (a Amount) Abs() Amount {
	if a.Units < 0 {
		return a.Neg()
	}
	return a
}

// SameCurrency reports whether both amounts are denominated alike.
// Arithmetic methods keep the receiver's currency; engines validate
// currency agreement before mixing amounts.
func (a Amount) SameCurrency(b Amount) bool { return a.Currency == b.Currency }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	MovementID  string
	ExpenseID   string
	GroupID     string
	AdvanceID   string
	CaseID      string
	RuleID      string
	EmployeeID  string
	OperationID string
)

// =============================================================================
// BANK MOVEMENT
// =============================================================================

type MovementStatus string

const (
	MovementPosted    MovementStatus = "posted"
	MovementCancelled MovementStatus = "cancelled" // cancellation is a status, never a delete
)

// ReconcileMode classifies how a record participates in reconciliation.
// ModeNonReconcilable applies to expenses only: an advance-flagged expense
// was never paid from a company account and is exempt from bank matching.
type ReconcileMode string

const (
	ModeSimple          ReconcileMode = "simple"
	ModeSplit           ReconcileMode = "split"
	ModePartial         ReconcileMode = "partial"
	ModeNonReconcilable ReconcileMode = "non_reconcilable"
)

// Movement is a single bank-reported transaction. Amount is signed:
// credits positive, debits negative. Allocated is the running total
// assigned to split groups, always within [0, |Amount|].
type Movement struct {
	ID        MovementID
	Company   string
	Amount    Amount
	Date      time.Time
	Status    MovementStatus
	Mode      ReconcileMode
	Allocated Amount
	// SplitGroup references the open group this movement belongs to, if any.
	SplitGroup GroupID
	Version    int64
	CreatedAt  time.Time
}

// Unallocated is the derived remainder: |Amount| - Allocated.
func (m Movement) Unallocated() Amount {
	return m.Amount.Abs().Sub(m.Allocated)
}

// =============================================================================
// EXPENSE RECORD
// =============================================================================

type ReimbursementStatus string

const (
	ReimburseNotRequired ReimbursementStatus = "not_required"
	ReimbursePending     ReimbursementStatus = "pending"
	ReimbursePartial     ReimbursementStatus = "partial"
	ReimburseCompleted   ReimbursementStatus = "completed"
)

// Expense is a single recorded expense. Reconciled is the running total
// matched against bank movements, always within [0, Amount].
type Expense struct {
	ID            ExpenseID
	Company       string
	Amount        Amount
	Date          time.Time
	Mode          ReconcileMode
	Reconciled    Amount
	IsAdvance     bool
	AdvanceRef    AdvanceID
	Reimbursement ReimbursementStatus
	SplitGroup    GroupID
	Version       int64
	CreatedAt     time.Time
}

// Pending is the derived remainder: Amount - Reconciled.
func (e Expense) Pending() Amount {
	return e.Amount.Sub(e.Reconciled)
}

// =============================================================================
// RECONCILIATION SPLIT
// =============================================================================

// SplitType names the shape of a split group after its expense side:
// one expense funded by many movements, or many expenses funded by one
// movement. Mixed-direction member lists are a hard validation error.
type SplitType string

const (
	SplitOneToMany SplitType = "one_to_many" // one expense, many movements
	SplitManyToOne SplitType = "many_to_one" // many expenses, one movement
)

type GroupStatus string

const (
	GroupOpen     GroupStatus = "open"
	GroupComplete GroupStatus = "complete"
	GroupRejected GroupStatus = "rejected"
)

// SplitGroup is one logical partial match. Invariant: the sum of member
// allocations never exceeds the target amount, and Complete is set exactly
// when the sum equals the target in minor units.
type SplitGroup struct {
	ID             GroupID
	Type           SplitType
	TargetExpense  ExpenseID  // set for one_to_many
	TargetMovement MovementID // set for many_to_one
	TargetAmount   Amount
	Allocated      Amount
	Status         GroupStatus
	Complete       bool
	// Revision counts member-set rewrites; it salts the operation ids of
	// each revision's deltas so re-applying an old revision is a no-op.
	Revision  int
	CreatedBy string
	CreatedAt time.Time
	Members   []SplitMember
}

// Remaining is the derived shortfall: TargetAmount - Allocated.
func (g SplitGroup) Remaining() Amount {
	return g.TargetAmount.Sub(g.Allocated)
}

// SplitMember is one (expense, movement) pairing inside a group.
// Immutable once the group is complete, except audit annotations.
type SplitMember struct {
	GroupID   GroupID
	Expense   ExpenseID
	Movement  MovementID
	Allocated Amount
	// Percent is an optional display hint (share of the target), never
	// used in invariant arithmetic.
	Percent   *decimal.Decimal
	Note      string
	CreatedAt time.Time
}

// =============================================================================
// EMPLOYEE ADVANCE
// =============================================================================

type AdvanceStatus string

const (
	AdvancePending   AdvanceStatus = "pending"
	AdvancePartial   AdvanceStatus = "partial"
	AdvanceCompleted AdvanceStatus = "completed"
	AdvanceCancelled AdvanceStatus = "cancelled" // administrative, terminal
)

type ReimbursementChannel string

const (
	ChannelTransfer ReimbursementChannel = "transfer"
	ChannelPayroll  ReimbursementChannel = "payroll"
	ChannelCash     ReimbursementChannel = "cash"
	ChannelPending  ReimbursementChannel = "pending"
)

// Advance records that an employee personally paid for a company expense.
// Linked 1:1 to its expense; completed advances are retained for audit.
type Advance struct {
	ID         AdvanceID
	Company    string
	Employee   EmployeeID
	Expense    ExpenseID
	Amount     Amount
	Reimbursed Amount
	Channel    ReimbursementChannel
	Status     AdvanceStatus
	// Movement links the reimbursing bank transaction once identified.
	Movement  MovementID
	Version   int64
	CreatedAt time.Time
}

// PendingAmount is the derived remainder: Amount - Reimbursed.
func (a Advance) PendingAmount() Amount {
	return a.Amount.Sub(a.Reimbursed)
}

// =============================================================================
// NON-RECONCILIATION CASE
// =============================================================================

type CaseStatus string

const (
	CasePending          CaseStatus = "pending"
	CaseInProgress       CaseStatus = "in_progress"
	CaseEscalated        CaseStatus = "escalated"
	CaseResolved         CaseStatus = "resolved"
	CaseDismissed        CaseStatus = "dismissed"
	CaseOnHold           CaseStatus = "on_hold"
	CaseRequiresApproval CaseStatus = "requires_approval"
)

// Open reports whether the status admits further transitions.
func (s CaseStatus) Open() bool {
	return s != CaseResolved && s != CaseDismissed
}

type ImpactTier string

const (
	ImpactLow      ImpactTier = "low"
	ImpactMedium   ImpactTier = "medium"
	ImpactHigh     ImpactTier = "high"
	ImpactCritical ImpactTier = "critical"
)

// ReasonCode identifies why a record could not be matched. The catalog is
// closed; unknown codes are rejected at the boundary.
type ReasonCode string

const (
	ReasonMissingReceipt     ReasonCode = "MISSING_RECEIPT"
	ReasonMissingVendor      ReasonCode = "MISSING_VENDOR"
	ReasonFormatMismatch     ReasonCode = "FORMAT_MISMATCH"
	ReasonAmountDiscrepancy  ReasonCode = "AMOUNT_DISCREPANCY"
	ReasonDateInconsistency  ReasonCode = "DATE_INCONSISTENCY"
	ReasonVendorMismatch     ReasonCode = "VENDOR_MISMATCH"
	ReasonDuplicateSuspected ReasonCode = "DUPLICATE_SUSPECTED"
	ReasonSystemError        ReasonCode = "SYSTEM_ERROR"
	ReasonManualReview       ReasonCode = "MANUAL_REVIEW_REQUIRED"
	ReasonExternalDependency ReasonCode = "EXTERNAL_DEPENDENCY"
)

type ReasonCategory string

const (
	CategoryMissingData        ReasonCategory = "missing_data"
	CategoryFormatMismatch     ReasonCategory = "format_mismatch"
	CategoryAmountDiscrepancy  ReasonCategory = "amount_discrepancy"
	CategoryDateInconsistency  ReasonCategory = "date_inconsistency"
	CategoryVendorMismatch     ReasonCategory = "vendor_mismatch"
	CategoryDuplicate          ReasonCategory = "duplicate_suspected"
	CategorySystemError        ReasonCategory = "system_error"
	CategoryManualReview       ReasonCategory = "manual_review"
	CategoryExternalDependency ReasonCategory = "external_dependency"
)

var reasonCatalog = map[ReasonCode]ReasonCategory{
	ReasonMissingReceipt:     CategoryMissingData,
	ReasonMissingVendor:      CategoryMissingData,
	ReasonFormatMismatch:     CategoryFormatMismatch,
	ReasonAmountDiscrepancy:  CategoryAmountDiscrepancy,
	ReasonDateInconsistency:  CategoryDateInconsistency,
	ReasonVendorMismatch:     CategoryVendorMismatch,
	ReasonDuplicateSuspected: CategoryDuplicate,
	ReasonSystemError:        CategorySystemError,
	ReasonManualReview:       CategoryManualReview,
	ReasonExternalDependency: CategoryExternalDependency,
}

// Category returns the reason's category, or "" for unknown codes.
func (r ReasonCode) Category() ReasonCategory {
	return reasonCatalog[r]
}

// KnownReason reports whether the code is part of the catalog.
func KnownReason(r ReasonCode) bool {
	_, ok := reasonCatalog[r]
	return ok
}

// CaseSubject is the record a case is about: exactly one of Expense or
// Movement is set.
type CaseSubject struct {
	Expense  ExpenseID
	Movement MovementID
}

func (s CaseSubject) Valid() bool {
	return (s.Expense != "") != (s.Movement != "")
}

func (s CaseSubject) String() string {
	if s.Expense != "" {
		return "expense:" + string(s.Expense)
	}
	return "movement:" + string(s.Movement)
}

// Case is an open record of why a specific expense or movement could not
// yet be matched. One case per (subject, reason) pair; a subject may have
// several simultaneous open cases for distinct reasons.
type Case struct {
	ID               CaseID
	Company          string
	Subject          CaseSubject
	Reason           ReasonCode
	Status           CaseStatus
	Level            int // 1-5
	NextEscalationAt time.Time
	Impact           ImpactTier
	Priority         int // 1-4
	Amount           Amount
	Note             string
	Version          int64
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

// HistoryEntry is one immutable record of a case status transition.
// The history log is append-only and never rewritten.
type HistoryEntry struct {
	CaseID CaseID
	From   CaseStatus
	To     CaseStatus
	Actor  string
	Note   string
	At     time.Time
}

// =============================================================================
// ESCALATION RULE
// =============================================================================

// Rule is an explicit, typed escalation rule. Rules are scoped by company
// and optionally filtered by reason code, category, or amount range; the
// first matching rule (in priority order) supplies the escalation delay.
type Rule struct {
	ID                  RuleID
	Company             string
	ReasonCodes         []ReasonCode
	Categories          []ReasonCategory
	MinAmount           *Amount
	MaxAmount           *Amount
	EscalateAfterDays   int
	Priority            int // lower evaluates first
	CreatedAt           time.Time
}

// DefaultEscalationDays applies when no rule matches a case.
const DefaultEscalationDays = 7

// =============================================================================
// SWEEP RUN - Audit record of one escalation sweep
// =============================================================================

type SweepRun struct {
	ID          string
	StartedAt   time.Time
	CompletedAt *time.Time
	Examined    int
	Escalated   int
	Failed      int
	Error       string
}
