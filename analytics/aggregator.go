/*
Package analytics computes read-only rollups over the reconciliation
ledger.

PURPOSE:
  Reporting reads counts and rates by status, category, and escalation
  level, plus allocation completeness and resolution times. Rollups are
  recomputed from the authoritative ledger on each call, never mutated
  incrementally from write paths, so the summary cannot drift from the
  records it summarizes.

RATES:
  Rates are decimal quotients of exact minor-unit sums or counts,
  computed at 4 decimal places. The invariant arithmetic itself stays
  integer; decimals appear only in this reporting layer.
*/
package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recon-engine/ledger"
)

// =============================================================================
// REPORT
// =============================================================================

const ratePlaces = 4

// Report is one point-in-time rollup for a company. The struct is
// served as-is by the API, hence the json tags.
type Report struct {
	Company     string    `json:"company"`
	GeneratedAt time.Time `json:"generated_at"`

	Movements MovementStats `json:"movements"`
	Expenses  ExpenseStats  `json:"expenses"`
	Groups    GroupStats    `json:"groups"`
	Advances  AdvanceStats  `json:"advances"`
	Cases     CaseStats     `json:"cases"`
}

type MovementStats struct {
	Total          int `json:"total"`
	FullyAllocated int `json:"fully_allocated"`
	// AllocationRate is sum(allocated) / sum(|amount|).
	AllocationRate decimal.Decimal `json:"allocation_rate"`
}

type ExpenseStats struct {
	Total           int `json:"total"`
	FullyReconciled int `json:"fully_reconciled"`
	// ReconciliationRate is sum(reconciled) / sum(amount), advances excluded.
	ReconciliationRate decimal.Decimal `json:"reconciliation_rate"`
}

type GroupStats struct {
	Total    int `json:"total"`
	Complete int `json:"complete"`
	Open     int `json:"open"`
	Rejected int `json:"rejected"`
	// CompletionRate is complete / (complete + open).
	CompletionRate decimal.Decimal `json:"completion_rate"`
}

type AdvanceStats struct {
	Total    int                          `json:"total"`
	ByStatus map[ledger.AdvanceStatus]int `json:"by_status"`
	// OutstandingUnits is the summed pending amount in minor units for
	// pending and partial advances.
	OutstandingUnits int64 `json:"outstanding_units"`
}

type CaseStats struct {
	Total      int                          `json:"total"`
	Open       int                          `json:"open"`
	ByStatus   map[ledger.CaseStatus]int    `json:"by_status"`
	ByCategory map[ledger.ReasonCategory]int `json:"by_category"`
	ByLevel    map[int]int                  `json:"by_level"`
	// EscalationRate is the share of all cases that reached level >= 2.
	EscalationRate decimal.Decimal `json:"escalation_rate"`
	// MeanResolutionHours averages ResolvedAt - CreatedAt over closed cases.
	MeanResolutionHours decimal.Decimal `json:"mean_resolution_hours"`
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	Store ledger.Store

	// Now is overridable for tests.
	Now func() time.Time
}

func NewAggregator(store ledger.Store) *Aggregator {
	return &Aggregator{Store: store, Now: time.Now}
}

// Report computes a full rollup for one company from current ledger
// state. An empty company aggregates everything.
func (a *Aggregator) Report(ctx context.Context, company string) (Report, error) {
	rep := Report{Company: company, GeneratedAt: a.Now()}

	movements, err := a.Store.ListMovements(ctx, company)
	if err != nil {
		return Report{}, err
	}
	rep.Movements = movementStats(movements)

	expenses, err := a.Store.ListExpenses(ctx, company)
	if err != nil {
		return Report{}, err
	}
	rep.Expenses = expenseStats(expenses)

	groups, err := a.Store.ListGroups(ctx)
	if err != nil {
		return Report{}, err
	}
	rep.Groups = groupStats(groups)

	advances, err := a.Store.ListAdvances(ctx, company)
	if err != nil {
		return Report{}, err
	}
	rep.Advances = advanceStats(advances)

	cases, err := a.Store.ListCases(ctx, ledger.CaseFilter{Company: company})
	if err != nil {
		return Report{}, err
	}
	rep.Cases = caseStats(cases)

	return rep, nil
}

// =============================================================================
// PER-ENTITY ROLLUPS
// =============================================================================

func movementStats(movements []ledger.Movement) MovementStats {
	st := MovementStats{Total: len(movements)}
	var allocated, total int64
	for _, m := range movements {
		if m.Status == ledger.MovementCancelled {
			continue
		}
		allocated += m.Allocated.Units
		total += m.Amount.Abs().Units
		if !m.Amount.IsZero() && m.Unallocated().IsZero() {
			st.FullyAllocated++
		}
	}
	st.AllocationRate = rate(allocated, total)
	return st
}

func expenseStats(expenses []ledger.Expense) ExpenseStats {
	st := ExpenseStats{Total: len(expenses)}
	var reconciled, total int64
	for _, e := range expenses {
		if e.Mode == ledger.ModeNonReconcilable {
			continue
		}
		reconciled += e.Reconciled.Units
		total += e.Amount.Units
		if e.Pending().IsZero() {
			st.FullyReconciled++
		}
	}
	st.ReconciliationRate = rate(reconciled, total)
	return st
}

func groupStats(groups []ledger.SplitGroup) GroupStats {
	st := GroupStats{Total: len(groups)}
	for _, g := range groups {
		switch {
		case g.Status == ledger.GroupRejected:
			st.Rejected++
		case g.Complete:
			st.Complete++
		default:
			st.Open++
		}
	}
	st.CompletionRate = rate(int64(st.Complete), int64(st.Complete+st.Open))
	return st
}

func advanceStats(advances []ledger.Advance) AdvanceStats {
	st := AdvanceStats{
		Total:    len(advances),
		ByStatus: make(map[ledger.AdvanceStatus]int),
	}
	for _, a := range advances {
		st.ByStatus[a.Status]++
		if a.Status == ledger.AdvancePending || a.Status == ledger.AdvancePartial {
			st.OutstandingUnits += a.PendingAmount().Units
		}
	}
	return st
}

func caseStats(cases []ledger.Case) CaseStats {
	st := CaseStats{
		Total:      len(cases),
		ByStatus:   make(map[ledger.CaseStatus]int),
		ByCategory: make(map[ledger.ReasonCategory]int),
		ByLevel:    make(map[int]int),
	}
	escalated := 0
	var resolutionHours decimal.Decimal
	closed := 0
	for _, c := range cases {
		st.ByStatus[c.Status]++
		st.ByCategory[c.Reason.Category()]++
		st.ByLevel[c.Level]++
		if c.Status.Open() {
			st.Open++
		}
		if c.Level >= 2 {
			escalated++
		}
		if c.ResolvedAt != nil {
			closed++
			hours := decimal.NewFromFloat(c.ResolvedAt.Sub(c.CreatedAt).Hours())
			resolutionHours = resolutionHours.Add(hours)
		}
	}
	st.EscalationRate = rate(int64(escalated), int64(len(cases)))
	if closed > 0 {
		st.MeanResolutionHours = resolutionHours.DivRound(decimal.NewFromInt(int64(closed)), ratePlaces)
	}
	return st
}

func rate(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).DivRound(decimal.NewFromInt(whole), ratePlaces)
}
