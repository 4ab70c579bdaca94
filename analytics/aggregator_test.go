package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recon-engine/allocation"
	"github.com/warp/recon-engine/analytics"
	"github.com/warp/recon-engine/ledger"
	"github.com/warp/recon-engine/ledger/store"
)

var day0 = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func eur(units int64) ledger.Amount {
	return ledger.NewAmount(units, ledger.CurrencyEUR)
}

func TestReport_AllocationAndGroupRates(t *testing.T) {
	// GIVEN: A 1000.00 movement with 800.00 allocated across one open
	//        group and a second, complete group on a 500.00 expense
	// WHEN: A report is generated
	// THEN: Rates reflect exact minor-unit sums

	mem := store.NewMemory()
	ctx := context.Background()
	eng := allocation.NewEngine(mem)

	require.NoError(t, mem.PutMovement(ctx, ledger.Movement{
		ID: "M", Company: "acme", Amount: eur(100000),
		Status: ledger.MovementPosted, Mode: ledger.ModeSimple,
	}))
	require.NoError(t, mem.PutMovement(ctx, ledger.Movement{
		ID: "M2", Company: "acme", Amount: eur(50000),
		Status: ledger.MovementPosted, Mode: ledger.ModeSimple,
	}))
	for _, e := range []struct {
		id    string
		units int64
	}{{"E1", 40000}, {"E2", 40000}, {"E3", 50000}} {
		require.NoError(t, mem.PutExpense(ctx, ledger.Expense{
			ID: ledger.ExpenseID(e.id), Company: "acme",
			Amount: eur(e.units), Mode: ledger.ModeSimple,
		}))
	}

	_, err := eng.ProposeSplit(ctx, allocation.Proposal{
		GroupID:        "g-open",
		Type:           ledger.SplitManyToOne,
		TargetMovement: "M",
		Members: []allocation.MemberInput{
			{Expense: "E1", Amount: eur(40000)},
			{Expense: "E2", Amount: eur(40000)},
		},
	})
	require.NoError(t, err)

	_, err = eng.ProposeSplit(ctx, allocation.Proposal{
		GroupID:       "g-done",
		Type:          ledger.SplitOneToMany,
		TargetExpense: "E3",
		Members:       []allocation.MemberInput{{Movement: "M2", Amount: eur(50000)}},
	})
	require.NoError(t, err)

	agg := analytics.NewAggregator(mem)
	agg.Now = func() time.Time { return day0 }

	rep, err := agg.Report(ctx, "acme")
	require.NoError(t, err)

	// 130000 of 150000 movement units allocated.
	assert.Equal(t, "0.8667", rep.Movements.AllocationRate.StringFixed(4))
	assert.Equal(t, 1, rep.Movements.FullyAllocated)

	// All three expenses fully reconciled.
	assert.Equal(t, 3, rep.Expenses.FullyReconciled)
	assert.Equal(t, "1.0000", rep.Expenses.ReconciliationRate.StringFixed(4))

	assert.Equal(t, 2, rep.Groups.Total)
	assert.Equal(t, 1, rep.Groups.Complete)
	assert.Equal(t, 1, rep.Groups.Open)
	assert.Equal(t, "0.5000", rep.Groups.CompletionRate.StringFixed(4))
}

func TestReport_CaseAndAdvanceRollups(t *testing.T) {
	// GIVEN: Two open cases (one escalated to level 2), one resolved
	//        case closed after 48h, and a partial advance
	// WHEN: A report is generated
	// THEN: Counts, escalation rate, outstanding units, and mean
	//       resolution time line up

	mem := store.NewMemory()
	ctx := context.Background()

	resolved := day0.Add(48 * time.Hour)
	seed := []ledger.Case{
		{
			ID: "c-1", Company: "acme",
			Subject: ledger.CaseSubject{Expense: "E1"},
			Reason:  ledger.ReasonMissingReceipt,
			Status:  ledger.CasePending, Level: 1, CreatedAt: day0,
		},
		{
			ID: "c-2", Company: "acme",
			Subject: ledger.CaseSubject{Expense: "E2"},
			Reason:  ledger.ReasonAmountDiscrepancy,
			Status:  ledger.CaseEscalated, Level: 2, CreatedAt: day0,
		},
		{
			ID: "c-3", Company: "acme",
			Subject: ledger.CaseSubject{Movement: "M1"},
			Reason:  ledger.ReasonDuplicateSuspected,
			Status:  ledger.CaseResolved, Level: 1,
			CreatedAt: day0, ResolvedAt: &resolved,
		},
	}
	for _, c := range seed {
		require.NoError(t, mem.PutCase(ctx, c))
	}

	require.NoError(t, mem.PutAdvance(ctx, ledger.Advance{
		ID: "A", Company: "acme", Employee: "emp-1", Expense: "E4",
		Amount: eur(85050), Reimbursed: eur(50000),
		Status: ledger.AdvancePartial, Channel: ledger.ChannelTransfer,
	}))

	agg := analytics.NewAggregator(mem)
	agg.Now = func() time.Time { return day0 }

	rep, err := agg.Report(ctx, "acme")
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Cases.Total)
	assert.Equal(t, 2, rep.Cases.Open)
	assert.Equal(t, 1, rep.Cases.ByStatus[ledger.CaseEscalated])
	assert.Equal(t, 1, rep.Cases.ByCategory[ledger.CategoryMissingData])
	assert.Equal(t, 2, rep.Cases.ByLevel[1])
	assert.Equal(t, "0.3333", rep.Cases.EscalationRate.StringFixed(4))
	assert.Equal(t, "48.0000", rep.Cases.MeanResolutionHours.StringFixed(4))

	assert.Equal(t, 1, rep.Advances.ByStatus[ledger.AdvancePartial])
	assert.Equal(t, int64(35050), rep.Advances.OutstandingUnits)
}
