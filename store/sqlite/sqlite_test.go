package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recon-engine/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func eur(units int64) ledger.Amount {
	return ledger.NewAmount(units, "EUR")
}

func TestMovementRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutMovement(ctx, ledger.Movement{
		ID:      "m-1",
		Company: "acme",
		Amount:  eur(50000),
		Date:    date,
		Status:  ledger.MovementPosted,
		Mode:    ledger.ModeSimple,
	}))

	m, err := s.GetMovement(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", m.Company)
	assert.Equal(t, int64(50000), m.Amount.Units)
	assert.Equal(t, ledger.Currency("EUR"), m.Amount.Currency)
	assert.True(t, m.Date.Equal(date))
	assert.Equal(t, int64(1), m.Version)

	_, err = s.GetMovement(ctx, "missing")
	assert.True(t, ledger.IsNotFound(err))
}

func TestDuplicatePutFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mov := ledger.Movement{ID: "m-1", Company: "acme", Amount: eur(100),
		Date: time.Now(), Status: ledger.MovementPosted, Mode: ledger.ModeSimple}
	require.NoError(t, s.PutMovement(ctx, mov))
	err := s.PutMovement(ctx, mov)
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestVersionedUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutExpense(ctx, ledger.Expense{
		ID: "e-1", Company: "acme", Amount: eur(30000),
		Date: time.Now(), Mode: ledger.ModeSimple,
	}))

	e, err := s.GetExpense(ctx, "e-1")
	require.NoError(t, err)

	e.Reconciled = eur(30000)
	require.NoError(t, s.UpdateExpense(ctx, e, e.Version))

	// Stale version loses.
	err = s.UpdateExpense(ctx, e, e.Version)
	assert.ErrorIs(t, err, ledger.ErrConcurrencyConflict)
	assert.True(t, ledger.IsRetryable(err))

	e, err = s.GetExpense(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Version)
	assert.Equal(t, int64(30000), e.Reconciled.Units)

	err = s.UpdateExpense(ctx, ledger.Expense{ID: "missing", Amount: eur(1)}, 1)
	assert.True(t, ledger.IsNotFound(err))
}

func TestMarkOperationDedupe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkOperation(ctx, "op-1"))
	assert.ErrorIs(t, s.MarkOperation(ctx, "op-1"), ledger.ErrDuplicateOperation)
	require.NoError(t, s.MarkOperation(ctx, "op-2"))
}

func TestGroupRoundTripWithMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pct := decimal.RequireFromString("60")
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	g := ledger.SplitGroup{
		ID:            "g-1",
		Type:          ledger.SplitOneToMany,
		TargetExpense: "e-1",
		TargetAmount:  eur(50000),
		Allocated:     eur(30000),
		Status:        ledger.GroupOpen,
		Revision:      1,
		CreatedBy:     "ops@acme",
		CreatedAt:     now,
		Members: []ledger.SplitMember{
			{GroupID: "g-1", Expense: "e-1", Movement: "m-1", Allocated: eur(30000), Percent: &pct, Note: "first leg", CreatedAt: now},
		},
	}
	require.NoError(t, s.PutGroup(ctx, g))

	got, err := s.GetGroup(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.GroupOpen, got.Status)
	assert.Equal(t, 1, got.Revision)
	assert.Equal(t, "ops@acme", got.CreatedBy)
	require.Len(t, got.Members, 1)
	assert.Equal(t, int64(30000), got.Members[0].Allocated.Units)
	require.NotNil(t, got.Members[0].Percent)
	assert.True(t, got.Members[0].Percent.Equal(pct))

	// UpdateGroup replaces the member set.
	got.Members = append(got.Members, ledger.SplitMember{
		GroupID: "g-1", Expense: "e-1", Movement: "m-2", Allocated: eur(20000), CreatedAt: now,
	})
	got.Allocated = eur(50000)
	got.Complete = true
	got.Status = ledger.GroupComplete
	require.NoError(t, s.UpdateGroup(ctx, got))

	got, err = s.GetGroup(ctx, "g-1")
	require.NoError(t, err)
	assert.True(t, got.Complete)
	assert.Len(t, got.Members, 2)
}

func TestWithTxRollsBackEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutMovement(ctx, ledger.Movement{
		ID: "m-1", Company: "acme", Amount: eur(1000),
		Date: time.Now(), Status: ledger.MovementPosted, Mode: ledger.ModeSimple,
	}))

	boom := assert.AnError
	err := s.WithTx(ctx, func(tx ledger.Store) error {
		m, err := tx.GetMovement(ctx, "m-1")
		if err != nil {
			return err
		}
		m.Allocated = eur(1000)
		if err := tx.UpdateMovement(ctx, m, m.Version); err != nil {
			return err
		}
		if err := tx.MarkOperation(ctx, "op-tx"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	m, err := s.GetMovement(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, m.Allocated.IsZero())
	assert.Equal(t, int64(1), m.Version)

	// The op id rolled back with everything else.
	assert.NoError(t, s.MarkOperation(ctx, "op-tx"))
}

func TestCaseFilterAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	day0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	put := func(id ledger.CaseID, status ledger.CaseStatus, due time.Time) {
		require.NoError(t, s.PutCase(ctx, ledger.Case{
			ID:      id,
			Company: "acme",
			Subject: ledger.CaseSubject{Expense: ledger.ExpenseID("e-" + string(id))},
			Reason:  ledger.ReasonMissingReceipt,
			Status:  status, Level: 1,
			NextEscalationAt: due,
			Impact:           ledger.ImpactLow,
			Priority:         3,
			Amount:           eur(100),
		}))
	}
	put("c-due", ledger.CasePending, day0.AddDate(0, 0, -1))
	put("c-later", ledger.CasePending, day0.AddDate(0, 0, 5))
	put("c-closed", ledger.CaseResolved, day0.AddDate(0, 0, -3))

	due := day0
	cases, err := s.ListCases(ctx, ledger.CaseFilter{OpenOnly: true, DueBefore: &due})
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, ledger.CaseID("c-due"), cases[0].ID)

	cases, err = s.ListCases(ctx, ledger.CaseFilter{Company: "acme"})
	require.NoError(t, err)
	assert.Len(t, cases, 3)

	found, ok, err := s.FindOpenCase(ctx,
		ledger.CaseSubject{Expense: "e-c-due"}, ledger.ReasonMissingReceipt)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.CaseID("c-due"), found.ID)

	_, ok, err = s.FindOpenCase(ctx,
		ledger.CaseSubject{Expense: "e-c-closed"}, ledger.ReasonMissingReceipt)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AppendHistory(ctx, ledger.HistoryEntry{
		CaseID: "c-due", From: "", To: ledger.CasePending, Actor: "system", At: day0,
	}))
	require.NoError(t, s.AppendHistory(ctx, ledger.HistoryEntry{
		CaseID: "c-due", From: ledger.CasePending, To: ledger.CaseInProgress, Actor: "ops", At: day0.Add(time.Hour),
	}))
	hist, err := s.CaseHistory(ctx, "c-due")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, ledger.CaseInProgress, hist[1].To)
}

func TestRulesOrderedByPriority(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	min := eur(100000)
	require.NoError(t, s.PutRule(ctx, ledger.Rule{
		ID: "r-b", Company: "acme",
		ReasonCodes:       []ledger.ReasonCode{ledger.ReasonMissingReceipt},
		EscalateAfterDays: 14, Priority: 20,
	}))
	require.NoError(t, s.PutRule(ctx, ledger.Rule{
		ID: "r-a", Company: "acme",
		MinAmount:         &min,
		EscalateAfterDays: 3, Priority: 10,
	}))

	rules, err := s.ListRules(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, ledger.RuleID("r-a"), rules[0].ID)
	require.NotNil(t, rules[0].MinAmount)
	assert.Equal(t, int64(100000), rules[0].MinAmount.Units)
	assert.Equal(t, []ledger.ReasonCode{ledger.ReasonMissingReceipt}, rules[1].ReasonCodes)

	// PutRule upserts.
	require.NoError(t, s.PutRule(ctx, ledger.Rule{
		ID: "r-a", Company: "acme", EscalateAfterDays: 5, Priority: 10,
	}))
	rules, err = s.ListRules(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 5, rules[0].EscalateAfterDays)
	assert.Nil(t, rules[0].MinAmount)

	require.NoError(t, s.DeleteRule(ctx, "r-b"))
	rules, err = s.ListRules(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestRuleBoundsRejectMixedCurrencies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	min := eur(10000)
	max := ledger.NewAmount(50000, "USD")
	err := s.PutRule(ctx, ledger.Rule{
		ID: "r-mixed", Company: "acme",
		MinAmount:         &min,
		MaxAmount:         &max,
		EscalateAfterDays: 7, Priority: 10,
	})
	require.ErrorIs(t, err, ledger.ErrCurrencyMismatch)

	rules, err := s.ListRules(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestSweepRunUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSweepRun(ctx, ledger.SweepRun{ID: "sweep-1", StartedAt: start}))

	done := start.Add(2 * time.Second)
	require.NoError(t, s.SaveSweepRun(ctx, ledger.SweepRun{
		ID: "sweep-1", StartedAt: start, CompletedAt: &done,
		Examined: 4, Escalated: 2, Failed: 1,
	}))

	runs, err := s.ListSweepRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 4, runs[0].Examined)
	assert.Equal(t, 2, runs[0].Escalated)
	require.NotNil(t, runs[0].CompletedAt)
	assert.True(t, runs[0].CompletedAt.Equal(done))
}

func TestAdvanceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutAdvance(ctx, ledger.Advance{
		ID: "a-1", Company: "acme", Employee: "emp-7", Expense: "e-1",
		Amount: eur(85050), Channel: ledger.ChannelPending,
		Status: ledger.AdvancePending,
	}))

	a, err := s.GetAdvance(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.EmployeeID("emp-7"), a.Employee)
	assert.Equal(t, int64(85050), a.Amount.Units)

	a.Reimbursed = eur(50000)
	a.Status = ledger.AdvancePartial
	a.Channel = ledger.ChannelTransfer
	a.Movement = "m-9"
	require.NoError(t, s.UpdateAdvance(ctx, a, a.Version))

	a, err = s.GetAdvance(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.AdvancePartial, a.Status)
	assert.Equal(t, ledger.MovementID("m-9"), a.Movement)

	list, err := s.ListAdvances(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
