package escalation_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recon-engine/escalation"
	"github.com/warp/recon-engine/ledger"
	"github.com/warp/recon-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var day0 = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*escalation.Engine, *store.Memory, *escalation.Queue) {
	t.Helper()
	mem := store.NewMemory()
	log := logrus.New()
	log.SetOutput(io.Discard)
	queue := escalation.NewQueue(64, log)
	eng := escalation.NewEngine(mem, queue, log)
	eng.Now = func() time.Time { return day0 }
	return eng, mem, queue
}

func eur(units int64) ledger.Amount {
	return ledger.NewAmount(units, ledger.CurrencyEUR)
}

func expenseSubject(id string) ledger.CaseSubject {
	return ledger.CaseSubject{Expense: ledger.ExpenseID(id)}
}

func openCase(t *testing.T, eng *escalation.Engine, id, reason string) ledger.Case {
	t.Helper()
	c, err := eng.OpenCase(context.Background(), escalation.OpenInput{
		ID:       ledger.CaseID(id),
		Company:  "acme",
		Subject:  expenseSubject("E-" + id),
		Reason:   ledger.ReasonCode(reason),
		Priority: 2,
		Amount:   eur(12000),
		Actor:    "importer",
	})
	require.NoError(t, err)
	return c
}

// =============================================================================
// OPEN CASE TESTS
// =============================================================================

func TestOpenCase_DefaultSevenDayEscalation(t *testing.T) {
	// GIVEN: No escalation rules configured
	// WHEN: A case is opened
	// THEN: Next escalation lands exactly 7 days out, level 1, pending

	eng, _, _ := newTestEngine(t)

	c := openCase(t, eng, "c-1", "MISSING_RECEIPT")
	assert.Equal(t, ledger.CasePending, c.Status)
	assert.Equal(t, 1, c.Level)
	assert.Equal(t, day0.AddDate(0, 0, 7), c.NextEscalationAt)
}

func TestOpenCase_SamePairReturnsExistingOpenCase(t *testing.T) {
	// GIVEN: An open case for (expense, MISSING_RECEIPT)
	// WHEN: The same pair is opened again
	// THEN: The existing case is returned, no duplicate created

	eng, mem, _ := newTestEngine(t)
	ctx := context.Background()

	first := openCase(t, eng, "c-1", "MISSING_RECEIPT")

	second, err := eng.OpenCase(ctx, escalation.OpenInput{
		ID:       "c-2",
		Company:  "acme",
		Subject:  first.Subject,
		Reason:   ledger.ReasonMissingReceipt,
		Priority: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = mem.GetCase(ctx, "c-2")
	assert.True(t, ledger.IsNotFound(err))
}

func TestOpenCase_DistinctReasonsCoexist(t *testing.T) {
	// One case per (subject, reason) pair; a second reason for the same
	// subject opens a second case.
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	first := openCase(t, eng, "c-1", "MISSING_RECEIPT")

	second, err := eng.OpenCase(ctx, escalation.OpenInput{
		ID:       "c-2",
		Company:  "acme",
		Subject:  first.Subject,
		Reason:   ledger.ReasonAmountDiscrepancy,
		Priority: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.CaseID("c-2"), second.ID)
}

func TestOpenCase_UnknownReason_Rejected(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.OpenCase(context.Background(), escalation.OpenInput{
		ID:       "c-1",
		Company:  "acme",
		Subject:  expenseSubject("E"),
		Reason:   "NOT_A_REASON",
		Priority: 2,
	})
	require.ErrorIs(t, err, ledger.ErrInvalidState)
}

// =============================================================================
// SWEEP TESTS
// =============================================================================

func TestSweep_FourteenDayRule_DueOnlyAfterDeadline(t *testing.T) {
	// GIVEN: Rule escalation_after_days=14 for MISSING_RECEIPT, case opened day 0
	// WHEN: Sweeps run at day 13 and day 15
	// THEN: Day 13 leaves status pending; day 15 escalates level 1 -> 2

	eng, mem, queue := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, mem.PutRule(ctx, ledger.Rule{
		ID:                "r-1",
		Company:           "acme",
		ReasonCodes:       []ledger.ReasonCode{ledger.ReasonMissingReceipt},
		EscalateAfterDays: 14,
		Priority:          1,
	}))

	c := openCase(t, eng, "c-1", "MISSING_RECEIPT")
	require.Equal(t, day0.AddDate(0, 0, 14), c.NextEscalationAt)

	eng.Now = func() time.Time { return day0.AddDate(0, 0, 13) }
	run, err := eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Escalated)

	got, _ := mem.GetCase(ctx, "c-1")
	assert.Equal(t, ledger.CasePending, got.Status)
	assert.Equal(t, 1, got.Level)

	eng.Now = func() time.Time { return day0.AddDate(0, 0, 15) }
	run, err = eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Examined)
	assert.Equal(t, 1, run.Escalated)
	assert.Equal(t, 0, run.Failed)

	got, _ = mem.GetCase(ctx, "c-1")
	assert.Equal(t, ledger.CaseEscalated, got.Status)
	assert.Equal(t, 2, got.Level)
	assert.Equal(t, day0.AddDate(0, 0, 15+14), got.NextEscalationAt)

	notes := queue.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, "case_escalated", notes[0].Template)
	assert.Equal(t, ledger.CaseID("c-1"), notes[0].CaseID)
}

func TestSweep_ResolvedCaseNeverTouched(t *testing.T) {
	// GIVEN: A case resolved before its escalation date passes
	// WHEN: A sweep runs well past the date
	// THEN: The case keeps resolved status and its level

	eng, mem, _ := newTestEngine(t)
	ctx := context.Background()

	openCase(t, eng, "c-1", "MISSING_RECEIPT")
	_, err := eng.Resolve(ctx, "c-1", "user-1", "found the receipt")
	require.NoError(t, err)

	eng.Now = func() time.Time { return day0.AddDate(0, 0, 30) }
	run, err := eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Examined)

	got, _ := mem.GetCase(ctx, "c-1")
	assert.Equal(t, ledger.CaseResolved, got.Status)
	assert.Equal(t, 1, got.Level)
	require.NotNil(t, got.ResolvedAt)
}

func TestSweep_HeldCaseSkipped(t *testing.T) {
	eng, mem, _ := newTestEngine(t)
	ctx := context.Background()

	openCase(t, eng, "c-1", "MISSING_RECEIPT")
	_, err := eng.Hold(ctx, "c-1", "user-1", "vendor on vacation")
	require.NoError(t, err)

	eng.Now = func() time.Time { return day0.AddDate(0, 0, 30) }
	_, err = eng.Sweep(ctx)
	require.NoError(t, err)

	got, _ := mem.GetCase(ctx, "c-1")
	assert.Equal(t, ledger.CaseOnHold, got.Status)
	assert.Equal(t, 1, got.Level)
}

func TestSweep_LevelCappedAtFive(t *testing.T) {
	eng, mem, _ := newTestEngine(t)
	ctx := context.Background()

	openCase(t, eng, "c-1", "MISSING_RECEIPT")

	for i := 1; i <= 6; i++ {
		eng.Now = func() time.Time { return day0.AddDate(0, 0, i*8) }
		_, err := eng.Sweep(ctx)
		require.NoError(t, err)
	}

	got, _ := mem.GetCase(ctx, "c-1")
	assert.Equal(t, 5, got.Level)
	assert.Equal(t, ledger.CaseEscalated, got.Status)
}

func TestSweep_MalformedRuleIsolatedPerCase(t *testing.T) {
	// GIVEN: A malformed rule that applies to one company and a healthy
	//        case in another company, both overdue
	// WHEN: A sweep runs
	// THEN: The affected case is counted failed and left unescalated;
	//       the healthy case still escalates

	eng, mem, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, mem.PutRule(ctx, ledger.Rule{
		ID:                "r-bad",
		Company:           "acme",
		EscalateAfterDays: -3,
		Priority:          1,
	}))

	// The rule is consulted on open as well, so seed the acme case
	// directly at the store.
	require.NoError(t, mem.PutCase(ctx, ledger.Case{
		ID:               "c-bad",
		Company:          "acme",
		Subject:          expenseSubject("E-bad"),
		Reason:           ledger.ReasonMissingReceipt,
		Status:           ledger.CasePending,
		Level:            1,
		Priority:         2,
		NextEscalationAt: day0,
		CreatedAt:        day0,
	}))

	other, err := eng.OpenCase(ctx, escalation.OpenInput{
		ID:       "c-ok",
		Company:  "globex",
		Subject:  expenseSubject("E-ok"),
		Reason:   ledger.ReasonMissingVendor,
		Priority: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 1, other.Level)

	eng.Now = func() time.Time { return day0.AddDate(0, 0, 10) }
	run, err := eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Examined)
	assert.Equal(t, 1, run.Escalated)
	assert.Equal(t, 1, run.Failed)

	bad, _ := mem.GetCase(ctx, "c-bad")
	assert.Equal(t, ledger.CasePending, bad.Status)
	assert.Equal(t, 1, bad.Level)

	ok, _ := mem.GetCase(ctx, "c-ok")
	assert.Equal(t, ledger.CaseEscalated, ok.Status)
	assert.Equal(t, 2, ok.Level)
}

func TestSweep_SavesAuditRun(t *testing.T) {
	eng, mem, _ := newTestEngine(t)
	ctx := context.Background()

	openCase(t, eng, "c-1", "MISSING_RECEIPT")
	eng.Now = func() time.Time { return day0.AddDate(0, 0, 8) }
	_, err := eng.Sweep(ctx)
	require.NoError(t, err)

	runs, err := mem.ListSweepRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Escalated)
	require.NotNil(t, runs[0].CompletedAt)
}

// =============================================================================
// TRANSITION AND HISTORY TESTS
// =============================================================================

func TestTransitions_AppendImmutableHistory(t *testing.T) {
	// GIVEN: A case walked through start, hold, resume, resolve
	// WHEN: History is read back
	// THEN: One entry per transition in order, with actor and statuses

	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	openCase(t, eng, "c-1", "MISSING_RECEIPT")

	_, err := eng.Start(ctx, "c-1", "user-1")
	require.NoError(t, err)
	_, err = eng.Hold(ctx, "c-1", "user-1", "waiting on vendor")
	require.NoError(t, err)
	_, err = eng.Resume(ctx, "c-1", "user-2")
	require.NoError(t, err)
	_, err = eng.Resolve(ctx, "c-1", "user-2", "matched manually")
	require.NoError(t, err)

	hist, err := eng.History(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, hist, 5)

	assert.Equal(t, ledger.CasePending, hist[0].To)
	assert.Equal(t, ledger.CaseInProgress, hist[1].To)
	assert.Equal(t, ledger.CaseOnHold, hist[2].To)
	assert.Equal(t, ledger.CaseInProgress, hist[3].To)
	assert.Equal(t, ledger.CaseResolved, hist[4].To)
	assert.Equal(t, ledger.CaseInProgress, hist[4].From)
	assert.Equal(t, "user-2", hist[4].Actor)
}

func TestTransitions_ClosedCaseRejectsChanges(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	openCase(t, eng, "c-1", "MISSING_RECEIPT")
	_, err := eng.Dismiss(ctx, "c-1", "user-1", "duplicate of c-0")
	require.NoError(t, err)

	_, err = eng.Hold(ctx, "c-1", "user-1", "")
	require.ErrorIs(t, err, ledger.ErrInvalidState)
	_, err = eng.Resolve(ctx, "c-1", "user-1", "")
	require.ErrorIs(t, err, ledger.ErrInvalidState)
}

// =============================================================================
// RULE SELECTION TESTS
// =============================================================================

func TestRules_FirstMatchByPriorityWins(t *testing.T) {
	// GIVEN: A broad 30-day rule at priority 2 and a reason-scoped 3-day
	//        rule at priority 1
	// WHEN: A matching case is opened
	// THEN: The priority-1 rule supplies the delay

	eng, mem, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, mem.PutRule(ctx, ledger.Rule{
		ID: "r-broad", Company: "acme", EscalateAfterDays: 30, Priority: 2,
	}))
	require.NoError(t, mem.PutRule(ctx, ledger.Rule{
		ID:                "r-receipts",
		Company:           "acme",
		ReasonCodes:       []ledger.ReasonCode{ledger.ReasonMissingReceipt},
		EscalateAfterDays: 3,
		Priority:          1,
	}))

	c := openCase(t, eng, "c-1", "MISSING_RECEIPT")
	assert.Equal(t, day0.AddDate(0, 0, 3), c.NextEscalationAt)
}

func TestRules_AmountRangeFilter(t *testing.T) {
	// A rule scoped to amounts >= 1000.00 must not match a 120.00 case.
	eng, mem, _ := newTestEngine(t)
	ctx := context.Background()

	min := eur(100000)
	require.NoError(t, mem.PutRule(ctx, ledger.Rule{
		ID:                "r-large",
		Company:           "acme",
		MinAmount:         &min,
		EscalateAfterDays: 1,
		Priority:          1,
	}))

	c := openCase(t, eng, "c-1", "MISSING_RECEIPT")
	assert.Equal(t, day0.AddDate(0, 0, ledger.DefaultEscalationDays), c.NextEscalationAt)
}
