// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/recon-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore with plain maps. WithTx simulates a
// database transaction with a snapshot + rollback on error, so the atomic
// multi-record guarantees hold exactly as with SQLite.
type Memory struct {
	mu sync.RWMutex

	movements map[ledger.MovementID]ledger.Movement
	expenses  map[ledger.ExpenseID]ledger.Expense
	ops       map[ledger.OperationID]bool
	groups    map[ledger.GroupID]ledger.SplitGroup
	advances  map[ledger.AdvanceID]ledger.Advance
	cases     map[ledger.CaseID]ledger.Case
	history   map[ledger.CaseID][]ledger.HistoryEntry
	rules     map[ledger.RuleID]ledger.Rule
	sweeps    []ledger.SweepRun
}

func NewMemory() *Memory {
	return &Memory{
		movements: make(map[ledger.MovementID]ledger.Movement),
		expenses:  make(map[ledger.ExpenseID]ledger.Expense),
		ops:       make(map[ledger.OperationID]bool),
		groups:    make(map[ledger.GroupID]ledger.SplitGroup),
		advances:  make(map[ledger.AdvanceID]ledger.Advance),
		cases:     make(map[ledger.CaseID]ledger.Case),
		history:   make(map[ledger.CaseID][]ledger.HistoryEntry),
		rules:     make(map[ledger.RuleID]ledger.Rule),
	}
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func (m *Memory) PutMovement(_ context.Context, mv ledger.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putMovementLocked(mv)
}

func (m *Memory) putMovementLocked(mv ledger.Movement) error {
	if _, ok := m.movements[mv.ID]; ok {
		return fmt.Errorf("movement %s already exists: %w", mv.ID, ledger.ErrInvalidState)
	}
	if mv.Version == 0 {
		mv.Version = 1
	}
	m.movements[mv.ID] = mv
	return nil
}

func (m *Memory) GetMovement(_ context.Context, id ledger.MovementID) (ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMovementLocked(id)
}

func (m *Memory) getMovementLocked(id ledger.MovementID) (ledger.Movement, error) {
	mv, ok := m.movements[id]
	if !ok {
		return ledger.Movement{}, fmt.Errorf("movement %s: %w", id, ledger.ErrNotFound)
	}
	return mv, nil
}

func (m *Memory) ListMovements(_ context.Context, company string) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listMovementsLocked(company), nil
}

func (m *Memory) listMovementsLocked(company string) []ledger.Movement {
	var out []ledger.Movement
	for _, mv := range m.movements {
		if company == "" || mv.Company == company {
			out = append(out, mv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) UpdateMovement(_ context.Context, mv ledger.Movement, expectVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateMovementLocked(mv, expectVersion)
}

func (m *Memory) updateMovementLocked(mv ledger.Movement, expectVersion int64) error {
	cur, ok := m.movements[mv.ID]
	if !ok {
		return fmt.Errorf("movement %s: %w", mv.ID, ledger.ErrNotFound)
	}
	if cur.Version != expectVersion {
		return ledger.ErrConcurrencyConflict
	}
	mv.Version = expectVersion + 1
	m.movements[mv.ID] = mv
	return nil
}

// =============================================================================
// EXPENSES
// =============================================================================

func (m *Memory) PutExpense(_ context.Context, e ledger.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putExpenseLocked(e)
}

func (m *Memory) putExpenseLocked(e ledger.Expense) error {
	if _, ok := m.expenses[e.ID]; ok {
		return fmt.Errorf("expense %s already exists: %w", e.ID, ledger.ErrInvalidState)
	}
	if e.Version == 0 {
		e.Version = 1
	}
	m.expenses[e.ID] = e
	return nil
}

func (m *Memory) GetExpense(_ context.Context, id ledger.ExpenseID) (ledger.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getExpenseLocked(id)
}

func (m *Memory) getExpenseLocked(id ledger.ExpenseID) (ledger.Expense, error) {
	e, ok := m.expenses[id]
	if !ok {
		return ledger.Expense{}, fmt.Errorf("expense %s: %w", id, ledger.ErrNotFound)
	}
	return e, nil
}

func (m *Memory) ListExpenses(_ context.Context, company string) ([]ledger.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listExpensesLocked(company), nil
}

func (m *Memory) listExpensesLocked(company string) []ledger.Expense {
	var out []ledger.Expense
	for _, e := range m.expenses {
		if company == "" || e.Company == company {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) UpdateExpense(_ context.Context, e ledger.Expense, expectVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateExpenseLocked(e, expectVersion)
}

func (m *Memory) updateExpenseLocked(e ledger.Expense, expectVersion int64) error {
	cur, ok := m.expenses[e.ID]
	if !ok {
		return fmt.Errorf("expense %s: %w", e.ID, ledger.ErrNotFound)
	}
	if cur.Version != expectVersion {
		return ledger.ErrConcurrencyConflict
	}
	e.Version = expectVersion + 1
	m.expenses[e.ID] = e
	return nil
}

// =============================================================================
// APPLIED OPERATIONS
// =============================================================================

func (m *Memory) MarkOperation(_ context.Context, op ledger.OperationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markOperationLocked(op)
}

func (m *Memory) markOperationLocked(op ledger.OperationID) error {
	if m.ops[op] {
		return ledger.ErrDuplicateOperation
	}
	m.ops[op] = true
	return nil
}

// =============================================================================
// SPLIT GROUPS
// =============================================================================

func (m *Memory) PutGroup(_ context.Context, g ledger.SplitGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putGroupLocked(g)
}

func (m *Memory) putGroupLocked(g ledger.SplitGroup) error {
	if _, ok := m.groups[g.ID]; ok {
		return fmt.Errorf("split group %s already exists: %w", g.ID, ledger.ErrInvalidState)
	}
	m.groups[g.ID] = cloneGroup(g)
	return nil
}

func (m *Memory) GetGroup(_ context.Context, id ledger.GroupID) (ledger.SplitGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getGroupLocked(id)
}

func (m *Memory) getGroupLocked(id ledger.GroupID) (ledger.SplitGroup, error) {
	g, ok := m.groups[id]
	if !ok {
		return ledger.SplitGroup{}, fmt.Errorf("split group %s: %w", id, ledger.ErrNotFound)
	}
	return cloneGroup(g), nil
}

func (m *Memory) UpdateGroup(_ context.Context, g ledger.SplitGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateGroupLocked(g)
}

func (m *Memory) updateGroupLocked(g ledger.SplitGroup) error {
	if _, ok := m.groups[g.ID]; !ok {
		return fmt.Errorf("split group %s: %w", g.ID, ledger.ErrNotFound)
	}
	m.groups[g.ID] = cloneGroup(g)
	return nil
}

func (m *Memory) ListGroups(_ context.Context) ([]ledger.SplitGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listGroupsLocked(), nil
}

func (m *Memory) listGroupsLocked() []ledger.SplitGroup {
	out := make([]ledger.SplitGroup, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, cloneGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneGroup(g ledger.SplitGroup) ledger.SplitGroup {
	members := make([]ledger.SplitMember, len(g.Members))
	copy(members, g.Members)
	g.Members = members
	return g
}

// =============================================================================
// ADVANCES
// =============================================================================

func (m *Memory) PutAdvance(_ context.Context, a ledger.Advance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putAdvanceLocked(a)
}

func (m *Memory) putAdvanceLocked(a ledger.Advance) error {
	if _, ok := m.advances[a.ID]; ok {
		return fmt.Errorf("advance %s already exists: %w", a.ID, ledger.ErrInvalidState)
	}
	if a.Version == 0 {
		a.Version = 1
	}
	m.advances[a.ID] = a
	return nil
}

func (m *Memory) GetAdvance(_ context.Context, id ledger.AdvanceID) (ledger.Advance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAdvanceLocked(id)
}

func (m *Memory) getAdvanceLocked(id ledger.AdvanceID) (ledger.Advance, error) {
	a, ok := m.advances[id]
	if !ok {
		return ledger.Advance{}, fmt.Errorf("advance %s: %w", id, ledger.ErrNotFound)
	}
	return a, nil
}

func (m *Memory) ListAdvances(_ context.Context, company string) ([]ledger.Advance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAdvancesLocked(company), nil
}

func (m *Memory) listAdvancesLocked(company string) []ledger.Advance {
	var out []ledger.Advance
	for _, a := range m.advances {
		if company == "" || a.Company == company {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) UpdateAdvance(_ context.Context, a ledger.Advance, expectVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAdvanceLocked(a, expectVersion)
}

func (m *Memory) updateAdvanceLocked(a ledger.Advance, expectVersion int64) error {
	cur, ok := m.advances[a.ID]
	if !ok {
		return fmt.Errorf("advance %s: %w", a.ID, ledger.ErrNotFound)
	}
	if cur.Version != expectVersion {
		return ledger.ErrConcurrencyConflict
	}
	a.Version = expectVersion + 1
	m.advances[a.ID] = a
	return nil
}

// =============================================================================
// CASES
// =============================================================================

func (m *Memory) PutCase(_ context.Context, c ledger.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCaseLocked(c)
}

func (m *Memory) putCaseLocked(c ledger.Case) error {
	if _, ok := m.cases[c.ID]; ok {
		return fmt.Errorf("case %s already exists: %w", c.ID, ledger.ErrInvalidState)
	}
	if c.Version == 0 {
		c.Version = 1
	}
	m.cases[c.ID] = c
	return nil
}

func (m *Memory) GetCase(_ context.Context, id ledger.CaseID) (ledger.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCaseLocked(id)
}

func (m *Memory) getCaseLocked(id ledger.CaseID) (ledger.Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return ledger.Case{}, fmt.Errorf("case %s: %w", id, ledger.ErrNotFound)
	}
	return c, nil
}

func (m *Memory) ListCases(_ context.Context, f ledger.CaseFilter) ([]ledger.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCasesLocked(f), nil
}

func (m *Memory) listCasesLocked(f ledger.CaseFilter) []ledger.Case {
	var out []ledger.Case
	for _, c := range m.cases {
		if !matchCase(c, f) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matchCase(c ledger.Case, f ledger.CaseFilter) bool {
	if f.Company != "" && c.Company != f.Company {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Reason != "" && c.Reason != f.Reason {
		return false
	}
	if f.OpenOnly && !c.Status.Open() {
		return false
	}
	if f.DueBefore != nil && !c.NextEscalationAt.Before(*f.DueBefore) {
		return false
	}
	if f.Subject != nil && c.Subject != *f.Subject {
		return false
	}
	return true
}

func (m *Memory) UpdateCase(_ context.Context, c ledger.Case, expectVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCaseLocked(c, expectVersion)
}

func (m *Memory) updateCaseLocked(c ledger.Case, expectVersion int64) error {
	cur, ok := m.cases[c.ID]
	if !ok {
		return fmt.Errorf("case %s: %w", c.ID, ledger.ErrNotFound)
	}
	if cur.Version != expectVersion {
		return ledger.ErrConcurrencyConflict
	}
	c.Version = expectVersion + 1
	m.cases[c.ID] = c
	return nil
}

func (m *Memory) FindOpenCase(_ context.Context, subject ledger.CaseSubject, reason ledger.ReasonCode) (ledger.Case, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOpenCaseLocked(subject, reason)
}

func (m *Memory) findOpenCaseLocked(subject ledger.CaseSubject, reason ledger.ReasonCode) (ledger.Case, bool, error) {
	for _, c := range m.cases {
		if c.Subject == subject && c.Reason == reason && c.Status.Open() {
			return c, true, nil
		}
	}
	return ledger.Case{}, false, nil
}

// =============================================================================
// CASE HISTORY - Append-only
// =============================================================================

func (m *Memory) AppendHistory(_ context.Context, entry ledger.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendHistoryLocked(entry)
}

func (m *Memory) appendHistoryLocked(entry ledger.HistoryEntry) error {
	m.history[entry.CaseID] = append(m.history[entry.CaseID], entry)
	return nil
}

func (m *Memory) CaseHistory(_ context.Context, id ledger.CaseID) ([]ledger.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.caseHistoryLocked(id), nil
}

func (m *Memory) caseHistoryLocked(id ledger.CaseID) []ledger.HistoryEntry {
	src := m.history[id]
	out := make([]ledger.HistoryEntry, len(src))
	copy(out, src)
	return out
}

// =============================================================================
// RULES
// =============================================================================

func (m *Memory) PutRule(_ context.Context, r ledger.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putRuleLocked(r)
}

func (m *Memory) putRuleLocked(r ledger.Rule) error {
	m.rules[r.ID] = r
	return nil
}

func (m *Memory) ListRules(_ context.Context, company string) ([]ledger.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRulesLocked(company), nil
}

func (m *Memory) listRulesLocked(company string) []ledger.Rule {
	var out []ledger.Rule
	for _, r := range m.rules {
		if company == "" || r.Company == company {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) DeleteRule(_ context.Context, id ledger.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteRuleLocked(id)
}

func (m *Memory) deleteRuleLocked(id ledger.RuleID) error {
	delete(m.rules, id)
	return nil
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

func (m *Memory) SaveSweepRun(_ context.Context, run ledger.SweepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSweepRunLocked(run)
}

func (m *Memory) saveSweepRunLocked(run ledger.SweepRun) error {
	for i, existing := range m.sweeps {
		if existing.ID == run.ID {
			m.sweeps[i] = run
			return nil
		}
	}
	m.sweeps = append(m.sweeps, run)
	return nil
}

func (m *Memory) ListSweepRuns(_ context.Context) ([]ledger.SweepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.SweepRun, len(m.sweeps))
	copy(out, m.sweeps)
	return out, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback
// =============================================================================

// WithTx executes fn against a transactional view. The snapshot is
// restored on error so partial application is never observable, matching
// the SQLite store's sql.Tx semantics.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	movements map[ledger.MovementID]ledger.Movement
	expenses  map[ledger.ExpenseID]ledger.Expense
	ops       map[ledger.OperationID]bool
	groups    map[ledger.GroupID]ledger.SplitGroup
	advances  map[ledger.AdvanceID]ledger.Advance
	cases     map[ledger.CaseID]ledger.Case
	history   map[ledger.CaseID][]ledger.HistoryEntry
	rules     map[ledger.RuleID]ledger.Rule
	sweeps    []ledger.SweepRun
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		movements: make(map[ledger.MovementID]ledger.Movement, len(m.movements)),
		expenses:  make(map[ledger.ExpenseID]ledger.Expense, len(m.expenses)),
		ops:       make(map[ledger.OperationID]bool, len(m.ops)),
		groups:    make(map[ledger.GroupID]ledger.SplitGroup, len(m.groups)),
		advances:  make(map[ledger.AdvanceID]ledger.Advance, len(m.advances)),
		cases:     make(map[ledger.CaseID]ledger.Case, len(m.cases)),
		history:   make(map[ledger.CaseID][]ledger.HistoryEntry, len(m.history)),
		rules:     make(map[ledger.RuleID]ledger.Rule, len(m.rules)),
		sweeps:    append([]ledger.SweepRun{}, m.sweeps...),
	}
	for k, v := range m.movements {
		s.movements[k] = v
	}
	for k, v := range m.expenses {
		s.expenses[k] = v
	}
	for k, v := range m.ops {
		s.ops[k] = v
	}
	for k, v := range m.groups {
		s.groups[k] = cloneGroup(v)
	}
	for k, v := range m.advances {
		s.advances[k] = v
	}
	for k, v := range m.cases {
		s.cases[k] = v
	}
	for k, v := range m.history {
		s.history[k] = append([]ledger.HistoryEntry{}, v...)
	}
	for k, v := range m.rules {
		s.rules[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.movements = s.movements
	m.expenses = s.expenses
	m.ops = s.ops
	m.groups = s.groups
	m.advances = s.advances
	m.cases = s.cases
	m.history = s.history
	m.rules = s.rules
	m.sweeps = s.sweeps
}

// txView delegates to the parent's locked methods; the parent holds the
// write lock for the duration of WithTx.
type txView struct {
	m *Memory
}

func (v *txView) PutMovement(_ context.Context, mv ledger.Movement) error {
	return v.m.putMovementLocked(mv)
}

func (v *txView) GetMovement(_ context.Context, id ledger.MovementID) (ledger.Movement, error) {
	return v.m.getMovementLocked(id)
}

func (v *txView) ListMovements(_ context.Context, company string) ([]ledger.Movement, error) {
	return v.m.listMovementsLocked(company), nil
}

func (v *txView) UpdateMovement(_ context.Context, mv ledger.Movement, expectVersion int64) error {
	return v.m.updateMovementLocked(mv, expectVersion)
}

func (v *txView) PutExpense(_ context.Context, e ledger.Expense) error {
	return v.m.putExpenseLocked(e)
}

func (v *txView) GetExpense(_ context.Context, id ledger.ExpenseID) (ledger.Expense, error) {
	return v.m.getExpenseLocked(id)
}

func (v *txView) ListExpenses(_ context.Context, company string) ([]ledger.Expense, error) {
	return v.m.listExpensesLocked(company), nil
}

func (v *txView) UpdateExpense(_ context.Context, e ledger.Expense, expectVersion int64) error {
	return v.m.updateExpenseLocked(e, expectVersion)
}

func (v *txView) MarkOperation(_ context.Context, op ledger.OperationID) error {
	return v.m.markOperationLocked(op)
}

func (v *txView) PutGroup(_ context.Context, g ledger.SplitGroup) error {
	return v.m.putGroupLocked(g)
}

func (v *txView) GetGroup(_ context.Context, id ledger.GroupID) (ledger.SplitGroup, error) {
	return v.m.getGroupLocked(id)
}

func (v *txView) UpdateGroup(_ context.Context, g ledger.SplitGroup) error {
	return v.m.updateGroupLocked(g)
}

func (v *txView) ListGroups(_ context.Context) ([]ledger.SplitGroup, error) {
	return v.m.listGroupsLocked(), nil
}

func (v *txView) PutAdvance(_ context.Context, a ledger.Advance) error {
	return v.m.putAdvanceLocked(a)
}

func (v *txView) GetAdvance(_ context.Context, id ledger.AdvanceID) (ledger.Advance, error) {
	return v.m.getAdvanceLocked(id)
}

func (v *txView) ListAdvances(_ context.Context, company string) ([]ledger.Advance, error) {
	return v.m.listAdvancesLocked(company), nil
}

func (v *txView) UpdateAdvance(_ context.Context, a ledger.Advance, expectVersion int64) error {
	return v.m.updateAdvanceLocked(a, expectVersion)
}

func (v *txView) PutCase(_ context.Context, c ledger.Case) error {
	return v.m.putCaseLocked(c)
}

func (v *txView) GetCase(_ context.Context, id ledger.CaseID) (ledger.Case, error) {
	return v.m.getCaseLocked(id)
}

func (v *txView) ListCases(_ context.Context, f ledger.CaseFilter) ([]ledger.Case, error) {
	return v.m.listCasesLocked(f), nil
}

func (v *txView) UpdateCase(_ context.Context, c ledger.Case, expectVersion int64) error {
	return v.m.updateCaseLocked(c, expectVersion)
}

func (v *txView) FindOpenCase(_ context.Context, subject ledger.CaseSubject, reason ledger.ReasonCode) (ledger.Case, bool, error) {
	return v.m.findOpenCaseLocked(subject, reason)
}

func (v *txView) AppendHistory(_ context.Context, entry ledger.HistoryEntry) error {
	return v.m.appendHistoryLocked(entry)
}

func (v *txView) CaseHistory(_ context.Context, id ledger.CaseID) ([]ledger.HistoryEntry, error) {
	return v.m.caseHistoryLocked(id), nil
}

func (v *txView) PutRule(_ context.Context, r ledger.Rule) error {
	return v.m.putRuleLocked(r)
}

func (v *txView) ListRules(_ context.Context, company string) ([]ledger.Rule, error) {
	return v.m.listRulesLocked(company), nil
}

func (v *txView) DeleteRule(_ context.Context, id ledger.RuleID) error {
	return v.m.deleteRuleLocked(id)
}

func (v *txView) SaveSweepRun(_ context.Context, run ledger.SweepRun) error {
	return v.m.saveSweepRunLocked(run)
}

func (v *txView) ListSweepRuns(_ context.Context) ([]ledger.SweepRun, error) {
	out := make([]ledger.SweepRun, len(v.m.sweeps))
	copy(out, v.m.sweeps)
	return out, nil
}
