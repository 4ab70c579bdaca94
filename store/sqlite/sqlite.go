/*
Package sqlite provides a SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

OPTIMISTIC CONCURRENCY:
  Every mutable row carries a version column. Updates are conditional:
  UPDATE ... WHERE id = ? AND version = ?. Zero affected rows means
  either the record is gone (NotFound) or someone else won the write
  (ConcurrencyConflict).

IDEMPOTENCY:
  applied_ops records every operation id with a unique primary key.
  INSERT OR IGNORE distinguishes a fresh id from a repeat without a
  separate read.

TRANSACTIONS:
  WithTx wraps a function in one sql.Tx. Split-group creation spans
  several rows; either everything commits or nothing does. The
  in-memory store mirrors these semantics with snapshot rollback.

KEY TABLES:
  movements:     Bank-reported transactions with allocation totals
  expenses:      Expense records with reconciliation totals
  applied_ops:   Idempotency keys for delta mutations
  split_groups:  One row per logical partial match
  split_members: Append-only member rows of each group
  advances:      Employee advance lifecycle
  cases:         Non-reconciliation cases
  case_history:  Append-only case transition log
  rules:         Escalation rules
  sweep_runs:    Audit rows of escalation sweeps

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/recon.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/recon-engine/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Bank movements
	CREATE TABLE IF NOT EXISTS movements (
		id TEXT PRIMARY KEY,
		company TEXT NOT NULL,
		amount_units INTEGER NOT NULL,
		currency TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		mode TEXT NOT NULL,
		allocated_units INTEGER NOT NULL DEFAULT 0,
		split_group TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_company ON movements(company);
	CREATE INDEX IF NOT EXISTS idx_movements_split_group
		ON movements(split_group) WHERE split_group != '';

	-- Expense records
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		company TEXT NOT NULL,
		amount_units INTEGER NOT NULL,
		currency TEXT NOT NULL,
		date TEXT NOT NULL,
		mode TEXT NOT NULL,
		reconciled_units INTEGER NOT NULL DEFAULT 0,
		is_advance BOOLEAN NOT NULL DEFAULT FALSE,
		advance_ref TEXT NOT NULL DEFAULT '',
		reimbursement TEXT NOT NULL DEFAULT 'not_required',
		split_group TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_company ON expenses(company);
	CREATE INDEX IF NOT EXISTS idx_expenses_split_group
		ON expenses(split_group) WHERE split_group != '';

	-- Idempotency keys for delta mutations
	CREATE TABLE IF NOT EXISTS applied_ops (
		id TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	);

	-- Split groups
	CREATE TABLE IF NOT EXISTS split_groups (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		target_expense TEXT NOT NULL DEFAULT '',
		target_movement TEXT NOT NULL DEFAULT '',
		target_units INTEGER NOT NULL,
		allocated_units INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		complete BOOLEAN NOT NULL DEFAULT FALSE,
		revision INTEGER NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Split members, one row per (expense, movement) pairing
	CREATE TABLE IF NOT EXISTS split_members (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id TEXT NOT NULL,
		expense_id TEXT NOT NULL,
		movement_id TEXT NOT NULL,
		allocated_units INTEGER NOT NULL,
		currency TEXT NOT NULL,
		percent TEXT,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_split_members_group ON split_members(group_id);

	-- Employee advances
	CREATE TABLE IF NOT EXISTS advances (
		id TEXT PRIMARY KEY,
		company TEXT NOT NULL,
		employee TEXT NOT NULL,
		expense_id TEXT NOT NULL,
		amount_units INTEGER NOT NULL,
		currency TEXT NOT NULL,
		reimbursed_units INTEGER NOT NULL DEFAULT 0,
		channel TEXT NOT NULL,
		status TEXT NOT NULL,
		movement_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_advances_company ON advances(company);
	CREATE INDEX IF NOT EXISTS idx_advances_expense ON advances(expense_id);

	-- Non-reconciliation cases
	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		company TEXT NOT NULL,
		subject_expense TEXT NOT NULL DEFAULT '',
		subject_movement TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		level INTEGER NOT NULL DEFAULT 1,
		next_escalation_at TEXT NOT NULL,
		impact TEXT NOT NULL,
		priority INTEGER NOT NULL,
		amount_units INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_cases_company_status ON cases(company, status);
	CREATE INDEX IF NOT EXISTS idx_cases_due ON cases(next_escalation_at);
	CREATE INDEX IF NOT EXISTS idx_cases_subject
		ON cases(subject_expense, subject_movement, reason);

	-- Case history (append-only)
	CREATE TABLE IF NOT EXISTS case_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		case_id TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		actor TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_case_history_case ON case_history(case_id);

	-- Escalation rules
	CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY,
		company TEXT NOT NULL,
		reason_codes_json TEXT NOT NULL DEFAULT '[]',
		categories_json TEXT NOT NULL DEFAULT '[]',
		min_units INTEGER,
		max_units INTEGER,
		currency TEXT NOT NULL DEFAULT '',
		escalate_after_days INTEGER NOT NULL,
		priority INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_company_priority ON rules(company, priority);

	-- Sweep audit rows
	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		examined INTEGER NOT NULL DEFAULT 0,
		escalated INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func isConstraintErr(err error) bool {
	if serr, ok := err.(sqlite3.Error); ok {
		return serr.Code == sqlite3.ErrConstraint
	}
	return false
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func (s *Store) PutMovement(ctx context.Context, m ledger.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putMovement(ctx, s.db, m)
}

func putMovement(ctx context.Context, db dbtx, m ledger.Movement) error {
	if m.Version == 0 {
		m.Version = 1
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO movements
		(id, company, amount_units, currency, date, status, mode,
		 allocated_units, split_group, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Company, m.Amount.Units, m.Amount.Currency, fmtTime(m.Date),
		m.Status, m.Mode, m.Allocated.Units, m.SplitGroup, m.Version,
		fmtTime(m.CreatedAt),
	)
	if err != nil && isConstraintErr(err) {
		return fmt.Errorf("movement %s already exists: %w", m.ID, ledger.ErrInvalidState)
	}
	return err
}

func (s *Store) GetMovement(ctx context.Context, id ledger.MovementID) (ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getMovement(ctx, s.db, id)
}

func getMovement(ctx context.Context, db dbtx, id ledger.MovementID) (ledger.Movement, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, company, amount_units, currency, date, status, mode,
		       allocated_units, split_group, version, created_at
		FROM movements WHERE id = ?`, id)
	return scanMovement(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (ledger.Movement, error) {
	var m ledger.Movement
	var units, allocated int64
	var currency, date, createdAt string
	err := row.Scan(&m.ID, &m.Company, &units, &currency, &date, &m.Status,
		&m.Mode, &allocated, &m.SplitGroup, &m.Version, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.Movement{}, fmt.Errorf("movement: %w", ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Movement{}, err
	}
	c := ledger.Currency(currency)
	m.Amount = ledger.NewAmount(units, c)
	m.Allocated = ledger.NewAmount(allocated, c)
	m.Date = parseTime(date)
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

func (s *Store) ListMovements(ctx context.Context, company string) ([]ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listMovements(ctx, s.db, company)
}

func listMovements(ctx context.Context, db dbtx, company string) ([]ledger.Movement, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, company, amount_units, currency, date, status, mode,
		       allocated_units, split_group, version, created_at
		FROM movements
		WHERE (? = '' OR company = ?)
		ORDER BY id`, company, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateMovement(ctx context.Context, m ledger.Movement, expectVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMovement(ctx, s.db, m, expectVersion)
}

func updateMovement(ctx context.Context, db dbtx, m ledger.Movement, expectVersion int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE movements
		SET company = ?, amount_units = ?, currency = ?, date = ?, status = ?,
		    mode = ?, allocated_units = ?, split_group = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		m.Company, m.Amount.Units, m.Amount.Currency, fmtTime(m.Date), m.Status,
		m.Mode, m.Allocated.Units, m.SplitGroup, m.ID, expectVersion,
	)
	if err != nil {
		return err
	}
	return checkConditionalWrite(ctx, db, res, "movements", string(m.ID))
}

// checkConditionalWrite distinguishes the two reasons a version-guarded
// UPDATE can touch zero rows.
func checkConditionalWrite(ctx context.Context, db dbtx, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, table), id).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s %s: %w", table, id, ledger.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return ledger.ErrConcurrencyConflict
}

// =============================================================================
// EXPENSES
// =============================================================================

func (s *Store) PutExpense(ctx context.Context, e ledger.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putExpense(ctx, s.db, e)
}

func putExpense(ctx context.Context, db dbtx, e ledger.Expense) error {
	if e.Version == 0 {
		e.Version = 1
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Reimbursement == "" {
		e.Reimbursement = ledger.ReimburseNotRequired
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO expenses
		(id, company, amount_units, currency, date, mode, reconciled_units,
		 is_advance, advance_ref, reimbursement, split_group, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Company, e.Amount.Units, e.Amount.Currency, fmtTime(e.Date),
		e.Mode, e.Reconciled.Units, e.IsAdvance, e.AdvanceRef, e.Reimbursement,
		e.SplitGroup, e.Version, fmtTime(e.CreatedAt),
	)
	if err != nil && isConstraintErr(err) {
		return fmt.Errorf("expense %s already exists: %w", e.ID, ledger.ErrInvalidState)
	}
	return err
}

func (s *Store) GetExpense(ctx context.Context, id ledger.ExpenseID) (ledger.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getExpense(ctx, s.db, id)
}

func getExpense(ctx context.Context, db dbtx, id ledger.ExpenseID) (ledger.Expense, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, company, amount_units, currency, date, mode, reconciled_units,
		       is_advance, advance_ref, reimbursement, split_group, version, created_at
		FROM expenses WHERE id = ?`, id)
	return scanExpense(row)
}

func scanExpense(row rowScanner) (ledger.Expense, error) {
	var e ledger.Expense
	var units, reconciled int64
	var currency, date, createdAt string
	err := row.Scan(&e.ID, &e.Company, &units, &currency, &date, &e.Mode,
		&reconciled, &e.IsAdvance, &e.AdvanceRef, &e.Reimbursement,
		&e.SplitGroup, &e.Version, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.Expense{}, fmt.Errorf("expense: %w", ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Expense{}, err
	}
	c := ledger.Currency(currency)
	e.Amount = ledger.NewAmount(units, c)
	e.Reconciled = ledger.NewAmount(reconciled, c)
	e.Date = parseTime(date)
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, company string) ([]ledger.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listExpenses(ctx, s.db, company)
}

func listExpenses(ctx context.Context, db dbtx, company string) ([]ledger.Expense, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, company, amount_units, currency, date, mode, reconciled_units,
		       is_advance, advance_ref, reimbursement, split_group, version, created_at
		FROM expenses
		WHERE (? = '' OR company = ?)
		ORDER BY id`, company, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpdateExpense(ctx context.Context, e ledger.Expense, expectVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateExpense(ctx, s.db, e, expectVersion)
}

func updateExpense(ctx context.Context, db dbtx, e ledger.Expense, expectVersion int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE expenses
		SET company = ?, amount_units = ?, currency = ?, date = ?, mode = ?,
		    reconciled_units = ?, is_advance = ?, advance_ref = ?,
		    reimbursement = ?, split_group = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		e.Company, e.Amount.Units, e.Amount.Currency, fmtTime(e.Date), e.Mode,
		e.Reconciled.Units, e.IsAdvance, e.AdvanceRef, e.Reimbursement,
		e.SplitGroup, e.ID, expectVersion,
	)
	if err != nil {
		return err
	}
	return checkConditionalWrite(ctx, db, res, "expenses", string(e.ID))
}

// =============================================================================
// APPLIED OPERATIONS
// =============================================================================

func (s *Store) MarkOperation(ctx context.Context, op ledger.OperationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markOperation(ctx, s.db, op)
}

func markOperation(ctx context.Context, db dbtx, op ledger.OperationID) error {
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO applied_ops (id, applied_at) VALUES (?, ?)`,
		op, fmtTime(time.Now()))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrDuplicateOperation
	}
	return nil
}

// =============================================================================
// SPLIT GROUPS
// =============================================================================

func (s *Store) PutGroup(ctx context.Context, g ledger.SplitGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putGroup(ctx, s.db, g)
}

func putGroup(ctx context.Context, db dbtx, g ledger.SplitGroup) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO split_groups
		(id, type, target_expense, target_movement, target_units,
		 allocated_units, currency, status, complete, revision, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Type, g.TargetExpense, g.TargetMovement, g.TargetAmount.Units,
		g.Allocated.Units, g.TargetAmount.Currency, g.Status, g.Complete,
		g.Revision, g.CreatedBy, fmtTime(g.CreatedAt),
	)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("split group %s already exists: %w", g.ID, ledger.ErrInvalidState)
		}
		return err
	}
	return insertMembers(ctx, db, g)
}

func insertMembers(ctx context.Context, db dbtx, g ledger.SplitGroup) error {
	for _, m := range g.Members {
		var percent any
		if m.Percent != nil {
			percent = m.Percent.String()
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO split_members
			(group_id, expense_id, movement_id, allocated_units, currency,
			 percent, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID, m.Expense, m.Movement, m.Allocated.Units,
			m.Allocated.Currency, percent, m.Note, fmtTime(m.CreatedAt),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id ledger.GroupID) (ledger.SplitGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getGroup(ctx, s.db, id)
}

func getGroup(ctx context.Context, db dbtx, id ledger.GroupID) (ledger.SplitGroup, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, type, target_expense, target_movement, target_units,
		       allocated_units, currency, status, complete, revision,
		       created_by, created_at
		FROM split_groups WHERE id = ?`, id)

	var g ledger.SplitGroup
	var target, allocated int64
	var currency, createdAt string
	err := row.Scan(&g.ID, &g.Type, &g.TargetExpense, &g.TargetMovement,
		&target, &allocated, &currency, &g.Status, &g.Complete, &g.Revision,
		&g.CreatedBy, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.SplitGroup{}, fmt.Errorf("split group %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.SplitGroup{}, err
	}
	c := ledger.Currency(currency)
	g.TargetAmount = ledger.NewAmount(target, c)
	g.Allocated = ledger.NewAmount(allocated, c)
	g.CreatedAt = parseTime(createdAt)

	g.Members, err = listMembers(ctx, db, id, c)
	return g, err
}

func listMembers(ctx context.Context, db dbtx, id ledger.GroupID, currency ledger.Currency) ([]ledger.SplitMember, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT group_id, expense_id, movement_id, allocated_units, percent, note, created_at
		FROM split_members WHERE group_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.SplitMember
	for rows.Next() {
		var m ledger.SplitMember
		var units int64
		var percent sql.NullString
		var createdAt string
		if err := rows.Scan(&m.GroupID, &m.Expense, &m.Movement, &units,
			&percent, &m.Note, &createdAt); err != nil {
			return nil, err
		}
		m.Allocated = ledger.NewAmount(units, currency)
		if percent.Valid {
			d, err := decimal.NewFromString(percent.String)
			if err != nil {
				return nil, fmt.Errorf("split member percent: %w", err)
			}
			m.Percent = &d
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateGroup(ctx context.Context, g ledger.SplitGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateGroup(ctx, s.db, g)
}

func updateGroup(ctx context.Context, db dbtx, g ledger.SplitGroup) error {
	res, err := db.ExecContext(ctx, `
		UPDATE split_groups
		SET type = ?, target_expense = ?, target_movement = ?, target_units = ?,
		    allocated_units = ?, currency = ?, status = ?, complete = ?, revision = ?
		WHERE id = ?`,
		g.Type, g.TargetExpense, g.TargetMovement, g.TargetAmount.Units,
		g.Allocated.Units, g.TargetAmount.Currency, g.Status, g.Complete,
		g.Revision, g.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("split group %s: %w", g.ID, ledger.ErrNotFound)
	}
	// Member rows are replaced wholesale on revision.
	if _, err := db.ExecContext(ctx,
		`DELETE FROM split_members WHERE group_id = ?`, g.ID); err != nil {
		return err
	}
	return insertMembers(ctx, db, g)
}

func (s *Store) ListGroups(ctx context.Context) ([]ledger.SplitGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listGroups(ctx, s.db)
}

func listGroups(ctx context.Context, db dbtx) ([]ledger.SplitGroup, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM split_groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []ledger.GroupID
	for rows.Next() {
		var id ledger.GroupID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ledger.SplitGroup, 0, len(ids))
	for _, id := range ids {
		g, err := getGroup(ctx, db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// =============================================================================
// ADVANCES
// =============================================================================

func (s *Store) PutAdvance(ctx context.Context, a ledger.Advance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putAdvance(ctx, s.db, a)
}

func putAdvance(ctx context.Context, db dbtx, a ledger.Advance) error {
	if a.Version == 0 {
		a.Version = 1
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO advances
		(id, company, employee, expense_id, amount_units, currency,
		 reimbursed_units, channel, status, movement_id, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Company, a.Employee, a.Expense, a.Amount.Units,
		a.Amount.Currency, a.Reimbursed.Units, a.Channel, a.Status,
		a.Movement, a.Version, fmtTime(a.CreatedAt),
	)
	if err != nil && isConstraintErr(err) {
		return fmt.Errorf("advance %s already exists: %w", a.ID, ledger.ErrInvalidState)
	}
	return err
}

func (s *Store) GetAdvance(ctx context.Context, id ledger.AdvanceID) (ledger.Advance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getAdvance(ctx, s.db, id)
}

func getAdvance(ctx context.Context, db dbtx, id ledger.AdvanceID) (ledger.Advance, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, company, employee, expense_id, amount_units, currency,
		       reimbursed_units, channel, status, movement_id, version, created_at
		FROM advances WHERE id = ?`, id)
	return scanAdvance(row)
}

func scanAdvance(row rowScanner) (ledger.Advance, error) {
	var a ledger.Advance
	var units, reimbursed int64
	var currency, createdAt string
	err := row.Scan(&a.ID, &a.Company, &a.Employee, &a.Expense, &units,
		&currency, &reimbursed, &a.Channel, &a.Status, &a.Movement,
		&a.Version, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.Advance{}, fmt.Errorf("advance: %w", ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Advance{}, err
	}
	c := ledger.Currency(currency)
	a.Amount = ledger.NewAmount(units, c)
	a.Reimbursed = ledger.NewAmount(reimbursed, c)
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

func (s *Store) ListAdvances(ctx context.Context, company string) ([]ledger.Advance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listAdvances(ctx, s.db, company)
}

func listAdvances(ctx context.Context, db dbtx, company string) ([]ledger.Advance, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, company, employee, expense_id, amount_units, currency,
		       reimbursed_units, channel, status, movement_id, version, created_at
		FROM advances
		WHERE (? = '' OR company = ?)
		ORDER BY id`, company, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Advance
	for rows.Next() {
		a, err := scanAdvance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAdvance(ctx context.Context, a ledger.Advance, expectVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAdvance(ctx, s.db, a, expectVersion)
}

func updateAdvance(ctx context.Context, db dbtx, a ledger.Advance, expectVersion int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE advances
		SET company = ?, employee = ?, expense_id = ?, amount_units = ?,
		    currency = ?, reimbursed_units = ?, channel = ?, status = ?,
		    movement_id = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		a.Company, a.Employee, a.Expense, a.Amount.Units, a.Amount.Currency,
		a.Reimbursed.Units, a.Channel, a.Status, a.Movement, a.ID, expectVersion,
	)
	if err != nil {
		return err
	}
	return checkConditionalWrite(ctx, db, res, "advances", string(a.ID))
}

// =============================================================================
// CASES
// =============================================================================

func (s *Store) PutCase(ctx context.Context, c ledger.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putCase(ctx, s.db, c)
}

func putCase(ctx context.Context, db dbtx, c ledger.Case) error {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	var resolvedAt any
	if c.ResolvedAt != nil {
		resolvedAt = fmtTime(*c.ResolvedAt)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO cases
		(id, company, subject_expense, subject_movement, reason, status, level,
		 next_escalation_at, impact, priority, amount_units, currency, note,
		 version, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Company, c.Subject.Expense, c.Subject.Movement, c.Reason,
		c.Status, c.Level, fmtTime(c.NextEscalationAt), c.Impact, c.Priority,
		c.Amount.Units, c.Amount.Currency, c.Note, c.Version,
		fmtTime(c.CreatedAt), resolvedAt,
	)
	if err != nil && isConstraintErr(err) {
		return fmt.Errorf("case %s already exists: %w", c.ID, ledger.ErrInvalidState)
	}
	return err
}

func (s *Store) GetCase(ctx context.Context, id ledger.CaseID) (ledger.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getCase(ctx, s.db, id)
}

const caseColumns = `id, company, subject_expense, subject_movement, reason,
	status, level, next_escalation_at, impact, priority, amount_units,
	currency, note, version, created_at, resolved_at`

func getCase(ctx context.Context, db dbtx, id ledger.CaseID) (ledger.Case, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	return scanCase(row)
}

func scanCase(row rowScanner) (ledger.Case, error) {
	var c ledger.Case
	var units int64
	var currency, nextAt, createdAt string
	var resolvedAt sql.NullString
	err := row.Scan(&c.ID, &c.Company, &c.Subject.Expense, &c.Subject.Movement,
		&c.Reason, &c.Status, &c.Level, &nextAt, &c.Impact, &c.Priority,
		&units, &currency, &c.Note, &c.Version, &createdAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return ledger.Case{}, fmt.Errorf("case: %w", ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Case{}, err
	}
	c.Amount = ledger.NewAmount(units, ledger.Currency(currency))
	c.NextEscalationAt = parseTime(nextAt)
	c.CreatedAt = parseTime(createdAt)
	if resolvedAt.Valid {
		t := parseTime(resolvedAt.String)
		c.ResolvedAt = &t
	}
	return c, nil
}

func (s *Store) ListCases(ctx context.Context, f ledger.CaseFilter) ([]ledger.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listCases(ctx, s.db, f)
}

func listCases(ctx context.Context, db dbtx, f ledger.CaseFilter) ([]ledger.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE 1=1`
	var args []any
	if f.Company != "" {
		query += ` AND company = ?`
		args = append(args, f.Company)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Reason != "" {
		query += ` AND reason = ?`
		args = append(args, f.Reason)
	}
	if f.OpenOnly {
		query += ` AND status NOT IN ('resolved', 'dismissed')`
	}
	if f.DueBefore != nil {
		// RFC3339 in UTC compares lexicographically.
		query += ` AND next_escalation_at < ?`
		args = append(args, fmtTime(*f.DueBefore))
	}
	if f.Subject != nil {
		query += ` AND subject_expense = ? AND subject_movement = ?`
		args = append(args, f.Subject.Expense, f.Subject.Movement)
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCase(ctx context.Context, c ledger.Case, expectVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateCase(ctx, s.db, c, expectVersion)
}

func updateCase(ctx context.Context, db dbtx, c ledger.Case, expectVersion int64) error {
	var resolvedAt any
	if c.ResolvedAt != nil {
		resolvedAt = fmtTime(*c.ResolvedAt)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE cases
		SET company = ?, subject_expense = ?, subject_movement = ?, reason = ?,
		    status = ?, level = ?, next_escalation_at = ?, impact = ?,
		    priority = ?, amount_units = ?, currency = ?, note = ?,
		    resolved_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		c.Company, c.Subject.Expense, c.Subject.Movement, c.Reason, c.Status,
		c.Level, fmtTime(c.NextEscalationAt), c.Impact, c.Priority,
		c.Amount.Units, c.Amount.Currency, c.Note, resolvedAt, c.ID, expectVersion,
	)
	if err != nil {
		return err
	}
	return checkConditionalWrite(ctx, db, res, "cases", string(c.ID))
}

func (s *Store) FindOpenCase(ctx context.Context, subject ledger.CaseSubject, reason ledger.ReasonCode) (ledger.Case, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findOpenCase(ctx, s.db, subject, reason)
}

func findOpenCase(ctx context.Context, db dbtx, subject ledger.CaseSubject, reason ledger.ReasonCode) (ledger.Case, bool, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+caseColumns+` FROM cases
		WHERE subject_expense = ? AND subject_movement = ? AND reason = ?
		  AND status NOT IN ('resolved', 'dismissed')
		LIMIT 1`,
		subject.Expense, subject.Movement, reason)
	c, err := scanCase(row)
	if ledger.IsNotFound(err) {
		return ledger.Case{}, false, nil
	}
	if err != nil {
		return ledger.Case{}, false, err
	}
	return c, true, nil
}

// =============================================================================
// CASE HISTORY
// =============================================================================

func (s *Store) AppendHistory(ctx context.Context, entry ledger.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendHistory(ctx, s.db, entry)
}

func appendHistory(ctx context.Context, db dbtx, entry ledger.HistoryEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO case_history (case_id, from_status, to_status, actor, note, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.CaseID, entry.From, entry.To, entry.Actor, entry.Note, fmtTime(entry.At))
	return err
}

func (s *Store) CaseHistory(ctx context.Context, id ledger.CaseID) ([]ledger.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return caseHistory(ctx, s.db, id)
}

func caseHistory(ctx context.Context, db dbtx, id ledger.CaseID) ([]ledger.HistoryEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT case_id, from_status, to_status, actor, note, at
		FROM case_history WHERE case_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.HistoryEntry
	for rows.Next() {
		var e ledger.HistoryEntry
		var at string
		if err := rows.Scan(&e.CaseID, &e.From, &e.To, &e.Actor, &e.Note, &at); err != nil {
			return nil, err
		}
		e.At = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// RULES
// =============================================================================

func (s *Store) PutRule(ctx context.Context, r ledger.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putRule(ctx, s.db, r)
}

func putRule(ctx context.Context, db dbtx, r ledger.Rule) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	codes, _ := json.Marshal(r.ReasonCodes)
	cats, _ := json.Marshal(r.Categories)

	var minUnits, maxUnits any
	var currency ledger.Currency
	if r.MinAmount != nil {
		minUnits = r.MinAmount.Units
		currency = r.MinAmount.Currency
	}
	if r.MaxAmount != nil {
		// Both bounds share one currency column.
		if r.MinAmount != nil && r.MinAmount.Currency != r.MaxAmount.Currency {
			return fmt.Errorf("rule %s: %w", r.ID, ledger.ErrCurrencyMismatch)
		}
		maxUnits = r.MaxAmount.Units
		currency = r.MaxAmount.Currency
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO rules
		(id, company, reason_codes_json, categories_json, min_units, max_units,
		 currency, escalate_after_days, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 company = excluded.company,
		 reason_codes_json = excluded.reason_codes_json,
		 categories_json = excluded.categories_json,
		 min_units = excluded.min_units,
		 max_units = excluded.max_units,
		 currency = excluded.currency,
		 escalate_after_days = excluded.escalate_after_days,
		 priority = excluded.priority`,
		r.ID, r.Company, string(codes), string(cats), minUnits, maxUnits,
		currency, r.EscalateAfterDays, r.Priority, fmtTime(r.CreatedAt),
	)
	return err
}

func (s *Store) ListRules(ctx context.Context, company string) ([]ledger.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listRules(ctx, s.db, company)
}

func listRules(ctx context.Context, db dbtx, company string) ([]ledger.Rule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, company, reason_codes_json, categories_json, min_units,
		       max_units, currency, escalate_after_days, priority, created_at
		FROM rules
		WHERE (? = '' OR company = ?)
		ORDER BY priority, id`, company, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Rule
	for rows.Next() {
		var r ledger.Rule
		var codes, cats, currency, createdAt string
		var minUnits, maxUnits sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Company, &codes, &cats, &minUnits,
			&maxUnits, &currency, &r.EscalateAfterDays, &r.Priority, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(codes), &r.ReasonCodes); err != nil {
			return nil, fmt.Errorf("rule %s reason codes: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(cats), &r.Categories); err != nil {
			return nil, fmt.Errorf("rule %s categories: %w", r.ID, err)
		}
		c := ledger.Currency(currency)
		if minUnits.Valid {
			a := ledger.NewAmount(minUnits.Int64, c)
			r.MinAmount = &a
		}
		if maxUnits.Valid {
			a := ledger.NewAmount(maxUnits.Int64, c)
			r.MaxAmount = &a
		}
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRule(ctx context.Context, id ledger.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	return err
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

func (s *Store) SaveSweepRun(ctx context.Context, run ledger.SweepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSweepRun(ctx, s.db, run)
}

func saveSweepRun(ctx context.Context, db dbtx, run ledger.SweepRun) error {
	var completedAt any
	if run.CompletedAt != nil {
		completedAt = fmtTime(*run.CompletedAt)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sweep_runs
		(id, started_at, completed_at, examined, escalated, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 completed_at = excluded.completed_at,
		 examined = excluded.examined,
		 escalated = excluded.escalated,
		 failed = excluded.failed,
		 error = excluded.error`,
		run.ID, fmtTime(run.StartedAt), completedAt, run.Examined,
		run.Escalated, run.Failed, run.Error,
	)
	return err
}

func (s *Store) ListSweepRuns(ctx context.Context) ([]ledger.SweepRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, examined, escalated, failed, error
		FROM sweep_runs ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.SweepRun
	for rows.Next() {
		var run ledger.SweepRun
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&run.ID, &startedAt, &completedAt, &run.Examined,
			&run.Escalated, &run.Failed, &run.Error); err != nil {
			return nil, err
		}
		run.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			run.CompletedAt = &t
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside one sql.Tx. The store mutex is held for the
// duration so a single writer owns the database, matching SQLite's own
// write model.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&txStore{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// txStore is the transactional view handed to WithTx callbacks. It
// reuses the package query helpers against the open sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) PutMovement(ctx context.Context, m ledger.Movement) error {
	return putMovement(ctx, t.tx, m)
}

func (t *txStore) GetMovement(ctx context.Context, id ledger.MovementID) (ledger.Movement, error) {
	return getMovement(ctx, t.tx, id)
}

func (t *txStore) ListMovements(ctx context.Context, company string) ([]ledger.Movement, error) {
	return listMovements(ctx, t.tx, company)
}

func (t *txStore) UpdateMovement(ctx context.Context, m ledger.Movement, expectVersion int64) error {
	return updateMovement(ctx, t.tx, m, expectVersion)
}

func (t *txStore) PutExpense(ctx context.Context, e ledger.Expense) error {
	return putExpense(ctx, t.tx, e)
}

func (t *txStore) GetExpense(ctx context.Context, id ledger.ExpenseID) (ledger.Expense, error) {
	return getExpense(ctx, t.tx, id)
}

func (t *txStore) ListExpenses(ctx context.Context, company string) ([]ledger.Expense, error) {
	return listExpenses(ctx, t.tx, company)
}

func (t *txStore) UpdateExpense(ctx context.Context, e ledger.Expense, expectVersion int64) error {
	return updateExpense(ctx, t.tx, e, expectVersion)
}

func (t *txStore) MarkOperation(ctx context.Context, op ledger.OperationID) error {
	return markOperation(ctx, t.tx, op)
}

func (t *txStore) PutGroup(ctx context.Context, g ledger.SplitGroup) error {
	return putGroup(ctx, t.tx, g)
}

func (t *txStore) GetGroup(ctx context.Context, id ledger.GroupID) (ledger.SplitGroup, error) {
	return getGroup(ctx, t.tx, id)
}

func (t *txStore) UpdateGroup(ctx context.Context, g ledger.SplitGroup) error {
	return updateGroup(ctx, t.tx, g)
}

func (t *txStore) ListGroups(ctx context.Context) ([]ledger.SplitGroup, error) {
	return listGroups(ctx, t.tx)
}

func (t *txStore) PutAdvance(ctx context.Context, a ledger.Advance) error {
	return putAdvance(ctx, t.tx, a)
}

func (t *txStore) GetAdvance(ctx context.Context, id ledger.AdvanceID) (ledger.Advance, error) {
	return getAdvance(ctx, t.tx, id)
}

func (t *txStore) ListAdvances(ctx context.Context, company string) ([]ledger.Advance, error) {
	return listAdvances(ctx, t.tx, company)
}

func (t *txStore) UpdateAdvance(ctx context.Context, a ledger.Advance, expectVersion int64) error {
	return updateAdvance(ctx, t.tx, a, expectVersion)
}

func (t *txStore) PutCase(ctx context.Context, c ledger.Case) error {
	return putCase(ctx, t.tx, c)
}

func (t *txStore) GetCase(ctx context.Context, id ledger.CaseID) (ledger.Case, error) {
	return getCase(ctx, t.tx, id)
}

func (t *txStore) ListCases(ctx context.Context, f ledger.CaseFilter) ([]ledger.Case, error) {
	return listCases(ctx, t.tx, f)
}

func (t *txStore) UpdateCase(ctx context.Context, c ledger.Case, expectVersion int64) error {
	return updateCase(ctx, t.tx, c, expectVersion)
}

func (t *txStore) FindOpenCase(ctx context.Context, subject ledger.CaseSubject, reason ledger.ReasonCode) (ledger.Case, bool, error) {
	return findOpenCase(ctx, t.tx, subject, reason)
}

func (t *txStore) AppendHistory(ctx context.Context, entry ledger.HistoryEntry) error {
	return appendHistory(ctx, t.tx, entry)
}

func (t *txStore) CaseHistory(ctx context.Context, id ledger.CaseID) ([]ledger.HistoryEntry, error) {
	return caseHistory(ctx, t.tx, id)
}

func (t *txStore) PutRule(ctx context.Context, r ledger.Rule) error {
	return putRule(ctx, t.tx, r)
}

func (t *txStore) ListRules(ctx context.Context, company string) ([]ledger.Rule, error) {
	return listRules(ctx, t.tx, company)
}

func (t *txStore) DeleteRule(ctx context.Context, id ledger.RuleID) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	return err
}

func (t *txStore) SaveSweepRun(ctx context.Context, run ledger.SweepRun) error {
	return saveSweepRun(ctx, t.tx, run)
}

func (t *txStore) ListSweepRuns(ctx context.Context) ([]ledger.SweepRun, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, started_at, completed_at, examined, escalated, failed, error
		FROM sweep_runs ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.SweepRun
	for rows.Next() {
		var run ledger.SweepRun
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&run.ID, &startedAt, &completedAt, &run.Examined,
			&run.Escalated, &run.Failed, &run.Error); err != nil {
			return nil, err
		}
		run.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			run.CompletedAt = &t
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
