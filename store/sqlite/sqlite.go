/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements billing.Store and billing.TxStore using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

CONSTRAINTS AS ARBITERS:
  Two unique indexes carry the engine's integrity invariants:
  - idx_unique_active_rule: at most one ACTIVE fee rule per
    (fee_item, class, term) triple. The IFNULL collapses the nullable
    term_id so two general-default rules also collide.
  - term_enrollments(student_id, term_id): one enrollment per student
    per term; the final arbiter for concurrent draft creation.
  Violations are mapped to billing.ErrDuplicateRule and
  billing.ErrEnrollmentExists so the engine can treat them as typed
  outcomes, not generic SQL failures.

APPEND-ONLY:
  The payments table has INSERT and SELECT statements only. No UPDATE
  or DELETE for it exists in this file.

CONCURRENCY:
  A sync.RWMutex serializes writers; WithTx holds the write lock for
  the whole unit of work, so a fresh read inside the transaction is
  atomic with respect to other mutations - the equivalent of row
  locking on a bigger database. Statements inside WithTx run on the
  *sql.Tx directly, never back through the locked public methods.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys on.

USAGE:
  store, err := sqlite.New("./data/enrollment.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions and the constraint contract
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/billing"
)

// dbtx is the subset of *sql.DB / *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements billing.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
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
	-- Fee item catalog
	CREATE TABLE IF NOT EXISTS fee_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	-- Fee rules: class-level defaults and term-specific overrides
	CREATE TABLE IF NOT EXISTS fee_item_rules (
		id TEXT PRIMARY KEY,
		fee_item_id TEXT NOT NULL REFERENCES fee_items(id),
		class_id TEXT NOT NULL,
		term_id TEXT,
		amount TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_class
		ON fee_item_rules(class_id) WHERE active = 1;

	-- CRITICAL: at most one active rule per (fee_item, class, term).
	-- IFNULL folds the nullable term_id so two general defaults
	-- collide too. This index, not the service-layer pre-check,
	-- decides duplicate-rule races.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_active_rule
		ON fee_item_rules(fee_item_id, class_id, IFNULL(term_id, ''))
		WHERE active = 1;

	-- Optional services (parent opt-ins)
	CREATE TABLE IF NOT EXISTS optional_services (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL
	);

	-- Installment plans; the percentage schedule is stored as JSON
	CREATE TABLE IF NOT EXISTS installment_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		schedule_json TEXT NOT NULL
	);

	-- Students (written by admission, read here)
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		class_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Academic terms
	CREATE TABLE IF NOT EXISTS terms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Invoices
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		term_id TEXT NOT NULL REFERENCES terms(id),
		installment_plan_id TEXT,
		total_amount TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		balance TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		workflow_status TEXT NOT NULL,
		parent_notes TEXT NOT NULL DEFAULT '',
		finance_notes TEXT NOT NULL DEFAULT '',
		reviewed_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_student_term
		ON invoices(student_id, term_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_workflow_status
		ON invoices(workflow_status);

	-- Invoice line items
	CREATE TABLE IF NOT EXISTS invoice_items (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		source TEXT NOT NULL,
		source_id TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL,
		amount TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice
		ON invoice_items(invoice_id);

	-- CRITICAL: one enrollment per (student, term). The final arbiter
	-- for concurrent draft creation.
	CREATE TABLE IF NOT EXISTS term_enrollments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		term_id TEXT NOT NULL REFERENCES terms(id),
		invoice_id TEXT NOT NULL,
		status TEXT NOT NULL,
		enrolled_at TEXT,
		UNIQUE(student_id, term_id)
	);

	CREATE INDEX IF NOT EXISTS idx_enrollments_invoice
		ON term_enrollments(invoice_id);

	-- Payments (append-only ledger)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		student_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		received_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_invoice
		ON payments(invoice_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction, holding the write
// lock for the whole unit of work. Any error from fn rolls everything
// back.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", billing.ErrPersistence, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", billing.ErrPersistence, err)
	}
	return nil
}

// txStore routes every call through the open transaction. It takes no
// locks: WithTx already holds the write lock.
type txStore struct {
	tx *sql.Tx
}

// =============================================================================
// FEE ITEMS
// =============================================================================

func saveFeeItem(ctx context.Context, db dbtx, item billing.FeeItem) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO fee_items (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		item.ID, item.Name)
	return err
}

func getFeeItem(ctx context.Context, db dbtx, id billing.FeeItemID) (*billing.FeeItem, error) {
	var item billing.FeeItem
	err := db.QueryRowContext(ctx,
		"SELECT id, name FROM fee_items WHERE id = ?", id,
	).Scan(&item.ID, &item.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func listFeeItems(ctx context.Context, db dbtx) ([]billing.FeeItem, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, name FROM fee_items ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []billing.FeeItem
	for rows.Next() {
		var item billing.FeeItem
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) SaveFeeItem(ctx context.Context, item billing.FeeItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveFeeItem(ctx, s.db, item)
}

func (s *Store) GetFeeItem(ctx context.Context, id billing.FeeItemID) (*billing.FeeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getFeeItem(ctx, s.db, id)
}

func (s *Store) ListFeeItems(ctx context.Context) ([]billing.FeeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listFeeItems(ctx, s.db)
}

func (t *txStore) SaveFeeItem(ctx context.Context, item billing.FeeItem) error {
	return saveFeeItem(ctx, t.tx, item)
}

func (t *txStore) GetFeeItem(ctx context.Context, id billing.FeeItemID) (*billing.FeeItem, error) {
	return getFeeItem(ctx, t.tx, id)
}

func (t *txStore) ListFeeItems(ctx context.Context) ([]billing.FeeItem, error) {
	return listFeeItems(ctx, t.tx)
}

// =============================================================================
// FEE RULES
// =============================================================================

const ruleColumns = "id, fee_item_id, class_id, term_id, amount, active, created_at"

func insertRule(ctx context.Context, db dbtx, rule billing.FeeItemRule) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO fee_item_rules (id, fee_item_id, class_id, term_id, amount, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.FeeItemID, rule.ClassID, nullableTermID(rule.TermID),
		rule.Amount.String(), rule.Active, rule.CreatedAt.Format(time.RFC3339))
	return mapConstraintError(err)
}

func updateRule(ctx context.Context, db dbtx, rule billing.FeeItemRule) error {
	res, err := db.ExecContext(ctx, `
		UPDATE fee_item_rules
		SET fee_item_id = ?, class_id = ?, term_id = ?, amount = ?, active = ?
		WHERE id = ?`,
		rule.FeeItemID, rule.ClassID, nullableTermID(rule.TermID),
		rule.Amount.String(), rule.Active, rule.ID)
	if err != nil {
		return mapConstraintError(err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return &billing.NotFoundError{Kind: "fee rule", ID: string(rule.ID)}
	}
	return err
}

func queryRules(ctx context.Context, db dbtx, query string, args ...any) ([]billing.FeeItemRule, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []billing.FeeItemRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(rows *sql.Rows) (billing.FeeItemRule, error) {
	var (
		rule      billing.FeeItemRule
		termID    sql.NullString
		amount    string
		createdAt string
	)
	if err := rows.Scan(&rule.ID, &rule.FeeItemID, &rule.ClassID, &termID,
		&amount, &rule.Active, &createdAt); err != nil {
		return rule, err
	}
	if termID.Valid {
		t := billing.TermID(termID.String)
		rule.TermID = &t
	}
	rule.Amount = billing.MustParseMoney(amount)
	rule.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return rule, nil
}

func getRule(ctx context.Context, db dbtx, id billing.RuleID) (*billing.FeeItemRule, error) {
	rules, err := queryRules(ctx, db,
		"SELECT "+ruleColumns+" FROM fee_item_rules WHERE id = ?", id)
	if err != nil || len(rules) == 0 {
		return nil, err
	}
	return &rules[0], nil
}

func activeRulesForClass(ctx context.Context, db dbtx, classID billing.ClassID) ([]billing.FeeItemRule, error) {
	return queryRules(ctx, db,
		"SELECT "+ruleColumns+" FROM fee_item_rules WHERE class_id = ? AND active = 1 ORDER BY created_at ASC",
		classID)
}

func listRules(ctx context.Context, db dbtx) ([]billing.FeeItemRule, error) {
	return queryRules(ctx, db,
		"SELECT "+ruleColumns+" FROM fee_item_rules ORDER BY created_at ASC")
}

func (s *Store) InsertRule(ctx context.Context, rule billing.FeeItemRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertRule(ctx, s.db, rule)
}

func (s *Store) UpdateRule(ctx context.Context, rule billing.FeeItemRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateRule(ctx, s.db, rule)
}

func (s *Store) GetRule(ctx context.Context, id billing.RuleID) (*billing.FeeItemRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRule(ctx, s.db, id)
}

func (s *Store) ActiveRulesForClass(ctx context.Context, classID billing.ClassID) ([]billing.FeeItemRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeRulesForClass(ctx, s.db, classID)
}

func (s *Store) ListRules(ctx context.Context) ([]billing.FeeItemRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRules(ctx, s.db)
}

func (t *txStore) InsertRule(ctx context.Context, rule billing.FeeItemRule) error {
	return insertRule(ctx, t.tx, rule)
}

func (t *txStore) UpdateRule(ctx context.Context, rule billing.FeeItemRule) error {
	return updateRule(ctx, t.tx, rule)
}

func (t *txStore) GetRule(ctx context.Context, id billing.RuleID) (*billing.FeeItemRule, error) {
	return getRule(ctx, t.tx, id)
}

func (t *txStore) ActiveRulesForClass(ctx context.Context, classID billing.ClassID) ([]billing.FeeItemRule, error) {
	return activeRulesForClass(ctx, t.tx, classID)
}

func (t *txStore) ListRules(ctx context.Context) ([]billing.FeeItemRule, error) {
	return listRules(ctx, t.tx)
}

// =============================================================================
// OPTIONAL SERVICES
// =============================================================================

func saveService(ctx context.Context, db dbtx, svc billing.OptionalService) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO optional_services (id, name, description, amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			amount = excluded.amount`,
		svc.ID, svc.Name, svc.Description, svc.Amount.String())
	return err
}

func getService(ctx context.Context, db dbtx, id billing.ServiceID) (*billing.OptionalService, error) {
	var (
		svc    billing.OptionalService
		amount string
	)
	err := db.QueryRowContext(ctx,
		"SELECT id, name, description, amount FROM optional_services WHERE id = ?", id,
	).Scan(&svc.ID, &svc.Name, &svc.Description, &amount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	svc.Amount = billing.MustParseMoney(amount)
	return &svc, nil
}

func listServices(ctx context.Context, db dbtx) ([]billing.OptionalService, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, name, description, amount FROM optional_services ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []billing.OptionalService
	for rows.Next() {
		var (
			svc    billing.OptionalService
			amount string
		)
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Description, &amount); err != nil {
			return nil, err
		}
		svc.Amount = billing.MustParseMoney(amount)
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (s *Store) SaveService(ctx context.Context, svc billing.OptionalService) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveService(ctx, s.db, svc)
}

func (s *Store) GetService(ctx context.Context, id billing.ServiceID) (*billing.OptionalService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getService(ctx, s.db, id)
}

func (s *Store) ListServices(ctx context.Context) ([]billing.OptionalService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listServices(ctx, s.db)
}

func (t *txStore) SaveService(ctx context.Context, svc billing.OptionalService) error {
	return saveService(ctx, t.tx, svc)
}

func (t *txStore) GetService(ctx context.Context, id billing.ServiceID) (*billing.OptionalService, error) {
	return getService(ctx, t.tx, id)
}

func (t *txStore) ListServices(ctx context.Context) ([]billing.OptionalService, error) {
	return listServices(ctx, t.tx)
}

// =============================================================================
// INSTALLMENT PLANS
// =============================================================================

func savePlan(ctx context.Context, db dbtx, plan billing.InstallmentPlan) error {
	scheduleJSON, err := marshalSchedule(plan.Schedule)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO installment_plans (id, name, description, active, schedule_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			active = excluded.active,
			schedule_json = excluded.schedule_json`,
		plan.ID, plan.Name, plan.Description, plan.Active, scheduleJSON)
	return err
}

func getPlan(ctx context.Context, db dbtx, id billing.PlanID) (*billing.InstallmentPlan, error) {
	var (
		plan         billing.InstallmentPlan
		scheduleJSON string
	)
	err := db.QueryRowContext(ctx,
		"SELECT id, name, description, active, schedule_json FROM installment_plans WHERE id = ?", id,
	).Scan(&plan.ID, &plan.Name, &plan.Description, &plan.Active, &scheduleJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	plan.Schedule, err = unmarshalSchedule(scheduleJSON)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func listPlans(ctx context.Context, db dbtx) ([]billing.InstallmentPlan, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, name, description, active, schedule_json FROM installment_plans ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []billing.InstallmentPlan
	for rows.Next() {
		var (
			plan         billing.InstallmentPlan
			scheduleJSON string
		)
		if err := rows.Scan(&plan.ID, &plan.Name, &plan.Description, &plan.Active, &scheduleJSON); err != nil {
			return nil, err
		}
		plan.Schedule, err = unmarshalSchedule(scheduleJSON)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func (s *Store) SavePlan(ctx context.Context, plan billing.InstallmentPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePlan(ctx, s.db, plan)
}

func (s *Store) GetPlan(ctx context.Context, id billing.PlanID) (*billing.InstallmentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPlan(ctx, s.db, id)
}

func (s *Store) ListPlans(ctx context.Context) ([]billing.InstallmentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPlans(ctx, s.db)
}

func (t *txStore) SavePlan(ctx context.Context, plan billing.InstallmentPlan) error {
	return savePlan(ctx, t.tx, plan)
}

func (t *txStore) GetPlan(ctx context.Context, id billing.PlanID) (*billing.InstallmentPlan, error) {
	return getPlan(ctx, t.tx, id)
}

func (t *txStore) ListPlans(ctx context.Context) ([]billing.InstallmentPlan, error) {
	return listPlans(ctx, t.tx)
}

// =============================================================================
// STUDENTS AND TERMS
// =============================================================================

func saveStudent(ctx context.Context, db dbtx, st billing.Student) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO students (id, name, class_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			class_id = excluded.class_id`,
		st.ID, st.Name, st.ClassID, st.CreatedAt.Format(time.RFC3339))
	return err
}

func getStudent(ctx context.Context, db dbtx, id billing.StudentID) (*billing.Student, error) {
	var (
		st        billing.Student
		createdAt string
	)
	err := db.QueryRowContext(ctx,
		"SELECT id, name, class_id, created_at FROM students WHERE id = ?", id,
	).Scan(&st.ID, &st.Name, &st.ClassID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &st, nil
}

func listStudents(ctx context.Context, db dbtx) ([]billing.Student, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, name, class_id, created_at FROM students ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []billing.Student
	for rows.Next() {
		var (
			st        billing.Student
			createdAt string
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.ClassID, &createdAt); err != nil {
			return nil, err
		}
		st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		students = append(students, st)
	}
	return students, rows.Err()
}

func saveTerm(ctx context.Context, db dbtx, term billing.Term) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO terms (id, name, active) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active`,
		term.ID, term.Name, term.Active)
	return err
}

func getTerm(ctx context.Context, db dbtx, id billing.TermID) (*billing.Term, error) {
	var term billing.Term
	err := db.QueryRowContext(ctx,
		"SELECT id, name, active FROM terms WHERE id = ?", id,
	).Scan(&term.ID, &term.Name, &term.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &term, nil
}

func queryTerms(ctx context.Context, db dbtx, query string, args ...any) ([]billing.Term, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []billing.Term
	for rows.Next() {
		var term billing.Term
		if err := rows.Scan(&term.ID, &term.Name, &term.Active); err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

func (s *Store) SaveStudent(ctx context.Context, st billing.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveStudent(ctx, s.db, st)
}

func (s *Store) GetStudent(ctx context.Context, id billing.StudentID) (*billing.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getStudent(ctx, s.db, id)
}

func (s *Store) ListStudents(ctx context.Context) ([]billing.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listStudents(ctx, s.db)
}

func (s *Store) SaveTerm(ctx context.Context, term billing.Term) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTerm(ctx, s.db, term)
}

func (s *Store) GetTerm(ctx context.Context, id billing.TermID) (*billing.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTerm(ctx, s.db, id)
}

func (s *Store) ListTerms(ctx context.Context) ([]billing.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTerms(ctx, s.db, "SELECT id, name, active FROM terms ORDER BY name")
}

func (s *Store) ActiveTerms(ctx context.Context) ([]billing.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTerms(ctx, s.db, "SELECT id, name, active FROM terms WHERE active = 1")
}

func (t *txStore) SaveStudent(ctx context.Context, st billing.Student) error {
	return saveStudent(ctx, t.tx, st)
}

func (t *txStore) GetStudent(ctx context.Context, id billing.StudentID) (*billing.Student, error) {
	return getStudent(ctx, t.tx, id)
}

func (t *txStore) ListStudents(ctx context.Context) ([]billing.Student, error) {
	return listStudents(ctx, t.tx)
}

func (t *txStore) SaveTerm(ctx context.Context, term billing.Term) error {
	return saveTerm(ctx, t.tx, term)
}

func (t *txStore) GetTerm(ctx context.Context, id billing.TermID) (*billing.Term, error) {
	return getTerm(ctx, t.tx, id)
}

func (t *txStore) ListTerms(ctx context.Context) ([]billing.Term, error) {
	return queryTerms(ctx, t.tx, "SELECT id, name, active FROM terms ORDER BY name")
}

func (t *txStore) ActiveTerms(ctx context.Context) ([]billing.Term, error) {
	return queryTerms(ctx, t.tx, "SELECT id, name, active FROM terms WHERE active = 1")
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `id, student_id, term_id, installment_plan_id, total_amount,
	amount_paid, balance, payment_status, workflow_status, parent_notes,
	finance_notes, reviewed_by, created_at`

func insertInvoice(ctx context.Context, db dbtx, inv billing.Invoice) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO invoices (id, student_id, term_id, installment_plan_id, total_amount,
			amount_paid, balance, payment_status, workflow_status, parent_notes,
			finance_notes, reviewed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.StudentID, inv.TermID, nullablePlanID(inv.InstallmentPlanID),
		inv.TotalAmount.String(), inv.AmountPaid.String(), inv.Balance.String(),
		inv.PaymentStatus, inv.WorkflowStatus, inv.ParentNotes,
		inv.FinanceNotes, inv.ReviewedBy, inv.CreatedAt.Format(time.RFC3339))
	return err
}

func updateInvoice(ctx context.Context, db dbtx, inv billing.Invoice) error {
	res, err := db.ExecContext(ctx, `
		UPDATE invoices
		SET installment_plan_id = ?, total_amount = ?, amount_paid = ?, balance = ?,
			payment_status = ?, workflow_status = ?, parent_notes = ?,
			finance_notes = ?, reviewed_by = ?
		WHERE id = ?`,
		nullablePlanID(inv.InstallmentPlanID),
		inv.TotalAmount.String(), inv.AmountPaid.String(), inv.Balance.String(),
		inv.PaymentStatus, inv.WorkflowStatus, inv.ParentNotes,
		inv.FinanceNotes, inv.ReviewedBy, inv.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return &billing.NotFoundError{Kind: "invoice", ID: string(inv.ID)}
	}
	return err
}

func queryInvoices(ctx context.Context, db dbtx, query string, args ...any) ([]billing.Invoice, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func scanInvoice(rows *sql.Rows) (billing.Invoice, error) {
	var (
		inv              billing.Invoice
		planID           sql.NullString
		total, paid, bal string
		createdAt        string
	)
	if err := rows.Scan(&inv.ID, &inv.StudentID, &inv.TermID, &planID,
		&total, &paid, &bal, &inv.PaymentStatus, &inv.WorkflowStatus,
		&inv.ParentNotes, &inv.FinanceNotes, &inv.ReviewedBy, &createdAt); err != nil {
		return inv, err
	}
	if planID.Valid {
		p := billing.PlanID(planID.String)
		inv.InstallmentPlanID = &p
	}
	inv.TotalAmount = billing.MustParseMoney(total)
	inv.AmountPaid = billing.MustParseMoney(paid)
	inv.Balance = billing.MustParseMoney(bal)
	inv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return inv, nil
}

func getInvoice(ctx context.Context, db dbtx, id billing.InvoiceID) (*billing.Invoice, error) {
	invoices, err := queryInvoices(ctx, db,
		"SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id)
	if err != nil || len(invoices) == 0 {
		return nil, err
	}
	return &invoices[0], nil
}

func findInvoiceForTerm(ctx context.Context, db dbtx, studentID billing.StudentID, termID billing.TermID) (*billing.Invoice, error) {
	// Rejected invoices are terminal dead ends; the parent retries with
	// a fresh draft, so they do not count as "existing".
	invoices, err := queryInvoices(ctx, db,
		"SELECT "+invoiceColumns+` FROM invoices
		WHERE student_id = ? AND term_id = ? AND workflow_status != 'rejected'
		ORDER BY created_at DESC LIMIT 1`,
		studentID, termID)
	if err != nil || len(invoices) == 0 {
		return nil, err
	}
	return &invoices[0], nil
}

func listInvoices(ctx context.Context, db dbtx, status billing.WorkflowStatus) ([]billing.Invoice, error) {
	if status == "" {
		return queryInvoices(ctx, db,
			"SELECT "+invoiceColumns+" FROM invoices ORDER BY created_at DESC")
	}
	return queryInvoices(ctx, db,
		"SELECT "+invoiceColumns+" FROM invoices WHERE workflow_status = ? ORDER BY created_at DESC",
		status)
}

func insertInvoiceItem(ctx context.Context, db dbtx, item billing.InvoiceItem) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO invoice_items (id, invoice_id, source, source_id, label, amount)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.InvoiceID, item.Source, item.SourceID, item.Label, item.Amount.String())
	return err
}

func itemsForInvoice(ctx context.Context, db dbtx, id billing.InvoiceID) ([]billing.InvoiceItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, invoice_id, source, source_id, label, amount
		FROM invoice_items WHERE invoice_id = ? ORDER BY rowid ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []billing.InvoiceItem
	for rows.Next() {
		var (
			item   billing.InvoiceItem
			amount string
		)
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Source,
			&item.SourceID, &item.Label, &amount); err != nil {
			return nil, err
		}
		item.Amount = billing.MustParseMoney(amount)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) InsertInvoice(ctx context.Context, inv billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertInvoice(ctx, s.db, inv)
}

func (s *Store) UpdateInvoice(ctx context.Context, inv billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateInvoice(ctx, s.db, inv)
}

func (s *Store) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvoice(ctx, s.db, id)
}

func (s *Store) FindInvoiceForTerm(ctx context.Context, studentID billing.StudentID, termID billing.TermID) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findInvoiceForTerm(ctx, s.db, studentID, termID)
}

func (s *Store) ListInvoices(ctx context.Context, status billing.WorkflowStatus) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInvoices(ctx, s.db, status)
}

func (s *Store) InsertInvoiceItem(ctx context.Context, item billing.InvoiceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertInvoiceItem(ctx, s.db, item)
}

func (s *Store) ItemsForInvoice(ctx context.Context, id billing.InvoiceID) ([]billing.InvoiceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return itemsForInvoice(ctx, s.db, id)
}

func (t *txStore) InsertInvoice(ctx context.Context, inv billing.Invoice) error {
	return insertInvoice(ctx, t.tx, inv)
}

func (t *txStore) UpdateInvoice(ctx context.Context, inv billing.Invoice) error {
	return updateInvoice(ctx, t.tx, inv)
}

func (t *txStore) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	return getInvoice(ctx, t.tx, id)
}

func (t *txStore) FindInvoiceForTerm(ctx context.Context, studentID billing.StudentID, termID billing.TermID) (*billing.Invoice, error) {
	return findInvoiceForTerm(ctx, t.tx, studentID, termID)
}

func (t *txStore) ListInvoices(ctx context.Context, status billing.WorkflowStatus) ([]billing.Invoice, error) {
	return listInvoices(ctx, t.tx, status)
}

func (t *txStore) InsertInvoiceItem(ctx context.Context, item billing.InvoiceItem) error {
	return insertInvoiceItem(ctx, t.tx, item)
}

func (t *txStore) ItemsForInvoice(ctx context.Context, id billing.InvoiceID) ([]billing.InvoiceItem, error) {
	return itemsForInvoice(ctx, t.tx, id)
}

// =============================================================================
// TERM ENROLLMENTS
// =============================================================================

func insertEnrollment(ctx context.Context, db dbtx, e billing.TermEnrollment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO term_enrollments (id, student_id, term_id, invoice_id, status, enrolled_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.StudentID, e.TermID, e.InvoiceID, e.Status, nullableTime(e.EnrolledAt))
	return mapConstraintError(err)
}

func updateEnrollment(ctx context.Context, db dbtx, e billing.TermEnrollment) error {
	res, err := db.ExecContext(ctx, `
		UPDATE term_enrollments
		SET invoice_id = ?, status = ?, enrolled_at = ?
		WHERE id = ?`,
		e.InvoiceID, e.Status, nullableTime(e.EnrolledAt), e.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return &billing.NotFoundError{Kind: "enrollment", ID: string(e.ID)}
	}
	return err
}

func scanEnrollment(row *sql.Row) (*billing.TermEnrollment, error) {
	var (
		e          billing.TermEnrollment
		enrolledAt sql.NullString
	)
	err := row.Scan(&e.ID, &e.StudentID, &e.TermID, &e.InvoiceID, &e.Status, &enrolledAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if enrolledAt.Valid {
		t, _ := time.Parse(time.RFC3339, enrolledAt.String)
		e.EnrolledAt = &t
	}
	return &e, nil
}

func enrollmentForStudentTerm(ctx context.Context, db dbtx, studentID billing.StudentID, termID billing.TermID) (*billing.TermEnrollment, error) {
	return scanEnrollment(db.QueryRowContext(ctx, `
		SELECT id, student_id, term_id, invoice_id, status, enrolled_at
		FROM term_enrollments WHERE student_id = ? AND term_id = ?`,
		studentID, termID))
}

func enrollmentForInvoice(ctx context.Context, db dbtx, id billing.InvoiceID) (*billing.TermEnrollment, error) {
	return scanEnrollment(db.QueryRowContext(ctx, `
		SELECT id, student_id, term_id, invoice_id, status, enrolled_at
		FROM term_enrollments WHERE invoice_id = ?`, id))
}

func (s *Store) InsertEnrollment(ctx context.Context, e billing.TermEnrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertEnrollment(ctx, s.db, e)
}

func (s *Store) UpdateEnrollment(ctx context.Context, e billing.TermEnrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEnrollment(ctx, s.db, e)
}

func (s *Store) EnrollmentForStudentTerm(ctx context.Context, studentID billing.StudentID, termID billing.TermID) (*billing.TermEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return enrollmentForStudentTerm(ctx, s.db, studentID, termID)
}

func (s *Store) EnrollmentForInvoice(ctx context.Context, id billing.InvoiceID) (*billing.TermEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return enrollmentForInvoice(ctx, s.db, id)
}

func (t *txStore) InsertEnrollment(ctx context.Context, e billing.TermEnrollment) error {
	return insertEnrollment(ctx, t.tx, e)
}

func (t *txStore) UpdateEnrollment(ctx context.Context, e billing.TermEnrollment) error {
	return updateEnrollment(ctx, t.tx, e)
}

func (t *txStore) EnrollmentForStudentTerm(ctx context.Context, studentID billing.StudentID, termID billing.TermID) (*billing.TermEnrollment, error) {
	return enrollmentForStudentTerm(ctx, t.tx, studentID, termID)
}

func (t *txStore) EnrollmentForInvoice(ctx context.Context, id billing.InvoiceID) (*billing.TermEnrollment, error) {
	return enrollmentForInvoice(ctx, t.tx, id)
}

// =============================================================================
// PAYMENTS (append-only)
// =============================================================================

func insertPayment(ctx context.Context, db dbtx, p billing.Payment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payments (id, invoice_id, student_id, amount, method, reference, received_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.InvoiceID, p.StudentID, p.Amount.String(),
		p.Method, p.Reference, p.ReceivedBy, p.CreatedAt.Format(time.RFC3339))
	return err
}

func paymentsForInvoice(ctx context.Context, db dbtx, id billing.InvoiceID) ([]billing.Payment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, invoice_id, student_id, amount, method, reference, received_by, created_at
		FROM payments WHERE invoice_id = ? ORDER BY created_at ASC, rowid ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []billing.Payment
	for rows.Next() {
		var (
			p         billing.Payment
			amount    string
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.StudentID, &amount,
			&p.Method, &p.Reference, &p.ReceivedBy, &createdAt); err != nil {
			return nil, err
		}
		p.Amount = billing.MustParseMoney(amount)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) InsertPayment(ctx context.Context, p billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayment(ctx, s.db, p)
}

func (s *Store) PaymentsForInvoice(ctx context.Context, id billing.InvoiceID) ([]billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paymentsForInvoice(ctx, s.db, id)
}

func (t *txStore) InsertPayment(ctx context.Context, p billing.Payment) error {
	return insertPayment(ctx, t.tx, p)
}

func (t *txStore) PaymentsForInvoice(ctx context.Context, id billing.InvoiceID) ([]billing.Payment, error) {
	return paymentsForInvoice(ctx, t.tx, id)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"payments", "term_enrollments", "invoice_items", "invoices",
		"fee_item_rules", "optional_services", "installment_plans",
		"students", "terms", "fee_items",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func marshalSchedule(schedule []billing.PlanStep) (string, error) {
	percentages := make([]string, len(schedule))
	for i, step := range schedule {
		percentages[i] = step.Percentage.String()
	}
	b, err := json.Marshal(percentages)
	return string(b), err
}

func unmarshalSchedule(raw string) ([]billing.PlanStep, error) {
	var percentages []string
	if err := json.Unmarshal([]byte(raw), &percentages); err != nil {
		return nil, err
	}
	schedule := make([]billing.PlanStep, len(percentages))
	for i, p := range percentages {
		d, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("invalid percentage %q: %w", p, err)
		}
		schedule[i] = billing.PlanStep{Percentage: d}
	}
	return schedule, nil
}

func nullableTermID(id *billing.TermID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func nullablePlanID(id *billing.PlanID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

// mapConstraintError translates SQLite unique-constraint violations to
// the typed errors the engine treats as outcomes.
func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "idx_unique_active_rule"):
		return billing.ErrDuplicateRule
	case strings.Contains(msg, "term_enrollments"):
		return billing.ErrEnrollmentExists
	default:
		return err
	}
}
