/*
store.go - Persistence interfaces for the billing engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage - the engine only sees these interfaces.

KEY INTERFACES:
  Store:   Row-level reads and writes for every billing entity
  TxStore: Store plus WithTx, the atomic unit of work

UNIT OF WORK:
  Every mutating operation in this engine (draft creation, service and
  plan selection, submission, approval, rejection, payment recording)
  runs inside a single WithTx call. If the function returns an error the
  whole transaction rolls back; partial writes are never observable.

CONSTRAINTS AS ARBITERS:
  Pre-checks ("does a rule already exist?") are a fast-path courtesy to
  the caller. The store's unique constraints are the authority:
  - active fee rules are unique per (fee_item, class, term)
  - term enrollments are unique per (student, term)
  Implementations map constraint violations to ErrDuplicateRule and
  ErrEnrollmentExists so the engine can treat the loser of a race as
  "already exists" instead of failing.

APPEND-ONLY:
  Payments have Insert and List only. No update, no delete, ever.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite

SEE ALSO:
  - feerule.go, installment.go: Engine logic over these interfaces
*/
package billing

import (
	"context"
	"errors"
	"time"
)

// ErrEnrollmentExists is returned by InsertEnrollment when the (student,
// term) pair already has an enrollment row. This is the expected outcome
// for the loser of a concurrent draft-creation race, not a failure.
var ErrEnrollmentExists = errors.New("enrollment already exists for student and term")

// Store is the row-level persistence surface. Get* methods return
// (nil, nil) when the record does not exist; the engine decides whether
// that is a NotFoundError.
type Store interface {
	// Fee item catalog
	SaveFeeItem(ctx context.Context, item FeeItem) error
	GetFeeItem(ctx context.Context, id FeeItemID) (*FeeItem, error)
	ListFeeItems(ctx context.Context) ([]FeeItem, error)

	// Fee rules. InsertRule and UpdateRule surface ErrDuplicateRule when
	// the active-rule unique constraint is violated.
	InsertRule(ctx context.Context, rule FeeItemRule) error
	UpdateRule(ctx context.Context, rule FeeItemRule) error
	GetRule(ctx context.Context, id RuleID) (*FeeItemRule, error)
	ActiveRulesForClass(ctx context.Context, classID ClassID) ([]FeeItemRule, error)
	ListRules(ctx context.Context) ([]FeeItemRule, error)

	// Optional services
	SaveService(ctx context.Context, svc OptionalService) error
	GetService(ctx context.Context, id ServiceID) (*OptionalService, error)
	ListServices(ctx context.Context) ([]OptionalService, error)

	// Installment plans
	SavePlan(ctx context.Context, plan InstallmentPlan) error
	GetPlan(ctx context.Context, id PlanID) (*InstallmentPlan, error)
	ListPlans(ctx context.Context) ([]InstallmentPlan, error)

	// Students and terms (written by external collaborators, read here)
	SaveStudent(ctx context.Context, s Student) error
	GetStudent(ctx context.Context, id StudentID) (*Student, error)
	ListStudents(ctx context.Context) ([]Student, error)
	SaveTerm(ctx context.Context, t Term) error
	GetTerm(ctx context.Context, id TermID) (*Term, error)
	ListTerms(ctx context.Context) ([]Term, error)
	ActiveTerms(ctx context.Context) ([]Term, error)

	// Invoices. FindInvoiceForTerm ignores rejected invoices so a parent
	// can re-enter the flow after a rejection.
	InsertInvoice(ctx context.Context, inv Invoice) error
	UpdateInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)
	FindInvoiceForTerm(ctx context.Context, studentID StudentID, termID TermID) (*Invoice, error)
	ListInvoices(ctx context.Context, status WorkflowStatus) ([]Invoice, error)
	InsertInvoiceItem(ctx context.Context, item InvoiceItem) error
	ItemsForInvoice(ctx context.Context, id InvoiceID) ([]InvoiceItem, error)

	// Term enrollments. InsertEnrollment surfaces ErrEnrollmentExists on
	// the (student, term) unique constraint.
	InsertEnrollment(ctx context.Context, e TermEnrollment) error
	UpdateEnrollment(ctx context.Context, e TermEnrollment) error
	EnrollmentForStudentTerm(ctx context.Context, studentID StudentID, termID TermID) (*TermEnrollment, error)
	EnrollmentForInvoice(ctx context.Context, id InvoiceID) (*TermEnrollment, error)

	// Payments (append-only)
	InsertPayment(ctx context.Context, p Payment) error
	PaymentsForInvoice(ctx context.Context, id InvoiceID) ([]Payment, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. The Store passed to fn
	// writes through that transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Clock supplies the current time. Services take a Clock so tests can
// pin timestamps; NowUTC is the production implementation.
type Clock func() time.Time

// NowUTC is the default clock.
func NowUTC() time.Time { return time.Now().UTC() }
