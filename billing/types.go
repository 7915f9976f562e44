/*
Package billing provides the core fee-computation engine.

PURPOSE:
  This package contains the domain types and algorithms for turning fee
  configuration into money owed: rule resolution with class/term precedence,
  installment allocation that reconciles rounding, and the derived statuses
  that keep invoices internally consistent.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A currency amount at 2-decimal minor-unit precision
  - FeeItemRule / OptionalService / InstallmentPlan: fee configuration
  - Invoice / InvoiceItem / TermEnrollment / Payment: billing state
  - DerivePaymentStatus: the ONLY way payment_status is ever produced

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Derivation: payment_status and balance are functions of amounts,
     never independently assigned
  3. Type Safety: Strong typing for IDs prevents mixing invoice/student IDs
  4. Snapshots: invoice items copy amounts at selection time, they never
     reference live catalog prices

SEE ALSO:
  - feerule.go: Rule resolution and validated rule writes
  - installment.go: Schedule allocation
  - store.go: Persistence interfaces
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency amount at minor-unit (2dp) precision
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value).Round(2)}
}

func NewMoneyFromInt(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

// MustParseMoney parses a decimal string, returning zero on failure.
// Used when reading back values the store itself wrote.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney()
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money        { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money        { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money               { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool             { return m.Value.IsZero() }
func (m Money) IsNegative() bool         { return m.Value.IsNegative() }
func (m Money) IsPositive() bool         { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool    { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool       { return m.Value.Equal(o.Value) }
func (m Money) String() string           { return m.Value.StringFixed(2) }

// Percent returns this amount scaled by p/100, rounded to the minor unit.
func (m Money) Percent(p decimal.Decimal) Money {
	return Money{Value: m.Value.Mul(p).Div(decimal.NewFromInt(100)).Round(2)}
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	StudentID    string
	ClassID      string
	TermID       string
	FeeItemID    string
	RuleID       string
	ServiceID    string
	PlanID       string
	InvoiceID    string
	EnrollmentID string
	PaymentID    string
)

// =============================================================================
// STATUSES - Two independent axes, both derived or gated, never ad hoc
// =============================================================================

// PaymentStatus is the settlement state of an invoice. It is ALWAYS the
// output of DerivePaymentStatus - code must never assign it directly.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// WorkflowStatus is the approval-pipeline state of an invoice, independent
// of how much has been paid.
type WorkflowStatus string

const (
	WorkflowDraft          WorkflowStatus = "draft"
	WorkflowPendingFinance WorkflowStatus = "pending_finance"
	WorkflowApproved       WorkflowStatus = "approved"
	WorkflowRejected       WorkflowStatus = "rejected"
)

// Terminal reports whether no further workflow transition is legal.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowApproved || s == WorkflowRejected
}

type EnrollmentStatus string

const (
	EnrollmentPending  EnrollmentStatus = "pending"
	EnrollmentEnrolled EnrollmentStatus = "enrolled"
)

// DerivePaymentStatus computes the settlement state from the two numeric
// fields. This is the single source of truth for payment_status: paid when
// nothing is outstanding, partial when something has been applied, unpaid
// otherwise.
func DerivePaymentStatus(amountPaid, totalAmount Money) PaymentStatus {
	switch {
	case amountPaid.Equal(totalAmount) && !totalAmount.IsZero():
		return PaymentPaid
	case amountPaid.IsPositive():
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}

// =============================================================================
// FEE CONFIGURATION
// =============================================================================

// FeeItem is a catalog entry for a chargeable item (tuition, library, ...).
// Rules reference fee items; the item supplies the human-readable label.
type FeeItem struct {
	ID   FeeItemID
	Name string
}

// FeeItemRule charges a fee item to a class, either for one specific term
// (TermID set) or as a general default for all terms (TermID nil).
// At most one ACTIVE rule may exist per (fee_item, class, term) triple;
// the store's unique index is the final arbiter.
type FeeItemRule struct {
	ID        RuleID
	FeeItemID FeeItemID
	ClassID   ClassID
	TermID    *TermID
	Amount    Money
	Active    bool
	CreatedAt time.Time
}

// TermSpecific reports whether this rule targets a single term.
func (r FeeItemRule) TermSpecific() bool { return r.TermID != nil }

// ResolvedFee is one mandatory charge for a (class, term) pair after
// precedence has been applied.
type ResolvedFee struct {
	FeeItemID FeeItemID
	Label     string
	Amount    Money
}

// OptionalService is a fee the parent opts into per invoice. Selections
// snapshot Amount at selection time; later price changes never touch
// already-selected items.
type OptionalService struct {
	ID          ServiceID
	Name        string
	Description string
	Amount      Money
}

// InstallmentPlan splits a total into an ordered percentage schedule.
// Percentages must sum to exactly 100 (validated at definition time).
type InstallmentPlan struct {
	ID          PlanID
	Name        string
	Description string
	Active      bool
	Schedule    []PlanStep
}

type PlanStep struct {
	Percentage decimal.Decimal
}

// Installment is one allocated slice of a total amount.
type Installment struct {
	Sequence int
	Amount   Money
}

// =============================================================================
// BILLING STATE
// =============================================================================

type ItemSource string

const (
	SourceFeeItem         ItemSource = "fee_item"
	SourceOptionalService ItemSource = "optional_service"
	SourceAdHoc           ItemSource = "ad_hoc"
)

// Invoice is what a student owes for a term.
//
// INVARIANTS:
//   - TotalAmount == sum of its items' amounts
//   - Balance == TotalAmount - AmountPaid
//   - PaymentStatus == DerivePaymentStatus(AmountPaid, TotalAmount)
//   - AmountPaid and Balance change only through the payment ledger
type Invoice struct {
	ID                InvoiceID
	StudentID         StudentID
	TermID            TermID
	InstallmentPlanID *PlanID
	TotalAmount       Money
	AmountPaid        Money
	Balance           Money
	PaymentStatus     PaymentStatus
	WorkflowStatus    WorkflowStatus
	ParentNotes       string
	FinanceNotes      string
	ReviewedBy        string
	CreatedAt         time.Time
}

// InvoiceItem is one line on an invoice. SourceID is empty for ad-hoc lines.
type InvoiceItem struct {
	ID        string
	InvoiceID InvoiceID
	Source    ItemSource
	SourceID  string
	Label     string
	Amount    Money
}

// TermEnrollment records that a student is (or will be) active for a term,
// gated on invoice approval. Unique per (student, term); the unique index
// doubles as the arbiter for concurrent draft creation.
type TermEnrollment struct {
	ID         EnrollmentID
	StudentID  StudentID
	TermID     TermID
	InvoiceID  InvoiceID
	Status     EnrollmentStatus
	EnrolledAt *time.Time
}

// Payment is one settled amount applied to an invoice.
// The payments table is append-only: no update, no delete, ever.
type Payment struct {
	ID         PaymentID
	InvoiceID  InvoiceID
	StudentID  StudentID
	Amount     Money
	Method     string
	Reference  string
	ReceivedBy string
	CreatedAt  time.Time
}

// =============================================================================
// SUPPORT RECORDS - Produced by external collaborators, read by the engine
// =============================================================================

// Student is the record admission produces once an application is approved.
// The engine only reads it to resolve (class, active term).
type Student struct {
	ID        StudentID
	Name      string
	ClassID   ClassID
	CreatedAt time.Time
}

// Term is one academic term. Exactly one term is active at a time.
type Term struct {
	ID     TermID
	Name   string
	Active bool
}
