/*
Package enrollment drives a term invoice from draft to settlement.

PURPOSE:
  This package owns the invoice lifecycle: assembling a draft from
  rule-resolved mandatory fees, letting the parent shape it (optional
  services, installment plan), freezing it for finance review, the
  approve/reject decision, and payment application. Every mutating
  operation here runs inside one store transaction - partial writes are
  never observable, so callers can retry the idempotent operations
  (CreateDraft, SubmitInvoice) without duplicating state.

LIFECYCLE:
  draft -> pending_finance -> approved | rejected

  draft:           parent may add services, pick a plan
  pending_finance: frozen; waiting on finance
  approved:        terminal; enrollment activated; payments accepted
  rejected:        terminal; parent retries via a NEW draft

KEY COMPONENTS (this file):
  InvoiceBuilder: CreateDraft / AddOptionalServices / SetInstallmentPlan /
                  SubmitInvoice

SEE ALSO:
  - workflow.go: The finance decision and enrollment activation
  - payments.go: Payment application and balance recomputation
*/
package enrollment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/warp/enrollment-engine/billing"
)

// =============================================================================
// INVOICE BUILDER
// =============================================================================

// InvoiceBuilder assembles and shapes draft invoices.
type InvoiceBuilder struct {
	Store billing.TxStore
	Clock billing.Clock
}

func NewInvoiceBuilder(store billing.TxStore) *InvoiceBuilder {
	return &InvoiceBuilder{Store: store, Clock: billing.NowUTC}
}

// Draft is what CreateDraft hands back: the invoice and its line items.
type Draft struct {
	Invoice billing.Invoice
	Items   []billing.InvoiceItem
}

// CreateDraft builds a draft invoice for the student's current term, or
// returns the existing open invoice unchanged if one already exists.
//
// Idempotency: the existence check and the insert run in the same
// transaction, and the unique (student, term) index on term enrollments
// is the final arbiter - the loser of a concurrent race re-reads and
// returns the winner's invoice instead of erroring. Rejected invoices
// are ignored by the check, so a parent can re-enter the flow after a
// rejection with a fresh draft.
func (b *InvoiceBuilder) CreateDraft(ctx context.Context, studentID billing.StudentID) (*Draft, error) {
	var draft *Draft

	err := b.Store.WithTx(ctx, func(tx billing.Store) error {
		student, err := tx.GetStudent(ctx, studentID)
		if err != nil {
			return fmt.Errorf("%w: loading student: %v", billing.ErrPersistence, err)
		}
		if student == nil {
			return &billing.NotFoundError{Kind: "student", ID: string(studentID)}
		}

		term, err := billing.ActiveTerm(ctx, tx)
		if err != nil {
			return err
		}

		existing, err := tx.FindInvoiceForTerm(ctx, studentID, term.ID)
		if err != nil {
			return fmt.Errorf("%w: checking for existing invoice: %v", billing.ErrPersistence, err)
		}
		if existing != nil {
			items, err := tx.ItemsForInvoice(ctx, existing.ID)
			if err != nil {
				return fmt.Errorf("%w: loading items: %v", billing.ErrPersistence, err)
			}
			draft = &Draft{Invoice: *existing, Items: items}
			return nil
		}

		resolver := billing.NewFeeRuleResolver(tx)
		fees, err := resolver.ResolveMandatoryFees(ctx, student.ClassID, term.ID)
		if err != nil {
			return err
		}

		now := b.Clock()
		total := billing.ZeroMoney()
		for _, fee := range fees {
			total = total.Add(fee.Amount)
		}

		invoice := billing.Invoice{
			ID:             billing.InvoiceID(uuid.NewString()),
			StudentID:      studentID,
			TermID:         term.ID,
			TotalAmount:    total,
			AmountPaid:     billing.ZeroMoney(),
			Balance:        total,
			PaymentStatus:  billing.DerivePaymentStatus(billing.ZeroMoney(), total),
			WorkflowStatus: billing.WorkflowDraft,
			CreatedAt:      now,
		}
		if err := tx.InsertInvoice(ctx, invoice); err != nil {
			return fmt.Errorf("%w: inserting invoice: %v", billing.ErrPersistence, err)
		}

		items := make([]billing.InvoiceItem, 0, len(fees))
		for _, fee := range fees {
			item := billing.InvoiceItem{
				ID:        uuid.NewString(),
				InvoiceID: invoice.ID,
				Source:    billing.SourceFeeItem,
				SourceID:  string(fee.FeeItemID),
				Label:     fee.Label,
				Amount:    fee.Amount,
			}
			if err := tx.InsertInvoiceItem(ctx, item); err != nil {
				return fmt.Errorf("%w: inserting invoice item: %v", billing.ErrPersistence, err)
			}
			items = append(items, item)
		}

		// A pending enrollment may survive a rejected invoice; relink it
		// to the new draft instead of inserting a second row.
		enrollment, err := tx.EnrollmentForStudentTerm(ctx, studentID, term.ID)
		if err != nil {
			return fmt.Errorf("%w: loading enrollment: %v", billing.ErrPersistence, err)
		}
		if enrollment != nil {
			enrollment.InvoiceID = invoice.ID
			if err := tx.UpdateEnrollment(ctx, *enrollment); err != nil {
				return fmt.Errorf("%w: relinking enrollment: %v", billing.ErrPersistence, err)
			}
		} else {
			err := tx.InsertEnrollment(ctx, billing.TermEnrollment{
				ID:        billing.EnrollmentID(uuid.NewString()),
				StudentID: studentID,
				TermID:    term.ID,
				InvoiceID: invoice.ID,
				Status:    billing.EnrollmentPending,
			})
			if err != nil {
				// Unique index says another draft won the race; roll
				// back and adopt the winner's invoice below.
				return err
			}
		}

		draft = &Draft{Invoice: invoice, Items: items}
		return nil
	})

	if errors.Is(err, billing.ErrEnrollmentExists) {
		return b.adoptExistingDraft(ctx, studentID)
	}
	if err != nil {
		return nil, err
	}
	return draft, nil
}

// adoptExistingDraft re-reads after losing the createDraft race.
func (b *InvoiceBuilder) adoptExistingDraft(ctx context.Context, studentID billing.StudentID) (*Draft, error) {
	term, err := billing.ActiveTerm(ctx, b.Store)
	if err != nil {
		return nil, err
	}
	invoice, err := b.Store.FindInvoiceForTerm(ctx, studentID, term.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: re-reading invoice: %v", billing.ErrPersistence, err)
	}
	if invoice == nil {
		return nil, &billing.NotFoundError{Kind: "invoice", ID: string(studentID)}
	}
	items, err := b.Store.ItemsForInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading items: %v", billing.ErrPersistence, err)
	}
	return &Draft{Invoice: *invoice, Items: items}, nil
}

// AddOptionalServices appends parent-selected services to a draft
// invoice, snapshotting each service's current amount. Services already
// on the invoice are skipped, so repeat submissions are harmless.
// Returns the recomputed total.
func (b *InvoiceBuilder) AddOptionalServices(ctx context.Context, invoiceID billing.InvoiceID, serviceIDs []billing.ServiceID) (billing.Money, error) {
	var total billing.Money

	err := b.Store.WithTx(ctx, func(tx billing.Store) error {
		invoice, err := getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.WorkflowStatus != billing.WorkflowDraft {
			return &billing.StateTransitionError{
				InvoiceID: invoiceID, Operation: "add services to", Status: invoice.WorkflowStatus,
			}
		}

		items, err := tx.ItemsForInvoice(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("%w: loading items: %v", billing.ErrPersistence, err)
		}
		selected := make(map[string]bool)
		for _, item := range items {
			if item.Source == billing.SourceOptionalService {
				selected[item.SourceID] = true
			}
		}

		for _, serviceID := range serviceIDs {
			if selected[string(serviceID)] {
				continue
			}
			svc, err := tx.GetService(ctx, serviceID)
			if err != nil {
				return fmt.Errorf("%w: loading service: %v", billing.ErrPersistence, err)
			}
			if svc == nil {
				return &billing.NotFoundError{Kind: "optional service", ID: string(serviceID)}
			}
			item := billing.InvoiceItem{
				ID:        uuid.NewString(),
				InvoiceID: invoiceID,
				Source:    billing.SourceOptionalService,
				SourceID:  string(serviceID),
				Label:     svc.Name,
				Amount:    svc.Amount, // snapshot, not a live reference
			}
			if err := tx.InsertInvoiceItem(ctx, item); err != nil {
				return fmt.Errorf("%w: inserting item: %v", billing.ErrPersistence, err)
			}
			items = append(items, item)
			selected[string(serviceID)] = true
		}

		total = sumItems(items)
		invoice.TotalAmount = total
		invoice.Balance = total.Sub(invoice.AmountPaid)
		invoice.PaymentStatus = billing.DerivePaymentStatus(invoice.AmountPaid, total)
		if err := tx.UpdateInvoice(ctx, *invoice); err != nil {
			return fmt.Errorf("%w: updating invoice: %v", billing.ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return billing.Money{}, err
	}
	return total, nil
}

// SetInstallmentPlan records the parent's plan choice on a draft invoice.
func (b *InvoiceBuilder) SetInstallmentPlan(ctx context.Context, invoiceID billing.InvoiceID, planID billing.PlanID) error {
	return b.Store.WithTx(ctx, func(tx billing.Store) error {
		invoice, err := getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.WorkflowStatus != billing.WorkflowDraft {
			return &billing.StateTransitionError{
				InvoiceID: invoiceID, Operation: "set plan on", Status: invoice.WorkflowStatus,
			}
		}

		plan, err := tx.GetPlan(ctx, planID)
		if err != nil {
			return fmt.Errorf("%w: loading plan: %v", billing.ErrPersistence, err)
		}
		if plan == nil {
			return &billing.NotFoundError{Kind: "installment plan", ID: string(planID)}
		}
		if !plan.Active {
			return &billing.ValidationError{Field: "plan_id", Message: "plan is not active"}
		}

		invoice.InstallmentPlanID = &planID
		if err := tx.UpdateInvoice(ctx, *invoice); err != nil {
			return fmt.Errorf("%w: updating invoice: %v", billing.ErrPersistence, err)
		}
		return nil
	})
}

// SubmitInvoice freezes a draft into pending_finance. An installment
// plan must have been chosen first. Calling again while pending_finance
// is a no-op success, to tolerate duplicate form submissions.
func (b *InvoiceBuilder) SubmitInvoice(ctx context.Context, invoiceID billing.InvoiceID, parentNotes string) error {
	return b.Store.WithTx(ctx, func(tx billing.Store) error {
		invoice, err := getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		if invoice.WorkflowStatus == billing.WorkflowPendingFinance {
			return nil // already submitted
		}
		if invoice.WorkflowStatus != billing.WorkflowDraft {
			return &billing.StateTransitionError{
				InvoiceID: invoiceID, Operation: "submit", Status: invoice.WorkflowStatus,
			}
		}
		if invoice.InstallmentPlanID == nil {
			return &billing.ValidationError{Field: "installment_plan_id", Message: "choose an installment plan before submitting"}
		}

		invoice.WorkflowStatus = billing.WorkflowPendingFinance
		invoice.ParentNotes = parentNotes
		if err := tx.UpdateInvoice(ctx, *invoice); err != nil {
			return fmt.Errorf("%w: updating invoice: %v", billing.ErrPersistence, err)
		}
		return nil
	})
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func getInvoice(ctx context.Context, tx billing.Store, id billing.InvoiceID) (*billing.Invoice, error) {
	invoice, err := tx.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: loading invoice: %v", billing.ErrPersistence, err)
	}
	if invoice == nil {
		return nil, &billing.NotFoundError{Kind: "invoice", ID: string(id)}
	}
	return invoice, nil
}

func sumItems(items []billing.InvoiceItem) billing.Money {
	total := billing.ZeroMoney()
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}
