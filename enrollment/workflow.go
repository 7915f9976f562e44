/*
workflow.go - Finance decision and enrollment activation

PURPOSE:
  The finance side of the invoice state machine. Only pending_finance
  invoices can be decided; approved and rejected are terminal. Approval
  atomically flips the linked term enrollment to enrolled - both writes
  share one transaction, so either both land or neither does. Rejection
  leaves the enrollment pending so the parent can re-enter the flow with
  a new draft; a rejected invoice itself is never reused.

SEE ALSO:
  - invoice.go: How drafts reach pending_finance
  - payments.go: Payments become legal once approved
*/
package enrollment

import (
	"context"
	"fmt"

	"github.com/warp/enrollment-engine/billing"
)

// Workflow applies finance decisions to submitted invoices.
type Workflow struct {
	Store billing.TxStore
	Clock billing.Clock
}

func NewWorkflow(store billing.TxStore) *Workflow {
	return &Workflow{Store: store, Clock: billing.NowUTC}
}

// Approve accepts a pending_finance invoice and activates the linked
// term enrollment in the same transaction.
func (w *Workflow) Approve(ctx context.Context, invoiceID billing.InvoiceID, financeNotes, approverID string) error {
	if approverID == "" {
		return &billing.ValidationError{Field: "approver_id", Message: "required"}
	}

	return w.Store.WithTx(ctx, func(tx billing.Store) error {
		invoice, err := getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.WorkflowStatus != billing.WorkflowPendingFinance {
			return &billing.StateTransitionError{
				InvoiceID: invoiceID, Operation: "approve", Status: invoice.WorkflowStatus,
			}
		}

		invoice.WorkflowStatus = billing.WorkflowApproved
		invoice.FinanceNotes = financeNotes
		invoice.ReviewedBy = approverID
		if err := tx.UpdateInvoice(ctx, *invoice); err != nil {
			return fmt.Errorf("%w: updating invoice: %v", billing.ErrPersistence, err)
		}

		enrollment, err := tx.EnrollmentForInvoice(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("%w: loading enrollment: %v", billing.ErrPersistence, err)
		}
		if enrollment == nil {
			return &billing.ConfigurationError{Message: fmt.Sprintf(
				"invoice %s has no term enrollment", invoiceID)}
		}

		now := w.Clock()
		enrollment.Status = billing.EnrollmentEnrolled
		enrollment.EnrolledAt = &now
		if err := tx.UpdateEnrollment(ctx, *enrollment); err != nil {
			return fmt.Errorf("%w: updating enrollment: %v", billing.ErrPersistence, err)
		}
		return nil
	})
}

// Reject declines a pending_finance invoice. Finance must say why.
// The term enrollment stays pending - the student can try again with a
// fresh draft.
func (w *Workflow) Reject(ctx context.Context, invoiceID billing.InvoiceID, financeNotes, approverID string) error {
	if financeNotes == "" {
		return &billing.ValidationError{Field: "finance_notes", Message: "a rejection reason is required"}
	}
	if approverID == "" {
		return &billing.ValidationError{Field: "approver_id", Message: "required"}
	}

	return w.Store.WithTx(ctx, func(tx billing.Store) error {
		invoice, err := getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.WorkflowStatus != billing.WorkflowPendingFinance {
			return &billing.StateTransitionError{
				InvoiceID: invoiceID, Operation: "reject", Status: invoice.WorkflowStatus,
			}
		}

		invoice.WorkflowStatus = billing.WorkflowRejected
		invoice.FinanceNotes = financeNotes
		invoice.ReviewedBy = approverID
		if err := tx.UpdateInvoice(ctx, *invoice); err != nil {
			return fmt.Errorf("%w: updating invoice: %v", billing.ErrPersistence, err)
		}
		return nil
	})
}
