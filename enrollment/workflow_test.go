package enrollment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/enrollment-engine/billing"
)

// =============================================================================
// APPROVAL TESTS
// =============================================================================

func TestWorkflow_Approve_PendingInvoice_ActivatesEnrollment(t *testing.T) {
	// GIVEN: A submitted invoice
	// WHEN: Finance approves it
	// THEN: The invoice is approved AND the enrollment flips to enrolled,
	//       both in the same transaction

	e, studentID, planID := newTestEngine(t)
	ctx := context.Background()

	invoiceID := submitDraft(t, e, studentID, planID)

	err := e.workflow.Approve(ctx, invoiceID, "Looks good", "finance-1")
	require.NoError(t, err)

	invoice, err := e.store.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, billing.WorkflowApproved, invoice.WorkflowStatus)
	assert.Equal(t, "Looks good", invoice.FinanceNotes)
	assert.Equal(t, "finance-1", invoice.ReviewedBy)

	enr, err := e.store.EnrollmentForInvoice(ctx, invoiceID)
	require.NoError(t, err)
	require.NotNil(t, enr)
	assert.Equal(t, billing.EnrollmentEnrolled, enr.Status)
	require.NotNil(t, enr.EnrolledAt)
}

func TestWorkflow_Approve_DraftInvoice_Rejected(t *testing.T) {
	// Only pending_finance invoices can be decided.
	e, studentID, _ := newTestEngine(t)
	ctx := context.Background()

	draft, err := e.builder.CreateDraft(ctx, studentID)
	require.NoError(t, err)

	err = e.workflow.Approve(ctx, draft.Invoice.ID, "", "finance-1")
	assert.ErrorIs(t, err, billing.ErrStateTransition)
}

func TestWorkflow_Approve_Twice_Rejected(t *testing.T) {
	// Approved is terminal; a second decision is an illegal transition.
	e, studentID, planID := newTestEngine(t)
	ctx := context.Background()

	invoiceID := submitDraft(t, e, studentID, planID)
	require.NoError(t, e.workflow.Approve(ctx, invoiceID, "", "finance-1"))

	err := e.workflow.Approve(ctx, invoiceID, "", "finance-2")
	assert.ErrorIs(t, err, billing.ErrStateTransition)
}

func TestWorkflow_Approve_WithoutReviewer_Rejected(t *testing.T) {
	e, studentID, planID := newTestEngine(t)

	invoiceID := submitDraft(t, e, studentID, planID)

	err := e.workflow.Approve(context.Background(), invoiceID, "", "")
	assert.ErrorIs(t, err, billing.ErrValidation)
}

// =============================================================================
// REJECTION TESTS
// =============================================================================

func TestWorkflow_Reject_RequiresReason(t *testing.T) {
	e, studentID, planID := newTestEngine(t)

	invoiceID := submitDraft(t, e, studentID, planID)

	err := e.workflow.Reject(context.Background(), invoiceID, "", "finance-1")
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestWorkflow_Reject_LeavesEnrollmentPending(t *testing.T) {
	// GIVEN: A submitted invoice
	// WHEN: Finance rejects it
	// THEN: The invoice is terminal but the enrollment stays pending so
	//       the parent can start over

	e, studentID, planID := newTestEngine(t)
	ctx := context.Background()

	invoiceID := submitDraft(t, e, studentID, planID)

	err := e.workflow.Reject(ctx, invoiceID, "Missing guardian documents", "finance-1")
	require.NoError(t, err)

	invoice, err := e.store.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, billing.WorkflowRejected, invoice.WorkflowStatus)
	assert.Equal(t, "Missing guardian documents", invoice.FinanceNotes)

	enr, err := e.store.EnrollmentForInvoice(ctx, invoiceID)
	require.NoError(t, err)
	require.NotNil(t, enr)
	assert.Equal(t, billing.EnrollmentPending, enr.Status)
	assert.Nil(t, enr.EnrolledAt)
}

func TestWorkflow_Approve_AfterRejection_Rejected(t *testing.T) {
	e, studentID, planID := newTestEngine(t)
	ctx := context.Background()

	invoiceID := submitDraft(t, e, studentID, planID)
	require.NoError(t, e.workflow.Reject(ctx, invoiceID, "no", "finance-1"))

	err := e.workflow.Approve(ctx, invoiceID, "changed my mind", "finance-1")
	assert.ErrorIs(t, err, billing.ErrStateTransition)
}
