package enrollment_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/enrollment-engine/billing"
	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type engine struct {
	store     *sqlite.Store
	directory *billing.DirectoryService
	rules     *billing.RuleService
	plans     *billing.PlanService
	builder   *enrollment.InvoiceBuilder
	workflow  *enrollment.Workflow
	ledger    *enrollment.PaymentLedger
}

// newTestEngine builds the full service stack on an in-memory store
// with one active term, tuition/library rules for grade-1 (tuition has
// a 550 term override of the 500 default), a 50/50 plan, and a bus
// service.
func newTestEngine(t *testing.T) (*engine, billing.StudentID, billing.PlanID) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	e := &engine{
		store:     store,
		directory: billing.NewDirectoryService(store),
		rules:     billing.NewRuleService(store),
		plans:     billing.NewPlanService(store),
		builder:   enrollment.NewInvoiceBuilder(store),
		workflow:  enrollment.NewWorkflow(store),
		ledger:    enrollment.NewPaymentLedger(store),
	}
	ctx := context.Background()

	require.NoError(t, e.directory.SaveTerm(ctx, billing.Term{ID: "term-1", Name: "Term 1", Active: true}))

	_, err = e.directory.SaveFeeItem(ctx, billing.FeeItem{ID: "tuition", Name: "Tuition"})
	require.NoError(t, err)
	_, err = e.directory.SaveFeeItem(ctx, billing.FeeItem{ID: "library", Name: "Library Fee"})
	require.NoError(t, err)

	_, err = e.rules.CreateRule(ctx, "tuition", "grade-1", nil, billing.NewMoney(500))
	require.NoError(t, err)
	termID := billing.TermID("term-1")
	_, err = e.rules.CreateRule(ctx, "tuition", "grade-1", &termID, billing.NewMoney(550))
	require.NoError(t, err)
	_, err = e.rules.CreateRule(ctx, "library", "grade-1", nil, billing.NewMoney(50))
	require.NoError(t, err)

	plan, err := e.plans.CreatePlan(ctx, "Two halves", "", []decimal.Decimal{
		decimal.NewFromInt(50), decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	_, err = e.directory.SaveService(ctx, billing.OptionalService{
		ID: "bus", Name: "School Bus", Amount: billing.NewMoney(80),
	})
	require.NoError(t, err)

	student, err := e.directory.RegisterStudent(ctx, "Alice Ward", "grade-1")
	require.NoError(t, err)

	return e, student.ID, plan.ID
}

// submitDraft walks a fresh draft to pending_finance.
func submitDraft(t *testing.T, e *engine, studentID billing.StudentID, planID billing.PlanID) billing.InvoiceID {
	ctx := context.Background()
	draft, err := e.builder.CreateDraft(ctx, studentID)
	require.NoError(t, err)
	require.NoError(t, e.builder.SetInstallmentPlan(ctx, draft.Invoice.ID, planID))
	require.NoError(t, e.builder.SubmitInvoice(ctx, draft.Invoice.ID, ""))
	return draft.Invoice.ID
}

// =============================================================================
// DRAFT CREATION TESTS
// =============================================================================

func TestInvoiceBuilder_CreateDraft_ResolvesFeesWithPrecedence(t *testing.T) {
	// GIVEN: Tuition 500 default, 550 override for the active term, library 50
	// WHEN: Creating a draft for a grade-1 student
	// THEN: Total is 600 (550 + 50), the override beat the default

	e, studentID, _ := newTestEngine(t)
	ctx := context.Background()

	draft, err := e.builder.CreateDraft(ctx, studentID)

	require.NoError(t, err)
	assert.Equal(t, billing.WorkflowDraft, draft.Invoice.WorkflowStatus)
	assert.Equal(t, billing.PaymentUnpaid, draft.Invoice.PaymentStatus)
	assert.Equal(t, "600.00", draft.Invoice.TotalAmount.String())
	assert.Equal(t, "600.00", draft.Invoice.Balance.String())
	require.Len(t, draft.Items, 2)
	for _, item := range draft.Items {
		assert.Equal(t, billing.SourceFeeItem, item.Source)
	}
}

func TestInvoiceBuilder_CreateDraft_Idempotent(t *testing.T) {
	// GIVEN: A student already has a draft for the active term
	// WHEN: Creating again
	// THEN: The same invoice comes back, nothing is duplicated

	e, studentID, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.builder.CreateDraft(ctx, studentID)
	require.NoError(t, err)
	second, err := e.builder.CreateDraft(ctx, studentID)
	require.NoError(t, err)

	assert.Equal(t, first.Invoice.ID, second.Invoice.ID)
	assert.Len(t, second.Items, len(first.Items))

	invoices, err := e.store.ListInvoices(ctx, "")
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestInvoiceBuilder_CreateDraft_UnknownStudent_NotFound(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.builder.CreateDraft(context.Background(), "ghost")
	assert.True(t, billing.IsNotFound(err))
}

func TestInvoiceBuilder_CreateDraft_NoActiveTerm_ConfigurationError(t *testing.T) {
	e, studentID, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.directory.SaveTerm(ctx, billing.Term{ID: "term-1", Name: "Term 1", Active: false}))

	_, err := e.builder.CreateDraft(ctx, studentID)
	assert.ErrorIs(t, err, billing.ErrConfiguration)
}

func TestInvoiceBuilder_CreateDraft_AfterRejection_FreshDraft(t *testing.T) {
	// GIVEN: The student's first invoice was rejected
	// WHEN: Creating a draft again
	// THEN: A NEW draft appears; the rejected invoice is never reused

	e, studentID, planID := newTestEngine(t)
	ctx := context.Background()

	first := submitDraft(t, e, studentID, planID)
	require.NoError(t, e.workflow.Reject(ctx, first, "Missing documents", "finance-1"))

	fresh, err := e.builder.CreateDraft(ctx, studentID)

	require.NoError(t, err)
	assert.NotEqual(t, first, fresh.Invoice.ID)
	assert.Equal(t, billing.WorkflowDraft, fresh.Invoice.WorkflowStatus)

	// The enrollment row was relinked, not duplicated.
	enr, err := e.store.EnrollmentForInvoice(ctx, fresh.Invoice.ID)
	require.NoError(t, err)
	require.NotNil(t, enr)
	assert.Equal(t, billing.EnrollmentPending, enr.Status)
}

// =============================================================================
// OPTIONAL SERVICE TESTS
// =============================================================================

func TestInvoiceBuilder_AddOptionalServices_RecomputesTotal(t *testing.T) {
	e, studentID, _ := newTestEngine(t)
	ctx := context.Background()

	draft, err := e.builder.CreateDraft(ctx, studentID)
	require.NoError(t, err)

	total, err := e.builder.AddOptionalServices(ctx, draft.Invoice.ID, []billing.ServiceID{"bus"})

	require.NoError(t, err)
	assert.Equal(t, "680.00", total.String())

	invoice, err := e.store.GetInvoice(ctx, draft.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "680.00", invoice.TotalAmount.String())
	assert.Equal(t, "680.00", invoice.Balance.String())
}

func TestInvoiceBuilder_AddOptionalServices_DuplicateSelection_Skipped(t *testing.T) {
	e, studentID, _ := newTestEngine(t)
	ctx := context.Background()

	draft, err := e.builder.CreateDraft(ctx, studentID)
	require.NoError(t, err)

	_, err = e.builder.AddOptionalServices(ctx, draft.Invoice.ID, []billing.ServiceID{"bus"})
	require.NoError(t, err)
	total, err := e.builder.AddOptionalServices(ctx, draft.Invoice.ID, []billing.ServiceID{"bus"})
	require.NoError(t, err)

	assert.Equal(t, "680.00", total.String(), "bus must be charged once")

	items, err := e.store.ItemsForInvoice(ctx, draft.Invoice.ID)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestInvoiceBuilder_AddOptionalServices_AmountIsSnapshot(t *testing.T) {
	// GIVEN: The bus was selected at 80.00
	// WHEN: The service is repriced to 95.00
	// THEN: The invoice line keeps 80.00

	e, studentID, _ := newTestEngine(t)
	ctx := context.Background()

	draft, err := e.builder.CreateDraft(ctx, studentID)
	require.NoError(t, err)
	_, err = e.builder.AddOptionalServices(ctx, draft.Invoice.ID, []billing.ServiceID{"bus"})
	require.NoError(t, err)

	_, err = e.directory.SaveService(ctx, billing.OptionalService{
		ID: "bus", Name: "School Bus", Amount: billing.NewMoney(95),
	})
	require.NoError(t, err)

	invoice, err := e.store.GetInvoice(ctx, draft.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "680.00", invoice.TotalAmount.String())

	items, err := e.store.ItemsForInvoice(ctx, draft.Invoice.ID)
	require.NoError(t, err)
	for _, item := range items {
		if item.Source == billing.SourceOptionalService {
			assert.Equal(t, "80.00", item.Amount.String())
		}
	}
}

func TestInvoiceBuilder_AddOptionalServices_AfterSubmit_Rejected(t *testing.T) {
	e, studentID, planID := newTestEngine(t)
	ctx := context.Background()

	invoiceID := submitDraft(t, e, studentID, planID)

	_, err := e.builder.AddOptionalServices(ctx, invoiceID, []billing.ServiceID{"bus"})
	assert.ErrorIs(t, err, billing.ErrStateTransition)
}

func TestInvoiceBuilder_AddOptionalServices_UnknownService_NothingAdded(t *testing.T) {
	e, studentID, _ := newTestEngine(t)
	ctx := context.Background()

	draft, err := e.builder.CreateDraft(ctx, studentID)
	require.NoError(t, err)

	_, err = e.builder.AddOptionalServices(ctx, draft.Invoice.ID, []billing.ServiceID{"bus", "ghost"})
	assert.True(t, billing.IsNotFound(err))

	// The whole selection rolled back; not even the bus landed.
	invoice, err := e.store.GetInvoice(ctx, draft.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "600.00", invoice.TotalAmount.String())
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestInvoiceBuilder_SubmitInvoice_WithoutPlan_RejectedAndStillDraft(t *testing.T) {
	// GIVEN: A draft with no installment plan chosen
	// WHEN: Submitting
	// THEN: Validation error, and the invoice remains a draft

	e, studentID, _ := newTestEngine(t)
	ctx := context.Background()

	draft, err := e.builder.CreateDraft(ctx, studentID)
	require.NoError(t, err)

	err = e.builder.SubmitInvoice(ctx, draft.Invoice.ID, "")
	assert.ErrorIs(t, err, billing.ErrValidation)

	invoice, err := e.store.GetInvoice(ctx, draft.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.WorkflowDraft, invoice.WorkflowStatus)
}

func TestInvoiceBuilder_SubmitInvoice_Twice_NoOp(t *testing.T) {
	e, studentID, planID := newTestEngine(t)
	ctx := context.Background()

	invoiceID := submitDraft(t, e, studentID, planID)

	// Duplicate form submission is tolerated.
	assert.NoError(t, e.builder.SubmitInvoice(ctx, invoiceID, "second click"))

	invoice, err := e.store.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, billing.WorkflowPendingFinance, invoice.WorkflowStatus)
}

func TestInvoiceBuilder_SetInstallmentPlan_InactivePlan_Rejected(t *testing.T) {
	e, studentID, _ := newTestEngine(t)
	ctx := context.Background()

	retired := billing.InstallmentPlan{
		ID: "old-plan", Name: "Retired", Active: false,
		Schedule: []billing.PlanStep{{Percentage: decimal.NewFromInt(100)}},
	}
	require.NoError(t, e.store.SavePlan(ctx, retired))

	draft, err := e.builder.CreateDraft(ctx, studentID)
	require.NoError(t, err)

	err = e.builder.SetInstallmentPlan(ctx, draft.Invoice.ID, "old-plan")
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestInvoiceBuilder_SetInstallmentPlan_AfterSubmit_Rejected(t *testing.T) {
	e, studentID, planID := newTestEngine(t)
	ctx := context.Background()

	invoiceID := submitDraft(t, e, studentID, planID)

	err := e.builder.SetInstallmentPlan(ctx, invoiceID, planID)
	assert.ErrorIs(t, err, billing.ErrStateTransition)
}
