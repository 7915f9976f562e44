/*
handlers_test.go - HTTP-level tests for the API

Tests for:
- The full parent flow (draft, services, plan, submit) over HTTP
- Finance decisions and payments
- Error-to-status mapping
- Catalog loading and scenario endpoints
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/enrollment-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) *chi.Mux {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	router := NewRouter(NewHandler(store))

	// Seed the demo catalog through the API itself.
	resp := doRaw(t, router, http.MethodPost, "/api/catalog", []byte(baseCatalogJSON))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return router
}

func doRaw(t *testing.T, router *chi.Mux, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, router *chi.Mux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	return doRaw(t, router, method, path, payload)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func registerStudent(t *testing.T, router *chi.Mux, name, classID string) StudentDTO {
	t.Helper()
	resp := doJSON(t, router, http.MethodPost, "/api/students",
		CreateStudentRequest{Name: name, ClassID: classID})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[StudentDTO](t, resp)
}

func planIDByName(t *testing.T, router *chi.Mux, name string) string {
	t.Helper()
	resp := doJSON(t, router, http.MethodGet, "/api/plans", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	for _, p := range decode[[]PlanDTO](t, resp) {
		if p.Name == name {
			return p.ID
		}
	}
	t.Fatalf("plan %q not found", name)
	return ""
}

// submittedInvoice walks a student through draft, plan, submit and
// returns the invoice ID.
func submittedInvoice(t *testing.T, router *chi.Mux, classID string) string {
	t.Helper()
	student := registerStudent(t, router, "Test Student", classID)

	resp := doJSON(t, router, http.MethodPost, "/api/invoices",
		CreateDraftRequest{StudentID: student.ID})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	invoice := decode[InvoiceDTO](t, resp)

	planID := planIDByName(t, router, "Two halves")
	resp = doJSON(t, router, http.MethodPost, "/api/invoices/"+invoice.ID+"/plan",
		SetPlanRequest{PlanID: planID})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = doJSON(t, router, http.MethodPost, "/api/invoices/"+invoice.ID+"/submit",
		SubmitInvoiceRequest{})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return invoice.ID
}

// =============================================================================
// PARENT FLOW TESTS
// =============================================================================

func TestAPI_CreateDraft_ResolvesCatalogFees(t *testing.T) {
	// GIVEN: The demo catalog (grade-1 tuition 1200 + library 50)
	// WHEN: A parent starts a draft
	// THEN: The invoice carries both mandatory lines and their sum

	router := newTestRouter(t)
	student := registerStudent(t, router, "Alice Ward", "grade-1")

	resp := doJSON(t, router, http.MethodPost, "/api/invoices",
		CreateDraftRequest{StudentID: student.ID})

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	invoice := decode[InvoiceDTO](t, resp)
	assert.Equal(t, "draft", invoice.WorkflowStatus)
	assert.Equal(t, "unpaid", invoice.PaymentStatus)
	assert.Equal(t, "1250.00", invoice.TotalAmount)
	assert.Len(t, invoice.Items, 2)
}

func TestAPI_CreateDraft_UnknownStudent_404(t *testing.T) {
	router := newTestRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/invoices",
		CreateDraftRequest{StudentID: "nope"})

	assert.Equal(t, http.StatusNotFound, resp.Code)
	body := decode[ErrorResponse](t, resp)
	assert.NotEmpty(t, body.Error)
}

func TestAPI_AddServices_RecomputesTotal(t *testing.T) {
	router := newTestRouter(t)
	student := registerStudent(t, router, "Alice Ward", "grade-1")

	resp := doJSON(t, router, http.MethodPost, "/api/invoices",
		CreateDraftRequest{StudentID: student.ID})
	require.Equal(t, http.StatusCreated, resp.Code)
	invoice := decode[InvoiceDTO](t, resp)

	resp = doJSON(t, router, http.MethodPost, "/api/invoices/"+invoice.ID+"/services",
		AddServicesRequest{ServiceIDs: []string{"bus"}})

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	result := decode[map[string]string](t, resp)
	assert.Equal(t, "1330.00", result["total_amount"])

	resp = doJSON(t, router, http.MethodGet, "/api/invoices/"+invoice.ID, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	updated := decode[InvoiceDTO](t, resp)
	assert.Equal(t, "1330.00", updated.TotalAmount)
	assert.Len(t, updated.Items, 3)
}

func TestAPI_SubmitWithoutPlan_400(t *testing.T) {
	router := newTestRouter(t)
	student := registerStudent(t, router, "Alice Ward", "grade-1")

	resp := doJSON(t, router, http.MethodPost, "/api/invoices",
		CreateDraftRequest{StudentID: student.ID})
	require.Equal(t, http.StatusCreated, resp.Code)
	invoice := decode[InvoiceDTO](t, resp)

	resp = doJSON(t, router, http.MethodPost, "/api/invoices/"+invoice.ID+"/submit",
		SubmitInvoiceRequest{})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAPI_GetSchedule_SplitsTotalByPlan(t *testing.T) {
	router := newTestRouter(t)
	invoiceID := submittedInvoice(t, router, "grade-1")

	resp := doJSON(t, router, http.MethodGet, "/api/invoices/"+invoiceID+"/schedule", nil)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	schedule := decode[[]InstallmentDTO](t, resp)
	require.Len(t, schedule, 2)
	assert.Equal(t, 1, schedule[0].Sequence)
	assert.Equal(t, "625.00", schedule[0].Amount)
	assert.Equal(t, "625.00", schedule[1].Amount)
}

// =============================================================================
// FINANCE FLOW TESTS
// =============================================================================

func TestAPI_ApproveThenPay_FullCycle(t *testing.T) {
	// GIVEN: A submitted grade-1 invoice of 1250.00
	// WHEN: Finance approves and records two payments
	// THEN: The invoice ends approved and paid with a two-entry history

	router := newTestRouter(t)
	invoiceID := submittedInvoice(t, router, "grade-1")

	resp := doJSON(t, router, http.MethodPost, "/api/invoices/"+invoiceID+"/approve",
		DecisionRequest{ReviewerID: "finance-1"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = doJSON(t, router, http.MethodPost, "/api/invoices/"+invoiceID+"/payments",
		RecordPaymentRequest{Amount: "625.00", Method: "bank_transfer", Reference: "TXN-1"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	result := decode[PaymentResultDTO](t, resp)
	assert.Equal(t, "625.00", result.Balance)
	assert.Equal(t, "partial", result.PaymentStatus)

	resp = doJSON(t, router, http.MethodPost, "/api/invoices/"+invoiceID+"/payments",
		RecordPaymentRequest{Amount: "625.00", Method: "cash"})
	require.Equal(t, http.StatusCreated, resp.Code)
	result = decode[PaymentResultDTO](t, resp)
	assert.Equal(t, "0.00", result.Balance)
	assert.Equal(t, "paid", result.PaymentStatus)

	resp = doJSON(t, router, http.MethodGet, "/api/invoices/"+invoiceID+"/payments", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]PaymentDTO](t, resp), 2)
}

func TestAPI_Overpayment_422(t *testing.T) {
	router := newTestRouter(t)
	invoiceID := submittedInvoice(t, router, "grade-1")

	resp := doJSON(t, router, http.MethodPost, "/api/invoices/"+invoiceID+"/approve",
		DecisionRequest{ReviewerID: "finance-1"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(t, router, http.MethodPost, "/api/invoices/"+invoiceID+"/payments",
		RecordPaymentRequest{Amount: "2000.00", Method: "cash"})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestAPI_ApproveDraft_409(t *testing.T) {
	// Deciding an unsubmitted invoice is an illegal transition.
	router := newTestRouter(t)
	student := registerStudent(t, router, "Alice Ward", "grade-1")

	resp := doJSON(t, router, http.MethodPost, "/api/invoices",
		CreateDraftRequest{StudentID: student.ID})
	require.Equal(t, http.StatusCreated, resp.Code)
	invoice := decode[InvoiceDTO](t, resp)

	resp = doJSON(t, router, http.MethodPost, "/api/invoices/"+invoice.ID+"/approve",
		DecisionRequest{ReviewerID: "finance-1"})

	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestAPI_RejectWithoutNotes_400(t *testing.T) {
	router := newTestRouter(t)
	invoiceID := submittedInvoice(t, router, "grade-1")

	resp := doJSON(t, router, http.MethodPost, "/api/invoices/"+invoiceID+"/reject",
		DecisionRequest{ReviewerID: "finance-1"})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

// =============================================================================
// CONFIGURATION TESTS
// =============================================================================

func TestAPI_CreateFeeRule_DuplicateScope_409(t *testing.T) {
	// The catalog already has a general grade-1 tuition rule.
	router := newTestRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/fee-rules",
		CreateFeeRuleRequest{FeeItemID: "tuition", ClassID: "grade-1", Amount: "1300.00"})

	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestAPI_ResolveFees_TermOverrideWins(t *testing.T) {
	// GIVEN: A term-specific tuition rate on top of the general default
	// WHEN: Resolving fees for that class and term
	// THEN: The override amount is returned

	router := newTestRouter(t)

	termID := "2026-term-1"
	resp := doJSON(t, router, http.MethodPost, "/api/fee-rules",
		CreateFeeRuleRequest{FeeItemID: "tuition", ClassID: "grade-1", TermID: &termID, Amount: "1350.00"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/api/fees?class_id=%s&term_id=%s", "grade-1", termID), nil)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	fees := decode[[]ResolvedFeeDTO](t, resp)
	require.Len(t, fees, 2)
	byItem := map[string]string{}
	for _, f := range fees {
		byItem[f.FeeItemID] = f.Amount
	}
	assert.Equal(t, "1350.00", byItem["tuition"])
	assert.Equal(t, "50.00", byItem["library"])
}

func TestAPI_CreatePlan_BadSum_400(t *testing.T) {
	router := newTestRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/plans",
		CreatePlanRequest{Name: "Broken", Percentages: []string{"60", "30"}})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAPI_PreviewSchedule_RemainderOnLast(t *testing.T) {
	router := newTestRouter(t)
	planID := planIDByName(t, router, "Three uneven")

	resp := doJSON(t, router, http.MethodPost, "/api/plans/"+planID+"/preview",
		PreviewScheduleRequest{TotalAmount: "100.01"})

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	schedule := decode[[]InstallmentDTO](t, resp)
	require.Len(t, schedule, 3)
	assert.Equal(t, "40.00", schedule[0].Amount)
	assert.Equal(t, "30.00", schedule[1].Amount)
	assert.Equal(t, "30.01", schedule[2].Amount)
}

// =============================================================================
// SCENARIO TESTS
// =============================================================================

func TestAPI_LoadScenario_EnrollmentDay(t *testing.T) {
	router := newTestRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/scenarios/load",
		LoadScenarioRequest{ScenarioID: "enrollment-day"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = doJSON(t, router, http.MethodGet, "/api/students", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]StudentDTO](t, resp), 4)

	resp = doJSON(t, router, http.MethodGet, "/api/invoices?status=pending_finance", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]InvoiceDTO](t, resp), 1)

	resp = doJSON(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "enrollment-day", decode[ScenarioDTO](t, resp).ID)
}

func TestAPI_LoadScenario_Unknown_400(t *testing.T) {
	router := newTestRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/scenarios/load",
		LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
