/*
handlers.go - HTTP API handlers for the enrollment invoicing engine

PURPOSE:
  Exposes the invoicing engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Students:
    GET    /api/students                 List all students
    POST   /api/students                 Register a student
    GET    /api/students/{id}            Get student details

  Invoices (parent flow):
    POST   /api/invoices                 Create or return the term draft
    GET    /api/invoices                 List invoices (?status=)
    GET    /api/invoices/{id}            Get invoice with items
    POST   /api/invoices/{id}/services   Select optional services
    POST   /api/invoices/{id}/plan       Choose installment plan
    POST   /api/invoices/{id}/submit     Submit for finance review
    GET    /api/invoices/{id}/schedule   Installment breakdown

  Invoices (finance flow):
    POST   /api/invoices/{id}/approve    Approve and enroll
    POST   /api/invoices/{id}/reject     Reject with reason
    POST   /api/invoices/{id}/payments   Record a settled payment
    GET    /api/invoices/{id}/payments   Payment history

  Configuration:
    GET/POST        /api/fee-items       Fee catalog
    GET/POST        /api/fee-rules       Fee rules
    PUT/DELETE      /api/fee-rules/{id}  Update / deactivate a rule
    GET             /api/fees            Resolve fees (?class_id=&term_id=)
    GET/POST        /api/plans           Installment plans
    POST            /api/plans/{id}/preview  Allocation preview
    GET/POST        /api/services        Optional services
    GET/POST        /api/terms           Academic terms
    POST            /api/catalog         Bulk-load a JSON catalog

  Scenarios:
    GET    /api/scenarios                List demo scenarios
    POST   /api/scenarios/load           Load a demo scenario
    POST   /api/scenarios/reset          Wipe the database

ERROR HANDLING:
  Domain errors map to HTTP status by classification:
  - 400: validation errors, invalid plans
  - 404: missing records
  - 409: duplicate rules, illegal workflow transitions
  - 422: overpayments
  - 500: configuration and persistence failures

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are
  public. Reviewer identity is taken from the request body.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/billing"
	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/factory"
	"github.com/warp/enrollment-engine/store/sqlite"
)

const timeFormat = time.RFC3339

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Directory *billing.DirectoryService
	Rules     *billing.RuleService
	Plans     *billing.PlanService
	Resolver  *billing.FeeRuleResolver
	Builder   *enrollment.InvoiceBuilder
	Workflow  *enrollment.Workflow
	Ledger    *enrollment.PaymentLedger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:     store,
		Directory: billing.NewDirectoryService(store),
		Rules:     billing.NewRuleService(store),
		Plans:     billing.NewPlanService(store),
		Resolver:  billing.NewFeeRuleResolver(store),
		Builder:   enrollment.NewInvoiceBuilder(store),
		Workflow:  enrollment.NewWorkflow(store),
		Ledger:    enrollment.NewPaymentLedger(store),
	}
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns all students.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, 0, len(students))
	for _, s := range students {
		dtos = append(dtos, toStudentDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStudent registers a new student.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	student, err := h.Directory.RegisterStudent(r.Context(), req.Name, billing.ClassID(req.ClassID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(*student))
}

// GetStudent returns one student.
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id := billing.StudentID(chi.URLParam(r, "id"))
	student, err := h.Store.GetStudent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load student", err)
		return
	}
	if student == nil {
		writeError(w, http.StatusNotFound, "student not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*student))
}

// =============================================================================
// INVOICE HANDLERS (parent flow)
// =============================================================================

// CreateDraft creates the student's draft invoice for the active term,
// or returns the existing open invoice. Safe to retry.
func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req CreateDraftRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.StudentID == "" {
		writeError(w, http.StatusBadRequest, "student_id is required", nil)
		return
	}

	draft, err := h.Builder.CreateDraft(r.Context(), billing.StudentID(req.StudentID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDraftDTO(draft))
}

// ListInvoices returns invoices, optionally filtered by workflow status.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	status := billing.WorkflowStatus(r.URL.Query().Get("status"))
	invoices, err := h.Store.ListInvoices(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list invoices", err)
		return
	}

	dtos := make([]InvoiceDTO, 0, len(invoices))
	for _, inv := range invoices {
		dtos = append(dtos, toInvoiceDTO(inv, nil))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns one invoice with its line items.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	invoice, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load invoice", err)
		return
	}
	if invoice == nil {
		writeError(w, http.StatusNotFound, "invoice not found", nil)
		return
	}
	items, err := h.Store.ItemsForInvoice(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load invoice items", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*invoice, items))
}

// AddServices selects optional services onto a draft invoice.
func (h *Handler) AddServices(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	var req AddServicesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	serviceIDs := make([]billing.ServiceID, len(req.ServiceIDs))
	for i, s := range req.ServiceIDs {
		serviceIDs[i] = billing.ServiceID(s)
	}

	total, err := h.Builder.AddOptionalServices(r.Context(), id, serviceIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"total_amount": total.String()})
}

// SetPlan chooses the installment plan for a draft invoice.
func (h *Handler) SetPlan(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	var req SetPlanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.Builder.SetInstallmentPlan(r.Context(), id, billing.PlanID(req.PlanID)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitInvoice hands a draft to finance. Submitting an already
// submitted invoice is a no-op.
func (h *Handler) SubmitInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	var req SubmitInvoiceRequest
	if err := decodeBody(r, &req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.Builder.SubmitInvoice(r.Context(), id, req.ParentNotes); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pending_finance"})
}

// GetSchedule returns the installment breakdown for an invoice's chosen
// plan and current total.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	invoice, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load invoice", err)
		return
	}
	if invoice == nil {
		writeError(w, http.StatusNotFound, "invoice not found", nil)
		return
	}
	if invoice.InstallmentPlanID == nil {
		writeError(w, http.StatusBadRequest, "invoice has no installment plan", nil)
		return
	}

	schedule, err := h.Plans.PreviewSchedule(r.Context(), *invoice.InstallmentPlanID, invoice.TotalAmount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTOs(schedule))
}

// =============================================================================
// INVOICE HANDLERS (finance flow)
// =============================================================================

// ApproveInvoice accepts a pending invoice and activates the enrollment.
func (h *Handler) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	var req DecisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.Workflow.Approve(r.Context(), id, req.Notes, req.ReviewerID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// RejectInvoice declines a pending invoice. A reason is required.
func (h *Handler) RejectInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	var req DecisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.Workflow.Reject(r.Context(), id, req.Notes, req.ReviewerID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// RecordPayment applies a settled payment to an approved invoice.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	var req RecordPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}

	result, err := h.Ledger.RecordPayment(r.Context(), id, amount, req.Method, req.Reference, req.ReceivedBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PaymentResultDTO{
		PaymentID:     string(result.PaymentID),
		Balance:       result.Balance.String(),
		PaymentStatus: string(result.PaymentStatus),
	})
}

// ListPayments returns the payment history for an invoice.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	payments, err := h.Ledger.Payments(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, toPaymentDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// FEE CONFIGURATION HANDLERS
// =============================================================================

// ListFeeItems returns the fee catalog.
func (h *Handler) ListFeeItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListFeeItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list fee items", err)
		return
	}

	dtos := make([]FeeItemDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, FeeItemDTO{ID: string(item.ID), Name: item.Name})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveFeeItem creates or renames a fee item.
func (h *Handler) SaveFeeItem(w http.ResponseWriter, r *http.Request) {
	var req SaveFeeItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	item, err := h.Directory.SaveFeeItem(r.Context(), billing.FeeItem{
		ID:   billing.FeeItemID(req.ID),
		Name: req.Name,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FeeItemDTO{ID: string(item.ID), Name: item.Name})
}

// ListFeeRules returns every fee rule, active or not.
func (h *Handler) ListFeeRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Rules.ListRules(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]FeeRuleDTO, 0, len(rules))
	for _, rule := range rules {
		dtos = append(dtos, toFeeRuleDTO(rule))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateFeeRule creates a fee rule; a conflicting active rule is a 409.
func (h *Handler) CreateFeeRule(w http.ResponseWriter, r *http.Request) {
	var req CreateFeeRuleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}

	rule, err := h.Rules.CreateRule(r.Context(),
		billing.FeeItemID(req.FeeItemID), billing.ClassID(req.ClassID),
		toTermID(req.TermID), amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeeRuleDTO(*rule))
}

// UpdateFeeRule rescopes or reprices an existing rule.
func (h *Handler) UpdateFeeRule(w http.ResponseWriter, r *http.Request) {
	id := billing.RuleID(chi.URLParam(r, "id"))
	var req UpdateFeeRuleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}

	rule, err := h.Rules.UpdateRule(r.Context(), id, toTermID(req.TermID), amount, req.Active)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeeRuleDTO(*rule))
}

// DeactivateFeeRule retires a rule. Existing invoices keep their
// snapshotted amounts.
func (h *Handler) DeactivateFeeRule(w http.ResponseWriter, r *http.Request) {
	id := billing.RuleID(chi.URLParam(r, "id"))
	if err := h.Rules.DeactivateRule(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ResolveFees previews the mandatory fees for a class and term after
// precedence resolution.
func (h *Handler) ResolveFees(w http.ResponseWriter, r *http.Request) {
	classID := billing.ClassID(r.URL.Query().Get("class_id"))
	termID := billing.TermID(r.URL.Query().Get("term_id"))
	if classID == "" || termID == "" {
		writeError(w, http.StatusBadRequest, "class_id and term_id are required", nil)
		return
	}

	fees, err := h.Resolver.ResolveMandatoryFees(r.Context(), classID, termID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ResolvedFeeDTO, 0, len(fees))
	for _, fee := range fees {
		dtos = append(dtos, ResolvedFeeDTO{
			FeeItemID: string(fee.FeeItemID),
			Label:     fee.Label,
			Amount:    fee.Amount.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PLAN AND SERVICE HANDLERS
// =============================================================================

// ListPlans returns all installment plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Plans.ListPlans(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PlanDTO, 0, len(plans))
	for _, plan := range plans {
		dtos = append(dtos, toPlanDTO(plan))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePlan defines an installment plan. Percentages that do not sum
// to exactly 100 are a 400.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	percentages := make([]decimal.Decimal, len(req.Percentages))
	for i, s := range req.Percentages {
		d, err := decimal.NewFromString(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid percentage", err)
			return
		}
		percentages[i] = d
	}

	plan, err := h.Plans.CreatePlan(r.Context(), req.Name, req.Description, percentages)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanDTO(*plan))
}

// PreviewSchedule shows what a plan would allocate for a total amount.
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	id := billing.PlanID(chi.URLParam(r, "id"))
	var req PreviewScheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	total, err := parseMoney(req.TotalAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid total_amount", err)
		return
	}

	schedule, err := h.Plans.PreviewSchedule(r.Context(), id, total)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTOs(schedule))
}

// ListServices returns all optional services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Store.ListServices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list services", err)
		return
	}

	dtos := make([]ServiceDTO, 0, len(services))
	for _, svc := range services {
		dtos = append(dtos, toServiceDTO(svc))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveService creates or reprices an optional service.
func (h *Handler) SaveService(w http.ResponseWriter, r *http.Request) {
	var req SaveServiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}

	svc, err := h.Directory.SaveService(r.Context(), billing.OptionalService{
		ID:          billing.ServiceID(req.ID),
		Name:        req.Name,
		Description: req.Description,
		Amount:      amount,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toServiceDTO(*svc))
}

// =============================================================================
// TERM HANDLERS
// =============================================================================

// ListTerms returns all terms.
func (h *Handler) ListTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := h.Store.ListTerms(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list terms", err)
		return
	}

	dtos := make([]TermDTO, 0, len(terms))
	for _, term := range terms {
		dtos = append(dtos, toTermDTO(term))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveTerm creates or updates a term. Activating a term deactivates all
// others.
func (h *Handler) SaveTerm(w http.ResponseWriter, r *http.Request) {
	var req SaveTermRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	term := billing.Term{ID: billing.TermID(req.ID), Name: req.Name, Active: req.Active}
	if err := h.Directory.SaveTerm(r.Context(), term); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTermDTO(term))
}

// =============================================================================
// CATALOG HANDLER
// =============================================================================

// LoadCatalog bulk-loads a JSON fee catalog through the validated
// services.
func (h *Handler) LoadCatalog(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body", err)
		return
	}
	catalog, err := factory.ParseCatalog(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid catalog", err)
		return
	}

	loader := factory.NewCatalogLoader(h.Store)
	if err := loader.Seed(r.Context(), catalog); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "loaded"})
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps typed engine errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case billing.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, billing.ErrOverpayment):
		writeError(w, http.StatusUnprocessableEntity, "overpayment", err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, "invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func parseMoney(s string) (billing.Money, error) {
	if s == "" {
		return billing.ZeroMoney(), errors.New("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return billing.ZeroMoney(), err
	}
	return billing.Money{Value: d.Round(2)}, nil
}

func toTermID(s *string) *billing.TermID {
	if s == nil || *s == "" {
		return nil
	}
	t := billing.TermID(*s)
	return &t
}

func toInstallmentDTOs(schedule []billing.Installment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, 0, len(schedule))
	for _, inst := range schedule {
		dtos = append(dtos, InstallmentDTO{Sequence: inst.Sequence, Amount: inst.Amount.String()})
	}
	return dtos
}
