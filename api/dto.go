/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All amounts cross the wire as decimal strings ("1250.00"), never as
  floats. Percentages likewise.

VALIDATION:
  Structural validation (required fields, parseable decimals) is done in
  handlers; domain validation lives in the services.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: CatalogJSON, the bulk-configuration format
*/
package api

import (
	"github.com/warp/enrollment-engine/billing"
	"github.com/warp/enrollment-engine/enrollment"
)

// =============================================================================
// DIRECTORY TYPES
// =============================================================================

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ClassID   string `json:"class_id"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateStudentRequest is the request to register a student.
type CreateStudentRequest struct {
	Name    string `json:"name"`
	ClassID string `json:"class_id"`
}

// TermDTO represents an academic term.
type TermDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// SaveTermRequest creates or updates a term. Activating a term
// deactivates all others.
type SaveTermRequest struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// FeeItemDTO represents a fee catalog entry.
type FeeItemDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SaveFeeItemRequest creates or renames a fee item.
type SaveFeeItemRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// =============================================================================
// FEE RULE TYPES
// =============================================================================

// FeeRuleDTO represents a fee rule. TermID null means the rule is a
// general default for every term.
type FeeRuleDTO struct {
	ID        string  `json:"id"`
	FeeItemID string  `json:"fee_item_id"`
	ClassID   string  `json:"class_id"`
	TermID    *string `json:"term_id,omitempty"`
	Amount    string  `json:"amount"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// CreateFeeRuleRequest creates a fee rule. Omit term_id for a general
// default.
type CreateFeeRuleRequest struct {
	FeeItemID string  `json:"fee_item_id"`
	ClassID   string  `json:"class_id"`
	TermID    *string `json:"term_id,omitempty"`
	Amount    string  `json:"amount"`
}

// UpdateFeeRuleRequest rescopes or reprices an existing rule.
type UpdateFeeRuleRequest struct {
	TermID *string `json:"term_id,omitempty"`
	Amount string  `json:"amount"`
	Active bool    `json:"active"`
}

// ResolvedFeeDTO is one mandatory charge after precedence resolution.
type ResolvedFeeDTO struct {
	FeeItemID string `json:"fee_item_id"`
	Label     string `json:"label"`
	Amount    string `json:"amount"`
}

// =============================================================================
// PLAN AND SERVICE TYPES
// =============================================================================

// PlanDTO represents an installment plan.
type PlanDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Active      bool     `json:"active"`
	Percentages []string `json:"percentages"`
}

// CreatePlanRequest defines a plan; percentages must sum to exactly 100.
type CreatePlanRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Percentages []string `json:"percentages"`
}

// PreviewScheduleRequest asks what a plan would allocate for an amount.
type PreviewScheduleRequest struct {
	TotalAmount string `json:"total_amount"`
}

// InstallmentDTO is one allocated slice of a total.
type InstallmentDTO struct {
	Sequence int    `json:"sequence"`
	Amount   string `json:"amount"`
}

// ServiceDTO represents an optional service.
type ServiceDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
}

// SaveServiceRequest creates or reprices an optional service. Already
// selected invoice lines keep their snapshotted amount.
type SaveServiceRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
}

// =============================================================================
// INVOICE TYPES
// =============================================================================

// InvoiceDTO represents an invoice with its line items.
type InvoiceDTO struct {
	ID                string           `json:"id"`
	StudentID         string           `json:"student_id"`
	TermID            string           `json:"term_id"`
	InstallmentPlanID *string          `json:"installment_plan_id,omitempty"`
	TotalAmount       string           `json:"total_amount"`
	AmountPaid        string           `json:"amount_paid"`
	Balance           string           `json:"balance"`
	PaymentStatus     string           `json:"payment_status"`
	WorkflowStatus    string           `json:"workflow_status"`
	ParentNotes       string           `json:"parent_notes,omitempty"`
	FinanceNotes      string           `json:"finance_notes,omitempty"`
	ReviewedBy        string           `json:"reviewed_by,omitempty"`
	CreatedAt         string           `json:"created_at"`
	Items             []InvoiceItemDTO `json:"items,omitempty"`
}

// InvoiceItemDTO is one line on an invoice.
type InvoiceItemDTO struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	SourceID string `json:"source_id,omitempty"`
	Label    string `json:"label"`
	Amount   string `json:"amount"`
}

// CreateDraftRequest starts (or returns) the student's invoice for the
// active term.
type CreateDraftRequest struct {
	StudentID string `json:"student_id"`
}

// AddServicesRequest selects optional services onto a draft.
type AddServicesRequest struct {
	ServiceIDs []string `json:"service_ids"`
}

// SetPlanRequest chooses the installment plan for a draft.
type SetPlanRequest struct {
	PlanID string `json:"plan_id"`
}

// SubmitInvoiceRequest hands a draft to finance.
type SubmitInvoiceRequest struct {
	ParentNotes string `json:"parent_notes,omitempty"`
}

// DecisionRequest is a finance approve/reject. Notes are required for
// rejection.
type DecisionRequest struct {
	Notes      string `json:"notes,omitempty"`
	ReviewerID string `json:"reviewer_id"`
}

// =============================================================================
// PAYMENT TYPES
// =============================================================================

// RecordPaymentRequest applies a settled payment to an approved invoice.
type RecordPaymentRequest struct {
	Amount     string `json:"amount"`
	Method     string `json:"method"`
	Reference  string `json:"reference,omitempty"`
	ReceivedBy string `json:"received_by,omitempty"`
}

// PaymentResultDTO is the settlement state after a payment lands.
type PaymentResultDTO struct {
	PaymentID     string `json:"payment_id"`
	Balance       string `json:"balance"`
	PaymentStatus string `json:"payment_status"`
}

// PaymentDTO is one recorded payment.
type PaymentDTO struct {
	ID         string `json:"id"`
	InvoiceID  string `json:"invoice_id"`
	StudentID  string `json:"student_id"`
	Amount     string `json:"amount"`
	Method     string `json:"method"`
	Reference  string `json:"reference,omitempty"`
	ReceivedBy string `json:"received_by,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// =============================================================================
// MISC TYPES
// =============================================================================

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toStudentDTO(s billing.Student) StudentDTO {
	return StudentDTO{
		ID:        string(s.ID),
		Name:      s.Name,
		ClassID:   string(s.ClassID),
		CreatedAt: s.CreatedAt.Format(timeFormat),
	}
}

func toTermDTO(t billing.Term) TermDTO {
	return TermDTO{ID: string(t.ID), Name: t.Name, Active: t.Active}
}

func toFeeRuleDTO(r billing.FeeItemRule) FeeRuleDTO {
	dto := FeeRuleDTO{
		ID:        string(r.ID),
		FeeItemID: string(r.FeeItemID),
		ClassID:   string(r.ClassID),
		Amount:    r.Amount.String(),
		Active:    r.Active,
		CreatedAt: r.CreatedAt.Format(timeFormat),
	}
	if r.TermID != nil {
		t := string(*r.TermID)
		dto.TermID = &t
	}
	return dto
}

func toPlanDTO(p billing.InstallmentPlan) PlanDTO {
	percentages := make([]string, len(p.Schedule))
	for i, step := range p.Schedule {
		percentages[i] = step.Percentage.String()
	}
	return PlanDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Active,
		Percentages: percentages,
	}
}

func toServiceDTO(s billing.OptionalService) ServiceDTO {
	return ServiceDTO{
		ID:          string(s.ID),
		Name:        s.Name,
		Description: s.Description,
		Amount:      s.Amount.String(),
	}
}

func toInvoiceDTO(inv billing.Invoice, items []billing.InvoiceItem) InvoiceDTO {
	dto := InvoiceDTO{
		ID:             string(inv.ID),
		StudentID:      string(inv.StudentID),
		TermID:         string(inv.TermID),
		TotalAmount:    inv.TotalAmount.String(),
		AmountPaid:     inv.AmountPaid.String(),
		Balance:        inv.Balance.String(),
		PaymentStatus:  string(inv.PaymentStatus),
		WorkflowStatus: string(inv.WorkflowStatus),
		ParentNotes:    inv.ParentNotes,
		FinanceNotes:   inv.FinanceNotes,
		ReviewedBy:     inv.ReviewedBy,
		CreatedAt:      inv.CreatedAt.Format(timeFormat),
	}
	if inv.InstallmentPlanID != nil {
		p := string(*inv.InstallmentPlanID)
		dto.InstallmentPlanID = &p
	}
	for _, item := range items {
		dto.Items = append(dto.Items, InvoiceItemDTO{
			ID:       item.ID,
			Source:   string(item.Source),
			SourceID: item.SourceID,
			Label:    item.Label,
			Amount:   item.Amount.String(),
		})
	}
	return dto
}

func toDraftDTO(d *enrollment.Draft) InvoiceDTO {
	return toInvoiceDTO(d.Invoice, d.Items)
}

func toPaymentDTO(p billing.Payment) PaymentDTO {
	return PaymentDTO{
		ID:         string(p.ID),
		InvoiceID:  string(p.InvoiceID),
		StudentID:  string(p.StudentID),
		Amount:     p.Amount.String(),
		Method:     p.Method,
		Reference:  p.Reference,
		ReceivedBy: p.ReceivedBy,
		CreatedAt:  p.CreatedAt.Format(timeFormat),
	}
}
