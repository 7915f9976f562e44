/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates terms, fee rules,
	students, and invoices that demonstrate specific features.

AVAILABLE SCENARIOS:

	fresh-term:     Configured catalog, no students yet
	enrollment-day: Students mid-flow (draft, pending, approved)
	term-override:  Term-specific fee overriding the class default

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Load the fee catalog via the factory
 3. Register students
 4. Walk invoices through the workflow as the scenario requires

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "enrollment-day"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Service wiring the loaders reuse
  - factory/catalog.go: Catalog JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/enrollment-engine/billing"
	"github.com/warp/enrollment-engine/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-term",
		Name:        "Fresh Term",
		Description: "Catalog, rules, and plans configured; no students yet",
	},
	{
		ID:          "enrollment-day",
		Name:        "Enrollment Day",
		Description: "Students at every workflow stage: draft, pending, approved, partially paid",
	},
	{
		ID:          "term-override",
		Name:        "Term Override",
		Description: "A term-specific tuition rate overriding the class default",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "fresh-term":
		err = h.loadBaseCatalog(ctx)
	case "enrollment-day":
		err = loadEnrollmentDayScenario(ctx, h)
	case "term-override":
		err = loadTermOverrideScenario(ctx, h)
	default:
		writeError(w, http.StatusBadRequest, "unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase wipes all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// baseCatalogJSON is the shared demo school configuration: one active
// term, tuition and library fees for two classes, two plans, and two
// optional services.
const baseCatalogJSON = `{
  "terms": [
    {"id": "2026-term-1", "name": "2026 Term 1", "active": true}
  ],
  "fee_items": [
    {"id": "tuition", "name": "Tuition"},
    {"id": "library", "name": "Library Fee"},
    {"id": "lab", "name": "Laboratory Fee"}
  ],
  "fee_rules": [
    {"fee_item_id": "tuition", "class_id": "grade-1", "amount": "1200.00"},
    {"fee_item_id": "library", "class_id": "grade-1", "amount": "50.00"},
    {"fee_item_id": "tuition", "class_id": "grade-7", "amount": "1500.00"},
    {"fee_item_id": "library", "class_id": "grade-7", "amount": "50.00"},
    {"fee_item_id": "lab", "class_id": "grade-7", "amount": "120.00"}
  ],
  "installment_plans": [
    {"name": "Full upfront", "percentages": ["100"]},
    {"name": "Two halves", "percentages": ["50", "50"]},
    {"name": "Three uneven", "percentages": ["40", "30", "30"]}
  ],
  "optional_services": [
    {"id": "bus", "name": "School Bus", "amount": "80.00"},
    {"id": "lunch", "name": "Lunch Program", "amount": "120.00"}
  ]
}`

func (h *Handler) loadBaseCatalog(ctx context.Context) error {
	catalog, err := factory.ParseCatalog([]byte(baseCatalogJSON))
	if err != nil {
		return err
	}
	return factory.NewCatalogLoader(h.Store).Seed(ctx, catalog)
}

// loadEnrollmentDayScenario puts four students at different workflow
// stages so every screen has something to show.
func loadEnrollmentDayScenario(ctx context.Context, h *Handler) error {
	if err := h.loadBaseCatalog(ctx); err != nil {
		return err
	}

	plans, err := h.Plans.ListPlans(ctx)
	if err != nil {
		return err
	}
	var twoHalves billing.PlanID
	for _, p := range plans {
		if p.Name == "Two halves" {
			twoHalves = p.ID
		}
	}
	if twoHalves == "" {
		return fmt.Errorf("demo plan missing after catalog load")
	}

	// Alice: draft with a selected service, no plan yet.
	alice, err := h.Directory.RegisterStudent(ctx, "Alice Ward", "grade-1")
	if err != nil {
		return err
	}
	aliceDraft, err := h.Builder.CreateDraft(ctx, alice.ID)
	if err != nil {
		return err
	}
	if _, err := h.Builder.AddOptionalServices(ctx, aliceDraft.Invoice.ID, []billing.ServiceID{"bus"}); err != nil {
		return err
	}

	// Ben: submitted, waiting on finance.
	ben, err := h.Directory.RegisterStudent(ctx, "Ben Okafor", "grade-7")
	if err != nil {
		return err
	}
	benDraft, err := h.Builder.CreateDraft(ctx, ben.ID)
	if err != nil {
		return err
	}
	if err := h.Builder.SetInstallmentPlan(ctx, benDraft.Invoice.ID, twoHalves); err != nil {
		return err
	}
	if err := h.Builder.SubmitInvoice(ctx, benDraft.Invoice.ID, "Sibling discount requested"); err != nil {
		return err
	}

	// Chloe: approved and partially paid.
	chloe, err := h.Directory.RegisterStudent(ctx, "Chloe Lam", "grade-1")
	if err != nil {
		return err
	}
	chloeDraft, err := h.Builder.CreateDraft(ctx, chloe.ID)
	if err != nil {
		return err
	}
	if err := h.Builder.SetInstallmentPlan(ctx, chloeDraft.Invoice.ID, twoHalves); err != nil {
		return err
	}
	if err := h.Builder.SubmitInvoice(ctx, chloeDraft.Invoice.ID, ""); err != nil {
		return err
	}
	if err := h.Workflow.Approve(ctx, chloeDraft.Invoice.ID, "", "finance-demo"); err != nil {
		return err
	}
	if _, err := h.Ledger.RecordPayment(ctx, chloeDraft.Invoice.ID,
		billing.NewMoney(625), "bank_transfer", "TXN-1001", "finance-demo"); err != nil {
		return err
	}

	// Dan: rejected, free to start over.
	dan, err := h.Directory.RegisterStudent(ctx, "Dan Reyes", "grade-7")
	if err != nil {
		return err
	}
	danDraft, err := h.Builder.CreateDraft(ctx, dan.ID)
	if err != nil {
		return err
	}
	if err := h.Builder.SetInstallmentPlan(ctx, danDraft.Invoice.ID, twoHalves); err != nil {
		return err
	}
	if err := h.Builder.SubmitInvoice(ctx, danDraft.Invoice.ID, ""); err != nil {
		return err
	}
	return h.Workflow.Reject(ctx, danDraft.Invoice.ID, "Missing guardian documents", "finance-demo")
}

// loadTermOverrideScenario demonstrates precedence: grade-1 tuition has
// a general default and a more expensive override for the active term.
func loadTermOverrideScenario(ctx context.Context, h *Handler) error {
	if err := h.loadBaseCatalog(ctx); err != nil {
		return err
	}

	termID := billing.TermID("2026-term-1")
	if _, err := h.Rules.CreateRule(ctx, "tuition", "grade-1", &termID, billing.NewMoney(1350)); err != nil {
		return err
	}

	student, err := h.Directory.RegisterStudent(ctx, "Eva Novak", "grade-1")
	if err != nil {
		return err
	}
	// Her draft picks up the 1350 override, not the 1200 default.
	_, err = h.Builder.CreateDraft(ctx, student.ID)
	return err
}
