/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/students/*    Student directory
  /api/invoices/*    Invoice lifecycle, decisions, payments
  /api/fee-items/*   Fee catalog
  /api/fee-rules/*   Fee rule administration
  /api/fees          Fee resolution preview
  /api/plans/*       Installment plans
  /api/services/*    Optional services
  /api/terms/*       Academic terms
  /api/catalog       Bulk catalog loading
  /api/scenarios/*   Demo scenarios (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Get("/{id}", h.GetStudent)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.CreateDraft)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/services", h.AddServices)
			r.Post("/{id}/plan", h.SetPlan)
			r.Post("/{id}/submit", h.SubmitInvoice)
			r.Get("/{id}/schedule", h.GetSchedule)
			r.Post("/{id}/approve", h.ApproveInvoice)
			r.Post("/{id}/reject", h.RejectInvoice)
			r.Post("/{id}/payments", h.RecordPayment)
			r.Get("/{id}/payments", h.ListPayments)
		})

		// Fee configuration routes
		r.Route("/fee-items", func(r chi.Router) {
			r.Get("/", h.ListFeeItems)
			r.Post("/", h.SaveFeeItem)
		})
		r.Route("/fee-rules", func(r chi.Router) {
			r.Get("/", h.ListFeeRules)
			r.Post("/", h.CreateFeeRule)
			r.Put("/{id}", h.UpdateFeeRule)
			r.Delete("/{id}", h.DeactivateFeeRule)
		})
		r.Get("/fees", h.ResolveFees)

		// Plan and service routes
		r.Route("/plans", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.Post("/", h.CreatePlan)
			r.Post("/{id}/preview", h.PreviewSchedule)
		})
		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.ListServices)
			r.Post("/", h.SaveService)
		})

		// Term routes
		r.Route("/terms", func(r chi.Router) {
			r.Get("/", h.ListTerms)
			r.Post("/", h.SaveTerm)
		})

		// Bulk catalog loading
		r.Post("/catalog", h.LoadCatalog)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
