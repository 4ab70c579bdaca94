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
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/movements/*   Bank movements
  /api/expenses/*    Expense records
  /api/splits/*      Split allocation groups
  /api/advances/*    Employee advances
  /api/cases/*       Non-reconciliation cases
  /api/rules/*       Escalation rules
  /api/sweeps/*      Escalation sweeps
  /api/analytics/*   Read-only aggregation
  /api/scenarios/*   Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

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
		// Movement routes
		r.Route("/movements", func(r chi.Router) {
			r.Get("/", h.ListMovements)
			r.Post("/", h.CreateMovement)
			r.Get("/{id}", h.GetMovement)
			r.Post("/{id}/cancel", h.CancelMovement)
		})

		// Expense routes
		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", h.ListExpenses)
			r.Post("/", h.CreateExpense)
			r.Get("/{id}", h.GetExpense)
		})

		// Split allocation routes
		r.Route("/splits", func(r chi.Router) {
			r.Get("/", h.ListSplits)
			r.Post("/", h.ProposeSplit)
			r.Get("/{id}", h.GetSplit)
			r.Put("/{id}", h.ReviseSplit)
			r.Post("/{id}/finalize", h.FinalizeSplit)
			r.Post("/{id}/reject", h.RejectSplit)
		})

		// Advance routes
		r.Route("/advances", func(r chi.Router) {
			r.Get("/", h.ListAdvances)
			r.Post("/", h.CreateAdvance)
			r.Get("/{id}", h.GetAdvance)
			r.Post("/{id}/reimbursements", h.RecordReimbursement)
			r.Post("/{id}/cancel", h.CancelAdvance)
		})

		// Case routes
		r.Route("/cases", func(r chi.Router) {
			r.Get("/", h.ListCases)
			r.Post("/", h.OpenCase)
			r.Get("/{id}", h.GetCase)
			r.Get("/{id}/history", h.GetCaseHistory)
			r.Post("/{id}/{action}", h.CaseAction)
		})

		// Rule routes
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Put("/", h.PutRuleSet)
			r.Post("/defaults", h.InstallDefaultRules)
			r.Delete("/{id}", h.DeleteRule)
		})

		// Sweep routes
		r.Route("/sweeps", func(r chi.Router) {
			r.Get("/", h.ListSweepRuns)
			r.Post("/", h.RunSweep)
		})

		// Analytics routes
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/report", h.GetReport)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Reconciliation Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Reconciliation Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/movements">/api/movements</a> - Bank movements</li>
<li><a href="/api/expenses">/api/expenses</a> - Expense records</li>
<li><a href="/api/splits">/api/splits</a> - Split allocation groups</li>
<li><a href="/api/advances">/api/advances</a> - Employee advances</li>
<li><a href="/api/cases">/api/cases</a> - Non-reconciliation cases</li>
<li><a href="/api/analytics/report">/api/analytics/report</a> - Aggregated report</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
