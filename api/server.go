/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:        Request logging
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestID:     Unique ID per request for tracing
  4. CORS:          Cross-origin requests for frontend
  5. RequireTenant: Tenant header on all /api routes

ROUTE GROUPS:
  /api/groups/*      Calendar reads and reports
  /api/absences/*    Absence commands
  /api/closures/*    Closure commands
  /api/schedules/*   Schedule commands
  /api/endmarks/*    End mark commands
  /api/timeslots/*   Time slot commands
  /api/scenarios/*   Demo scenarios (dev only)
  /healthz           Liveness probe, no tenant required

SECURITY NOTE:
  The tenant header is trusted as-is; authenticating it belongs to a
  gateway in front of this service.

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

// NewRouter creates a new router with all routes configured. tenantHeader
// names the header carrying the tenant; empty selects the default.
func NewRouter(h *Handler, tenantHeader string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", DefaultTenantHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes, all tenant-scoped
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireTenant(tenantHeader))

		// Calendar reads
		r.Route("/groups", func(r chi.Router) {
			r.Get("/{id}/calendar", h.GetGroupCalendar)
			r.Get("/{id}/report", h.GetGroupReport)
		})

		// Absence commands
		r.Route("/absences", func(r chi.Router) {
			r.Post("/", h.CreateAbsence)
			r.Delete("/{id}", h.DeleteAbsence)
		})

		// Closure commands
		r.Route("/closures", func(r chi.Router) {
			r.Post("/", h.CreateClosure)
			r.Delete("/{id}", h.DeleteClosure)
		})

		// Schedule commands
		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", h.CreateSchedule)
			r.Get("/{id}", h.GetSchedule)
			r.Put("/{id}/rules", h.ReplaceScheduleRules)
		})

		// End mark commands
		r.Route("/endmarks", func(r chi.Router) {
			r.Post("/", h.CreateEndMark)
			r.Delete("/{id}", h.DeleteEndMark)
		})

		// Time slot commands
		r.Route("/timeslots", func(r chi.Router) {
			r.Post("/", h.CreateTimeSlot)
			r.Delete("/{id}", h.DeleteTimeSlot)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
