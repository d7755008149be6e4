/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the office frontend

ROUTE GROUPS:
  /api/workers/*    Roster
  /api/tasks        Price table
  /api/activity     Raw log entries
  /api/attendance   Attendance entries
  /api/reports/*    Reports, recomputation, rollups
  /api/cascades/*   Cascade status and retry
  /api/scenarios/*  Demo scenarios

SECURITY NOTE:
  No authentication middleware. Put the service behind the estate's
  gateway.

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

	r.Route("/api", func(r chi.Router) {
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Post("/", h.CreateWorker)
			r.Get("/{id}", h.GetWorker)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)
		})

		r.Post("/activity", h.RecordActivity)
		r.Post("/attendance", h.RecordAttendance)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.ListReports)
			r.Post("/bimonthly", h.GenerateBiMonthly)
			r.Post("/rollups/season", h.SeasonRollup)
			r.Post("/rollups/annual", h.AnnualRollup)
			r.Get("/{id}", h.GetReport)
			r.Put("/{id}/adjustments", h.UpdateAdjustments)
		})

		r.Route("/cascades", func(r chi.Router) {
			r.Get("/{id}", h.GetCascade)
			r.Post("/{id}/resume", h.ResumeCascade)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
