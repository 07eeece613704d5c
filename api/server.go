/*
server.go - HTTP router and middleware configuration

PURPOSE:

	Configures the HTTP router (chi), middleware stack, and route definitions.
	This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
 1. Logger:     Request logging
 2. Recoverer:  Panic recovery (500 instead of crash)
 3. RequestID:  Unique ID per request for tracing
 4. CORS:       Cross-origin requests for the viewer frontend

ROUTE GROUPS:

	/api/movements/*   Movement-log import
	/api/production/*  Production records
	/api/sessions      Session projection queries
	/api/reconcile     Trigger a reconciliation pass
	/api/runs/*        Run inspection
	/api/anomalies/*   Anomaly listing and maintenance
	/api/health        Liveness probe

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
		r.Post("/movements/import", h.ImportMovements)

		r.Route("/production", func(r chi.Router) {
			r.Get("/", h.ListProduction)
			r.Post("/", h.UpsertProduction)
		})

		r.Get("/sessions", h.ListSessionRows)

		r.Post("/reconcile", h.TriggerReconcile)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Get("/{id}", h.GetRun)
		})

		r.Route("/anomalies", func(r chi.Router) {
			r.Get("/", h.ListAnomalies)
			r.Delete("/", h.ClearAnomalies)
			r.Put("/{id}/status", h.UpdateAnomalyStatus)
		})

		r.Get("/health", h.Health)
	})

	return r
}
