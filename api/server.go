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
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the mobile app and admin console

ROUTE GROUPS:
  /api/mobile/*     Mobile app surface (scan, card listing)
  /api/cards/*      Card lifecycle and redemption
  /api/admin/*      Operator corrections
  /api/programs/*   Program registry passthrough
  /api/subjects     Identity registration
  /api/seed/demo    Demo data (dev only)

SECURITY NOTE:
  Caller identity arrives via the X-Subject-ID header; authenticating it
  (sessions, tokens) is a deployment concern layered in front of this
  router. The ledger core re-checks ownership regardless.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Subject-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Mobile surface
		r.Route("/mobile", func(r chi.Router) {
			r.Post("/scan", h.Scan)
			r.Get("/cards/{subjectID}", h.ListCards)
		})

		// Card lifecycle
		r.Route("/cards", func(r chi.Router) {
			r.Post("/", h.CreateCard)
			r.Get("/{id}", h.GetCard)
			r.Delete("/{id}", h.DeleteCard)
			r.Post("/{id}/redeem", h.Redeem)
		})

		// Operator corrections
		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjust", h.Adjust)
			r.Post("/reset", h.Reset)
		})

		// Program registry
		r.Route("/programs", func(r chi.Router) {
			r.Get("/", h.ListPrograms)
			r.Post("/", h.SaveProgram)
			r.Get("/{id}/stats", h.ProgramStats)
		})

		// Identity
		r.Post("/subjects", h.RegisterSubject)

		// Demo data (dev only)
		r.Post("/seed/demo", h.SeedDemo)
	})

	return r
}
