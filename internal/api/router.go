package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/reelgrab/internal/api/handler"
	mw "github.com/iconidentify/reelgrab/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	sessionHandler *handler.SessionHandler,
	eventHandler *handler.EventHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		// The event stream outlives any request timeout.
		r.Get("/events/stream", eventHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(5 * time.Minute))

			r.Get("/stats", healthHandler.Stats)

			r.Post("/resolve", sessionHandler.Resolve)
			r.Post("/diagnose", sessionHandler.Diagnose)

			r.Post("/sessions", sessionHandler.Create)
			r.Get("/sessions", sessionHandler.List)
			r.Get("/sessions/{sessionID}", sessionHandler.Get)
			r.Delete("/sessions/{sessionID}", sessionHandler.Delete)
			r.Get("/sessions/{sessionID}/jobs", sessionHandler.Jobs)
			r.Put("/sessions/{sessionID}/selection", sessionHandler.Selection)
			r.Post("/sessions/{sessionID}/download", sessionHandler.Download)
			r.Post("/sessions/{sessionID}/retry-failed", sessionHandler.RetryFailed)
			r.Post("/sessions/{sessionID}/cancel", sessionHandler.Cancel)

			r.Get("/events", eventHandler.List)
			r.Get("/events/recent", eventHandler.Recent)
			r.Get("/events/stats", eventHandler.Stats)
			r.Get("/events/categories", eventHandler.Categories)
			r.Get("/events/severities", eventHandler.Severities)
		})
	})

	return r
}
