package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket upgrade. Browser clients cannot set an
		// Authorization header on the upgrade request, so auth is a
		// single-use ticket (minted by POST /auth/ws-ticket, which is
		// JWT-protected) validated in the handler itself.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Put("/state", s.handleSetDeviceState)
					r.Post("/toggle-mute", s.handleToggleDeviceMute)
					r.Get("/history", s.handleDeviceHistory)
				})
			})

			// Fleet-wide endpoints
			r.Route("/fleet", func(r chi.Router) {
				r.Post("/brightness", s.handleAdjustBrightness)
				r.Post("/volume", s.handleAdjustVolume)
				r.Post("/toggle-mute", s.handleToggleAllMute)
				r.Get("/averages", s.handleAverages)
			})

			// Re-run display discovery
			r.Post("/discover", s.handleDiscover)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
