package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/printrelay/internal/panel"
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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/enums", s.handleEnums)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/refresh", s.handleRefreshDevices)

				r.Route("/{mac}", func(r chi.Router) {
					r.Post("/turn-on", s.handleTurnOn)
					r.Post("/turn-off", s.handleTurnOff)
					r.Get("/registrations", s.handleListRegistrations)
				})
			})

			r.Route("/registrations", func(r chi.Router) {
				r.Post("/", s.handleRegister)
				r.Delete("/", s.handleUnregister)
			})

			r.Route("/cancellations", func(r chi.Router) {
				r.Post("/", s.handleAddCancel)
				r.Delete("/", s.handleRemoveCancel)
			})

			r.Route("/pending", func(r chi.Router) {
				r.Get("/", s.handleListPending)
				r.Delete("/{mac}", s.handleCancelPending)
			})

			r.Post("/events/{name}", s.handleEvent)

			r.Get("/audit", s.handleListAudit)

			r.Get("/ws", s.handleWebSocket)
		})
	})

	// Dashboard. Unmatched paths outside /api/v1 serve index.html.
	r.Handle("/*", panel.Handler(s.cfg.PanelDir))

	return r
}
