package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Post("/auth/login", s.HandleLogin)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// eNodeBs
		r.Route("/enodebs", func(r chi.Router) {
			r.Get("/", s.HandleListEnodebs)
			r.Route("/{serial}", func(r chi.Router) {
				r.Get("/", s.HandleGetEnodeb)
				r.Post("/reboot", s.HandleRebootEnodeb)
				r.Get("/config", s.HandleGetEnodebConfig)
				r.Put("/config", s.HandleUpdateEnodebConfig)
				r.Delete("/config", s.HandleDeleteEnodebConfig)
			})
		})

		// Events
		r.Get("/events", s.HandleListEvents)
	})
}
