package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes configures API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Public routes
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Current user
		r.Get("/me", s.HandleGetCurrentUser)

		// Vehicle status
		r.Get("/vehicle/status", s.HandleVehicleStatus)

		// Users
		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.HandleListUsers)
			r.Post("/", s.HandleCreateUser)
			r.Get("/{id}", s.HandleGetUser)
			r.Delete("/{id}", s.HandleDeleteUser)
		})

		// Client credentials
		r.Route("/credentials", func(r chi.Router) {
			r.Get("/", s.HandleListCredentials)
			r.Post("/", s.HandleCreateCredential)
			r.Delete("/{id}", s.HandleDeleteCredential)
		})

		// Event logs
		r.Get("/events", s.HandleListEvents)
	})
}

// HandleHealth handles health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

// HandleRoot handles the API root
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "drone-bridge-server",
		"version": "v1",
	})
}
