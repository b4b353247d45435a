package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/drone-bridge/drone-bridge-server/internal/auth"
	"github.com/drone-bridge/drone-bridge-server/internal/bridge"
	"github.com/drone-bridge/drone-bridge-server/internal/config"
	"github.com/drone-bridge/drone-bridge-server/internal/storage"
	"github.com/drone-bridge/drone-bridge-server/internal/validation"
)

// ctxKeyClaims is the request context key for authenticated JWT claims
type ctxKey int

const ctxKeyClaims ctxKey = iota

// RESTServer represents the admin REST API and websocket server
type RESTServer struct {
	config    *config.Config
	store     storage.Store
	hub       *bridge.Hub
	auth      *auth.JWTManager
	validator *validation.Validator
	router    chi.Router
	server    *http.Server
}

// NewRESTServer creates a new REST API server around the bridge hub
func NewRESTServer(cfg *config.Config, store storage.Store, hub *bridge.Hub) *RESTServer {
	s := &RESTServer{
		config:    cfg,
		store:     store,
		hub:       hub,
		auth:      auth.NewJWTManager(&cfg.JWT),
		validator: validation.NewValidator(),
		router:    chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Client websocket endpoint; write timeouts are managed per-message
	// by the pumps, not by the HTTP server
	s.router.Get("/websocket", s.HandleWebSocket)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr

	// The websocket upgrade must bypass the server write timeout
	s.server.WriteTimeout = 0

	webDir := s.config.Web.StaticDir
	if envWebDir := os.Getenv("WEB_DIR"); envWebDir != "" {
		webDir = envWebDir
	}

	if webDir == "" {
		log.Info().Msg("No static dir configured, Web UI disabled")
	} else if _, err := os.Stat(webDir); os.IsNotExist(err) {
		log.Warn().Str("dir", webDir).Msg("Web directory not found, Web UI will not be available")
	} else {
		log.Info().Str("dir", webDir).Msg("Serving Web UI from directory")

		router := s.router
		s.server.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/websocket" {
				router.ServeHTTP(w, r)
				return
			}

			fs := http.FileServer(http.Dir(webDir))

			if r.URL.Path == "/" || !strings.Contains(r.URL.Path, ".") {
				http.ServeFile(w, r, filepath.Join(webDir, "index.html"))
				return
			}

			fs.ServeHTTP(w, r)
		})
	}

	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware is the authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		// Parse Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		// Validate token
		claims, err := s.auth.ValidateToken(parts[1])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		// Add claims to context
		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFromContext extracts validated claims from the request context
func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ctxKeyClaims).(*auth.Claims)
	return claims, ok
}
