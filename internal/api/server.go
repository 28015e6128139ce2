package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/lte-gateway/enodebd/internal/acs"
	"github.com/lte-gateway/enodebd/internal/auth"
	"github.com/lte-gateway/enodebd/internal/config"
	"github.com/lte-gateway/enodebd/internal/storage"
	"github.com/lte-gateway/enodebd/internal/validation"
)

type contextKey string

const claimsKey contextKey = "claims"

// RESTServer represents the operator REST API server
type RESTServer struct {
	config    *config.Config
	store     storage.Store
	sessions  *acs.Manager
	auth      *auth.JWTManager
	validator *validation.Validator
	gatherer  prometheus.Gatherer
	router    chi.Router
	server    *http.Server
}

// NewRESTServer creates a new REST API server. gatherer may be nil when
// metrics are disabled.
func NewRESTServer(cfg *config.Config, store storage.Store, sessions *acs.Manager, gatherer prometheus.Gatherer) *RESTServer {
	s := &RESTServer{
		config:    cfg,
		store:     store,
		sessions:  sessions,
		auth:      auth.NewJWTManager(&cfg.JWT, cfg.Admin),
		validator: validation.NewValidator(),
		gatherer:  gatherer,
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
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(requestLogger)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.config.Metrics.Enabled && s.gatherer != nil {
		s.router.Method(http.MethodGet, s.config.Metrics.Path,
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// Handler returns the root HTTP handler
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestLogger logs each request through zerolog
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// authMiddleware requires a valid operator bearer token
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			s.respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.auth.ValidateToken(token)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected operator token")
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// username returns the authenticated operator
func username(r *http.Request) string {
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims.Username
	}
	return ""
}
