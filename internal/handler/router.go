package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"workflow-dashboard/internal/ratelimit"
	"workflow-dashboard/internal/service"
)

type RouterConfig struct {
	Auth      *AuthHandler
	Accounts  *AccountHandler
	Workflows *WorkflowHandler
	Health    *HealthHandler
	// Validator guards the data routes.
	Validator AccessValidator

	Limiter        *ratelimit.Limiter
	EdgeHeader     string
	AllowedOrigins []string
	RequestTimeout time.Duration
	RequireHTTPS   bool
	Logger         *zap.Logger
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	router := chi.NewRouter()

	if cfg.RequireHTTPS {
		router.Use(requireHTTPS)
	}

	router.Use(middleware.RequestID)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{ratelimit.HeaderLimit, ratelimit.HeaderRemaining, ratelimit.HeaderReset, ratelimit.HeaderRetryAfter},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Preflight requests are answered by CORS above and never counted.
	if cfg.Limiter != nil {
		router.Use(ratelimit.Middleware(cfg.Limiter, cfg.EdgeHeader))
	}

	if cfg.Health != nil {
		router.Get("/health", cfg.Health.Health)
	}

	router.Route("/api", func(r chi.Router) {
		if cfg.Auth != nil {
			cfg.Auth.RegisterRoutes(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(RequireAccess(cfg.Validator, logger))
			if cfg.Accounts != nil {
				cfg.Accounts.RegisterRoutes(r)
			}
			if cfg.Workflows != nil {
				cfg.Workflows.RegisterRoutes(r)
			}
		})
	})

	notFound := responder{logger: logger}
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		notFound.respondWithJSON(w, http.StatusNotFound, errorResponse(service.KindNotFound.String(), "endpoint not found"))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		notFound.respondWithJSON(w, http.StatusMethodNotAllowed, errorResponse("method_not_allowed", "method not allowed"))
	})

	return router
}
