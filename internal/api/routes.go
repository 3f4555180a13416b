package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"c2d-service/internal/compute"
	"c2d-service/internal/health"
	"c2d-service/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	ComputeService *compute.Service
	Metrics        *observability.Metrics
	HealthChecker  *health.Checker
	APIKey         string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.ComputeService, cfg.HealthChecker)

	r := chi.NewRouter()

	// Middleware chain (order matters: outermost first)
	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(CORSMiddleware())

	// Health check endpoints (liveness/readiness probes) - no auth required
	r.Get("/livez", handler.Livez)
	r.Get("/readyz", handler.Readyz)

	// Compute endpoints - auth required
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIKey))
		r.Post("/compute/start", handler.StartCompute)
		r.Get("/compute/status", handler.ComputeStatus)
		r.Get("/compute/result", handler.ComputeResult)
		r.Post("/compute/reset", handler.ResetCompute)
	})

	return r
}
