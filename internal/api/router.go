/**
 * @description
 * HTTP routing for the payments webhook service.
 */
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HealthChecker reports dependency health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterConfig collects what NewRouter mounts. Ops routes are mounted only
// when both Ops and OpsJWTSecret are set.
type RouterConfig struct {
	Webhook      http.Handler
	Ops          *OpsHandler
	OpsJWTSecret string
	Health       HealthChecker
	Logger       *slog.Logger
}

// NewRouter creates the chi router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health.Ping(ctx); err != nil {
				logger.Warn("health check failed", slog.Any("error", err))
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// The handler answers non-POST methods itself.
	r.Handle("/webhooks/stripe", cfg.Webhook)
	r.Handle("/stripe-webhook", cfg.Webhook)

	if cfg.Ops != nil && cfg.OpsJWTSecret != "" {
		r.Route("/internal", func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   []string{"https://*", "http://*"},
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
				AllowCredentials: false,
				MaxAge:           300,
			}))
			r.Use(OpsAuthMiddleware(cfg.OpsJWTSecret, logger))

			r.Get("/payments/{sessionID}", cfg.Ops.handleGetPayment)
			r.Get("/reconciliation", cfg.Ops.handleListUnreconciled)
			r.Post("/reconciliation/run", cfg.Ops.handleRunReconciliation)
		})
	}

	return r
}
