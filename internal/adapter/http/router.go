package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/ledgersync/internal/adapter/http/handler"
	"github.com/iho/ledgersync/internal/adapter/http/middleware"
	"github.com/iho/ledgersync/internal/infrastructure/metrics"
	"github.com/iho/ledgersync/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	AccountHandler   *handler.AccountHandler
	EntryHandler     *handler.EntryHandler
	DeductionHandler *handler.DeductionHandler
	SettingsHandler  *handler.SettingsHandler
	SyncHandler      *handler.SyncHandler
	AuditHandler     *handler.AuditHandler
	HealthHandler    *handler.HealthHandler

	// TokenVerifier enables bearer-token auth. When nil the actor is taken
	// from the X-Actor-ID and X-Actor-Role headers.
	TokenVerifier    middleware.TokenVerifier
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler
	Logger           zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.TokenVerifier))

		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Logger).Wrap)
		}

		// Accounts
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/", cfg.AccountHandler.Get)
			r.Get("/history", cfg.AccountHandler.History)
			r.Get("/entries", cfg.EntryHandler.ListByAccount)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)

				r.Post("/top-up", cfg.AccountHandler.TopUp)
				r.Post("/withdraw", cfg.AccountHandler.Withdraw)
				r.Post("/reset-spent", cfg.AccountHandler.ResetSpent)
				r.Post("/reset-history", cfg.AccountHandler.ResetHistory)
				r.Post("/repair-spent", cfg.AccountHandler.RepairSpent)
				r.Get("/admin-view", cfg.DeductionHandler.AdminView)
				r.Get("/audit", cfg.AuditHandler.ListByAccount)
				r.Delete("/deductions/{deductionID}", cfg.DeductionHandler.Undo)
			})
		})

		// Entries
		r.Route("/entries", func(r chi.Router) {
			r.Post("/", cfg.EntryHandler.Create)
			r.Get("/{id}", cfg.EntryHandler.Get)
			r.Patch("/{id}", cfg.EntryHandler.Update)
			r.Delete("/{id}", cfg.EntryHandler.Delete)
			r.With(middleware.RequireAdmin).Post("/{id}/deductions", cfg.DeductionHandler.Record)
		})

		// Settings
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", cfg.SettingsHandler.List)
			r.Get("/{key}", cfg.SettingsHandler.Get)
			r.With(middleware.RequireAdmin).Put("/{key}", cfg.SettingsHandler.Set)
		})

		// Sync queue
		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", cfg.SyncHandler.Status)
			r.With(middleware.RequireAdmin).Get("/queue", cfg.SyncHandler.Queue)
			r.With(middleware.RequireAdmin).Post("/drain", cfg.SyncHandler.Drain)
		})
	})

	return r
}
