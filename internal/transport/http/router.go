package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/trace"

	"poscore/internal/middleware"
)

const (
	defaultRequestTimeout = 30 * time.Second
	syncRunRate           = 1.0
	syncRunBurst          = 3
)

// RouterConfig carries the handlers and cross-cutting pieces of the router.
// Metrics and WebSocket may be nil; their routes are then not mounted.
type RouterConfig struct {
	Health       *HealthHandler
	License      *LicenseHandler
	Tenant       *TenantHandler
	Products     *ProductHandler
	Staff        *StaffHandler
	Transactions *TransactionHandler
	Sync         *SyncHandler

	Guard     middleware.LicenseStatusSource
	Metrics   http.Handler
	WebSocket http.Handler
	Tracer    trace.Tracer

	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter assembles the middleware chain and mounts every handler.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	logger := cfg.Logger.With(slog.String("component", "http"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Tracing(cfg.Tracer))
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecurityHeaders)

	// The WebSocket upgrade must not run under the request timeout.
	if cfg.WebSocket != nil {
		r.Handle("/ws", cfg.WebSocket)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
		r.Mount("/healthz", cfg.Health.Routes())

		r.Route("/api", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))

			r.Mount("/license", cfg.License.Routes())
			r.Get("/tenant", cfg.Tenant.Get)

			throttle := middleware.NewRateLimiter(syncRunRate, syncRunBurst, logger)
			r.Mount("/sync", cfg.Sync.Routes(throttle.Handler))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireLicense(cfg.Guard, logger))
				r.Mount("/products", cfg.Products.Routes())
				r.Mount("/staff", cfg.Staff.Routes())
				r.Mount("/transactions", cfg.Transactions.Routes())
			})
		})
	})

	return r
}
