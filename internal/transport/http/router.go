// Package httptransport assembles the HTTP surface of warden.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "warden/internal/auth/handler"
	"warden/internal/platform/health"
	rlhandler "warden/internal/ratelimit/handler"
	rlmiddleware "warden/internal/ratelimit/middleware"
	"warden/internal/ratelimit/models"
	"warden/pkg/platform/middleware/admin"
	"warden/pkg/platform/middleware/metadata"
	"warden/pkg/platform/middleware/request"
	"warden/pkg/platform/middleware/requesttime"
	"warden/pkg/platform/validation"
)

const defaultRequestTimeout = 30 * time.Second

// Deps are the handlers and middleware the router mounts. Health, Gatherer and
// the admin handlers are optional.
type Deps struct {
	Logger      *slog.Logger
	Metadata    *metadata.Middleware
	RateLimit   *rlmiddleware.Middleware
	HTTPMetrics *request.Metrics

	Auth           *authhandler.Handler
	RateLimitAdmin *rlhandler.Handler
	Health         *health.Handler
	Gatherer       prometheus.Gatherer

	// AdminToken enables the /admin routes when non-empty.
	AdminToken     string
	RequestTimeout time.Duration
}

// NewRouter wires all public endpoints with middleware.
//
// Every request gets a request ID, a request-scoped clock and its resolved
// client IP before anything else runs. Routes under /auth and /admin are
// also subject to the global per-IP limit.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(d.Metadata.Handler)
	r.Use(request.Logger(logger))
	r.Use(request.Instrument(d.HTTPMetrics))

	if d.Health != nil {
		d.Health.Register(r)
	}
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(request.BodyLimit(validation.MaxBodySize))
		r.Use(request.Timeout(timeout))
		r.Use(request.ContentTypeJSON)
		r.Use(d.RateLimit.RateLimit(models.RouteGlobal))

		d.Auth.Register(r, d.RateLimit.RateLimit)

		if d.AdminToken == "" {
			return
		}
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(d.AdminToken, logger))
			d.Auth.RegisterAdmin(r)
			if d.RateLimitAdmin != nil {
				d.RateLimitAdmin.RegisterAdmin(r)
			}
		})
	})

	return r
}
