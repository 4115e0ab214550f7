package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"warden/internal/platform/privacy"
	"warden/internal/ratelimit/models"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
)

// RateLimiter decides admission for a client on a route.
type RateLimiter interface {
	AllowRoute(ctx context.Context, client models.ClientKey, route models.Route) (*models.Decision, error)
}

type Middleware struct {
	limiter RateLimiter
	logger  *slog.Logger
}

func New(limiter RateLimiter, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		limiter: limiter,
		logger:  logger,
	}
}

// RateLimit limits requests per client IP on route.
// Requires the metadata middleware to have resolved the client IP.
func (m *Middleware) RateLimit(route models.Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := requestcontext.ClientIP(r.Context())
			m.enforce(w, r, next, models.NewIPKey(ip), route)
		})
	}
}

// RateLimitAuthenticated limits requests per authenticated subject on route.
// Requests without a subject in context are limited by client IP instead.
func (m *Middleware) RateLimitAuthenticated(route models.Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			client := models.NewUserKey(requestcontext.Subject(ctx))
			if client.IsZero() {
				client = models.NewIPKey(requestcontext.ClientIP(ctx))
			}
			m.enforce(w, r, next, client, route)
		})
	}
}

func (m *Middleware) enforce(w http.ResponseWriter, r *http.Request, next http.Handler, client models.ClientKey, route models.Route) {
	ctx := requestcontext.WithRoute(r.Context(), string(route))

	decision, err := m.limiter.AllowRoute(ctx, client, route)
	if err != nil {
		// The limiter applies its own failure policy; an error here is a bad key or limit.
		m.logger.ErrorContext(ctx, "rate limit check rejected request",
			"error", err,
			"route", route,
			"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		)
		httputil.WriteError(w, err)
		return
	}

	addRateLimitHeaders(w, decision)

	if !decision.Allowed {
		httputil.WriteError(w, decision.Err())
		return
	}
	if decision.Degraded {
		ctx = requestcontext.WithDegraded(ctx)
	}
	next.ServeHTTP(w, r.WithContext(ctx))
}

// addRateLimitHeaders adds X-RateLimit-* headers to the response.
// Retry-After on denials is set by httputil.WriteError.
func addRateLimitHeaders(w http.ResponseWriter, d *models.Decision) {
	if d == nil {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if d.Degraded {
		h.Set("X-RateLimit-Status", "degraded")
	}
}
