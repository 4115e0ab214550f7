// Package requestlimit provides per-client, per-route admission decisions.
//
// This is the rate limiter consulted by the HTTP middleware and by the auth
// gateway. It delegates window bookkeeping to a Store (sliding-window log by
// default) and applies the failure policy when the store is unavailable.
//
// Usage:
//
//	svc, _ := requestlimit.New(store)
//	decision, _ := svc.AllowRoute(ctx, models.NewIPKey(clientIP), models.RouteLogin)
//	if !decision.Allowed {
//	    // Return 429 Too Many Requests with decision.RetryAfter
//	}
//
// When a fallback store is configured, a circuit breaker routes decisions to it
// while the primary keeps failing; such decisions are marked Degraded.
package requestlimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"warden/internal/ratelimit/config"
	"warden/internal/ratelimit/metrics"
	"warden/internal/ratelimit/models"
	"warden/internal/ratelimit/observability"
	"warden/internal/ratelimit/ports"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/circuit"
	"warden/pkg/requestcontext"
)

// Service makes admission decisions for (client, route) pairs.
// Thread-safe for concurrent use by HTTP middleware.
type Service struct {
	store     ports.Store
	storeName string
	fallback  ports.Store
	breaker   *circuit.Breaker
	logger    *slog.Logger
	emitter   audit.Emitter
	audit     *audit.Logger
	config    *config.Config
	metrics   *metrics.Metrics
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger for audit and debug logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAuditEmitter forwards rate limit denials and resets to emitter.
func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

// WithConfig overrides the default rate limit configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithMetrics sets the metrics recorder for observability.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStoreName labels the primary store in logs and metrics.
func WithStoreName(name string) Option {
	return func(s *Service) {
		s.storeName = name
	}
}

// WithFallback sets the store that answers while the primary's circuit is open.
func WithFallback(store ports.Store) Option {
	return func(s *Service) {
		s.fallback = store
	}
}

// WithBreaker overrides the circuit breaker built from config.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

// New creates a rate limiting service over store.
func New(store ports.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}

	svc := &Service{
		store:     store,
		storeName: "primary",
		config:    config.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.audit = audit.NewLogger(svc.logger, svc.emitter)

	if svc.fallback != nil && svc.breaker == nil {
		svc.breaker = circuit.New("ratelimit_"+svc.storeName,
			circuit.WithFailureThreshold(svc.config.Breaker.FailureThreshold),
			circuit.WithSuccessThreshold(svc.config.Breaker.SuccessThreshold),
			circuit.WithCooldown(svc.config.Breaker.Cooldown),
			circuit.WithStateHook(svc.onCircuitChange),
		)
	}

	return svc, nil
}

// AllowRoute admits one request from client on route using the configured limit for route.
func (s *Service) AllowRoute(ctx context.Context, client models.ClientKey, route models.Route) (*models.Decision, error) {
	return s.Allow(ctx, client, route, s.config.LimitFor(route))
}

// Allow admits one request from client on route if fewer than limit.Requests were
// admitted in the trailing limit.Window. Invalid input is returned as an error;
// store failures never are: they become a denial (or an admission with FailOpen).
func (s *Service) Allow(ctx context.Context, client models.ClientKey, route models.Route, limit models.Limit) (*models.Decision, error) {
	if client.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "client key is required")
	}
	if err := limit.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	now := requestcontext.Now(ctx)
	key := models.StorageKey(client, route)

	decision := s.decide(ctx, key, limit, now)
	s.observe(ctx, client, route, limit, decision, time.Since(start))
	return decision, nil
}

// Reset clears the window state of client on route in the primary and fallback stores.
func (s *Service) Reset(ctx context.Context, client models.ClientKey, route models.Route) error {
	if client.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "client key is required")
	}
	key := models.StorageKey(client, route)
	if err := s.store.Reset(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBackendUnavailable, "failed to reset rate limit")
	}
	if s.fallback != nil {
		if err := s.fallback.Reset(ctx, key); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset fallback rate limit")
		}
	}
	s.audit.Log(ctx, audit.EventRateLimitReset,
		"limit_type", client.Prefix(),
		"route", route,
	)
	return nil
}

// Config returns the active configuration.
func (s *Service) Config() *config.Config {
	return s.config
}

func (s *Service) decide(ctx context.Context, key string, limit models.Limit, now time.Time) *models.Decision {
	if s.breaker != nil && !s.breaker.ShouldTryPrimary(now) {
		if d := s.fromFallback(ctx, key, limit, now); d != nil {
			return d
		}
	}

	decision, err := s.store.Allow(ctx, key, limit, now)
	if err == nil {
		if s.breaker != nil {
			s.breaker.RecordSuccess()
		}
		return decision
	}

	if s.metrics != nil {
		s.metrics.IncrementStoreError(s.storeName)
	}
	observability.LogWarn(ctx, s.logger, "rate limit store failed",
		"store", s.storeName,
		"error", err,
	)

	if s.breaker != nil {
		if useFallback, _ := s.breaker.RecordFailure(now); useFallback {
			if d := s.fromFallback(ctx, key, limit, now); d != nil {
				return d
			}
		}
	}
	return s.failurePolicy(limit, now)
}

// fromFallback returns nil when the fallback is missing or fails too.
func (s *Service) fromFallback(ctx context.Context, key string, limit models.Limit, now time.Time) *models.Decision {
	if s.fallback == nil {
		return nil
	}
	decision, err := s.fallback.Allow(ctx, key, limit, now)
	if err != nil {
		observability.LogWarn(ctx, s.logger, "rate limit fallback store failed", "error", err)
		return nil
	}
	decision.Degraded = true
	if s.metrics != nil {
		s.metrics.IncrementFallbackDecision()
	}
	return decision
}

// failurePolicy answers when no store could decide. Denial is the default.
func (s *Service) failurePolicy(limit models.Limit, now time.Time) *models.Decision {
	if s.config.FailOpen {
		return &models.Decision{
			Allowed:  true,
			Limit:    limit.Requests,
			ResetAt:  now,
			Reason:   models.ReasonFailOpen,
			Degraded: true,
		}
	}
	retryAfter := s.config.Breaker.Cooldown
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	d := models.Deny(limit.Requests, now.Add(retryAfter), retryAfter)
	d.Reason = models.ReasonBackendUnavailable
	return d
}

func (s *Service) observe(ctx context.Context, client models.ClientKey, route models.Route, limit models.Limit, d *models.Decision, took time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveDecisionDuration(took.Seconds())
		s.metrics.IncrementDecision(string(route), outcome(d))
	}
	if d.Allowed {
		return
	}
	s.audit.Log(ctx, audit.EventRateLimitExceeded,
		"limit_type", client.Prefix(),
		"route", route,
		"limit", limit.Requests,
		"window_seconds", int(limit.Window.Seconds()),
		"retry_after_ms", d.RetryAfter.Milliseconds(),
		"reason", d.Reason,
		"degraded", d.Degraded,
	)
}

func (s *Service) onCircuitChange(name string, to circuit.State) {
	if s.metrics != nil {
		s.metrics.SetCircuitOpen(name, to == circuit.StateOpen)
	}
	if s.logger != nil {
		s.logger.Warn("rate limit circuit changed state",
			"circuit", name,
			"state", to.String(),
		)
	}
}

func outcome(d *models.Decision) string {
	switch {
	case d.Reason == models.ReasonFailOpen:
		return "fail_open"
	case d.Reason == models.ReasonBackendUnavailable:
		return "backend_unavailable"
	case d.Allowed:
		return "allowed"
	default:
		return "denied"
	}
}
