// Package service orchestrates the authentication flows of warden.
//
// On login the gateway consults, in order: the rate limiter on the login
// route, the lockout tracker, the password hasher and the token service. On
// authenticated requests it consults the rate limiter on the request route
// and then validates the bearer token.
package service

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"warden/internal/auth/metrics"
	"warden/internal/auth/ports"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/tracer"
)

// DefaultUnavailableRetryAfter matches the rate limiter's default breaker cooldown.
const DefaultUnavailableRetryAfter = time.Second

// Service is the auth gateway. Safe for concurrent use.
type Service struct {
	accounts ports.AccountStore
	limiter  ports.RateLimiter
	lockout  ports.LockoutTracker
	hasher   ports.PasswordHasher
	tokens   ports.TokenService

	tokenTTL              time.Duration
	dummyDigest           string
	unavailableRetryAfter time.Duration

	logger  *slog.Logger
	audit   *audit.Logger
	emitter audit.Emitter
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithAuditEmitter forwards audit events to emitter in addition to the log.
func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

// WithTokenTTL sets the lifetime of issued tokens. Zero uses the token service default.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithUnavailableRetryAfter sets the retry hint of logins denied because
// account state could not be read or written.
func WithUnavailableRetryAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.unavailableRetryAfter = d
		}
	}
}

// WithDummyDigest sets the digest verified against for unknown accounts.
// By default one is produced by the hasher at construction.
func WithDummyDigest(digest string) Option {
	return func(s *Service) {
		s.dummyDigest = digest
	}
}

func New(
	accounts ports.AccountStore,
	limiter ports.RateLimiter,
	lockout ports.LockoutTracker,
	hasher ports.PasswordHasher,
	tokens ports.TokenService,
	opts ...Option,
) (*Service, error) {
	switch {
	case accounts == nil:
		return nil, errors.New("account store is required")
	case limiter == nil:
		return nil, errors.New("rate limiter is required")
	case lockout == nil:
		return nil, errors.New("lockout tracker is required")
	case hasher == nil:
		return nil, errors.New("password hasher is required")
	case tokens == nil:
		return nil, errors.New("token service is required")
	}

	svc := &Service{
		accounts: accounts,
		limiter:  limiter,
		lockout:  lockout,
		hasher:   hasher,
		tokens:   tokens,

		unavailableRetryAfter: DefaultUnavailableRetryAfter,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.tracer == nil {
		svc.tracer = tracer.NewNoop()
	}
	svc.audit = audit.NewLogger(svc.logger, svc.emitter)

	if svc.dummyDigest == "" {
		// A real digest of the primary algorithm, so unknown accounts cost
		// the same verification work as known ones.
		digest, err := hasher.Hash(uuid.NewString())
		if err != nil {
			return nil, err
		}
		svc.dummyDigest = digest
	}
	return svc, nil
}
