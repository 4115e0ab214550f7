// Package token issues and validates signed bearer tokens.
//
// Tokens are HS256 JWTs carrying sub, iat, exp, jti and iss. Every way a token
// can be unacceptable (bad signature, expired, malformed, wrong algorithm,
// wrong issuer, revoked) surfaces as the same ErrInvalidToken so callers cannot
// be used as an oracle; the specific reason is logged and counted.
package token

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"warden/internal/auth/metrics"
	"warden/internal/auth/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/requestcontext"
	"warden/pkg/secrets"
)

const (
	DefaultTTL    = 30 * time.Minute
	DefaultIssuer = "warden"
)

// ErrInvalidToken is returned for every rejected token.
var ErrInvalidToken = dErrors.New(dErrors.CodeUnauthenticated, "invalid token")

var errWrongAlgorithm = errors.New("unexpected signing algorithm")

// RevocationList records token IDs that must no longer validate.
type RevocationList interface {
	// Revoke keeps jti revoked until expiresAt.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string, now time.Time) (bool, error)
}

// Failure reasons recorded in logs and metrics.
const (
	reasonMalformed = "malformed"
	reasonSignature = "signature"
	reasonExpired   = "expired"
	reasonAlgorithm = "algorithm"
	reasonClaims    = "claims"
	reasonRevoked   = "revoked"
)

type claims struct {
	jwt.RegisteredClaims
}

// Service handles token creation and validation.
type Service struct {
	signingKey    []byte
	issuer        string
	ttl           time.Duration
	allowShortKey bool
	revocations   RevocationList
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type Option func(*Service)

func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithTTL sets the lifetime used when Issue is called with a non-positive ttl.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRevocationList enables revocation checks in Validate and Revoke.
func WithRevocationList(rl RevocationList) Option {
	return func(s *Service) {
		s.revocations = rl
	}
}

// WithAllowShortKey accepts signing keys under the production minimum. Development only.
func WithAllowShortKey() Option {
	return func(s *Service) {
		s.allowShortKey = true
	}
}

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

// New creates a token service signing with key.
func New(key string, opts ...Option) (*Service, error) {
	s := &Service{
		signingKey: []byte(key),
		issuer:     DefaultIssuer,
		ttl:        DefaultTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.signingKey) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing key is required")
	}
	if !s.allowShortKey {
		if err := secrets.CheckSigningKey(key); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// TTL returns the default token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for accountID valid for ttl from the request time.
// A non-positive ttl uses the configured default.
func (s *Service) Issue(ctx context.Context, accountID string, ttl time.Duration) (*models.Token, error) {
	if accountID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := requestcontext.Now(ctx)
	jti := uuid.NewString()
	// exp is carried in whole seconds; round up so the token never ends early.
	expiresAt := now.Add(ttl)
	if whole := expiresAt.Truncate(time.Second); whole.Before(expiresAt) {
		expiresAt = whole.Add(time.Second)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}).SignedString(s.signingKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not sign token")
	}
	if s.metrics != nil {
		s.metrics.IncrementTokensIssued()
	}

	return &models.Token{
		Value:     signed,
		Subject:   accountID,
		ID:        jti,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate verifies raw at the request time and returns its claims.
// Returns ErrInvalidToken for any unacceptable token, or a BackendUnavailable
// error when the revocation list cannot be consulted.
func (s *Service) Validate(ctx context.Context, raw string) (*models.Claims, error) {
	now := requestcontext.Now(ctx)
	c, err := s.parseAt(raw, now)
	if err != nil {
		return nil, s.reject(ctx, classify(err), err)
	}

	if s.revocations != nil && c.ID != "" {
		revoked, err := s.revocations.IsRevoked(ctx, c.ID, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBackendUnavailable, "token revocation list unavailable")
		}
		if revoked {
			return nil, s.reject(ctx, reasonRevoked, nil)
		}
	}

	return toClaims(c), nil
}

// Revoke adds the token's ID to the revocation list until the token expires.
// Tokens that are already expired or not ours are ignored. Without a
// revocation list Revoke is a no-op.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	if s.revocations == nil {
		return nil
	}
	c, err := s.parseAt(raw, requestcontext.Now(ctx))
	if err != nil || c.ID == "" {
		return nil
	}
	if err := s.revocations.Revoke(ctx, c.ID, c.ExpiresAt.Time); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBackendUnavailable, "could not revoke token")
	}
	if s.metrics != nil {
		s.metrics.IncrementTokensRevoked()
	}
	return nil
}

// parseAt accepts a token up to and including its expiry second. The jwt
// library treats now == exp as expired, so it gets a second of leeway and the
// upper bound is checked here.
func (s *Service) parseAt(raw string, now time.Time) (*claims, error) {
	c, err := s.parse(raw,
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Second),
	)
	if err != nil {
		return nil, err
	}
	if now.After(c.ExpiresAt.Time) {
		return nil, jwt.ErrTokenExpired
	}
	return c, nil
}

func (s *Service) parse(raw string, opts ...jwt.ParserOption) (*claims, error) {
	if raw == "" {
		return nil, jwt.ErrTokenMalformed
	}
	opts = append(opts, jwt.WithIssuer(s.issuer), jwt.WithIssuedAt())
	c := new(claims)
	parsed, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errWrongAlgorithm
		}
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || c.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return c, nil
}

func (s *Service) reject(ctx context.Context, reason string, cause error) error {
	if s.metrics != nil {
		s.metrics.IncrementTokenValidationFailure(reason)
	}
	if s.logger != nil {
		attrs := []any{"reason", reason, "request_id", requestcontext.RequestID(ctx)}
		if cause != nil {
			attrs = append(attrs, "error", cause)
		}
		s.logger.InfoContext(ctx, "token rejected", attrs...)
	}
	return ErrInvalidToken
}

func classify(err error) string {
	switch {
	case errors.Is(err, errWrongAlgorithm):
		return reasonAlgorithm
	case errors.Is(err, jwt.ErrTokenExpired):
		return reasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return reasonSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return reasonMalformed
	default:
		return reasonClaims
	}
}

func toClaims(c *claims) *models.Claims {
	out := &models.Claims{AccountID: c.Subject, JTI: c.ID}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.UTC()
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.UTC()
	}
	return out
}
