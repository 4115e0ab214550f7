// Package ports defines the collaborators of the auth gateway.
package ports

import (
	"context"
	"time"

	"warden/internal/auth/models"
	rlmodels "warden/internal/ratelimit/models"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// AccountStore persists accounts.
//
// Error contract:
//   - Load returns sentinel.ErrNotFound for unknown ids
//   - Create returns sentinel.ErrAlreadyUsed for duplicate ids
//   - CompareAndSwapLockout returns sentinel.ErrStaleVersion when the stored
//     version differs from expectedVersion, and sentinel.ErrNotFound for unknown ids
//   - any other error is an infrastructure failure
type AccountStore interface {
	Load(ctx context.Context, id string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	CompareAndSwapLockout(ctx context.Context, id string, expectedVersion int64, fields models.LockoutFields) error
}

// RateLimiter decides admission for a client on a route.
type RateLimiter interface {
	AllowRoute(ctx context.Context, client rlmodels.ClientKey, route rlmodels.Route) (*rlmodels.Decision, error)
}

// LockoutTracker owns the failed-attempt counters of accounts.
type LockoutTracker interface {
	IsLocked(ctx context.Context, accountID string) (bool, time.Duration, error)
	RecordAttempt(ctx context.Context, accountID string, succeeded bool) (models.LockState, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	NeedsRehash(digest string) bool
}

// TokenService issues, validates and revokes bearer tokens.
type TokenService interface {
	Issue(ctx context.Context, accountID string, ttl time.Duration) (*models.Token, error)
	Validate(ctx context.Context, raw string) (*models.Claims, error)
	Revoke(ctx context.Context, raw string) error
}
