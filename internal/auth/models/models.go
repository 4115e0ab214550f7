package models

import (
	"strings"
	"time"

	dErrors "warden/pkg/domain-errors"
)

// This file contains pure domain models for authentication: entities
// that do not depend on transport or storage concerns.

// Account is a credential holder and its lockout state.
type Account struct {
	ID             string
	PasswordHash   string
	FailedAttempts int
	LockedUntil    *time.Time
	// Version is the optimistic concurrency token for lockout updates.
	Version   int64
	CreatedAt time.Time
}

// NewAccount builds a fresh account with no failed attempts.
func NewAccount(id, passwordHash string, now time.Time) (*Account, error) {
	id = NormalizeAccountID(id)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password hash is required")
	}
	return &Account{
		ID:           id,
		PasswordHash: passwordHash,
		Version:      1,
		CreatedAt:    now,
	}, nil
}

// LockState returns the lockout fields of the account as of now.
func (a *Account) LockState(now time.Time) LockState {
	return LockState{
		FailedAttempts: a.FailedAttempts,
		LockedUntil:    a.LockedUntil,
		Locked:         a.LockedUntil != nil && now.Before(*a.LockedUntil),
	}
}

// Lockout returns the persisted lockout fields.
func (a *Account) Lockout() LockoutFields {
	return LockoutFields{FailedAttempts: a.FailedAttempts, LockedUntil: a.LockedUntil}
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

// LockoutFields are the account columns owned by the lockout tracker.
type LockoutFields struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// LockState is the lockout view of an account at an instant.
type LockState struct {
	FailedAttempts int
	LockedUntil    *time.Time
	Locked         bool
}

// RetryAfter returns how long until the lock expires, or zero when unlocked.
func (s LockState) RetryAfter(now time.Time) time.Duration {
	if !s.Locked || s.LockedUntil == nil {
		return 0
	}
	return max(s.LockedUntil.Sub(now), 0)
}

// Credentials is a login attempt.
type Credentials struct {
	AccountID string
	Password  string
}

// Principal is the authenticated caller of a request.
type Principal struct {
	AccountID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token is an issued bearer token.
type Token struct {
	Value     string
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims are the verified contents of a token.
type Claims struct {
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	JTI       string
}

// Principal converts verified claims into the request principal.
func (c *Claims) Principal() *Principal {
	return &Principal{
		AccountID: c.AccountID,
		TokenID:   c.JTI,
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
	}
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Token *Token
	// RehashNeeded reports that the stored digest uses outdated parameters.
	RehashNeeded bool
}

// NormalizeAccountID trims whitespace and lowercases identifiers so lookups,
// lockout counters and rate limit keys agree on one spelling.
func NormalizeAccountID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
