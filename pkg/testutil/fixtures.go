package testutil

import (
	"time"

	authmodels "warden/internal/auth/models"
)

// FixedNow is the reference instant for deterministic tests.
var FixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// TestAccounts provides account identifiers shared across test packages.
var TestAccounts = struct {
	Alice string
	Bob   string
}{
	Alice: "alice@example.com",
	Bob:   "bob@example.com",
}

// AccountBuilder provides a fluent interface for building test accounts.
type AccountBuilder struct {
	account *authmodels.Account
}

// NewAccountBuilder creates an active account with no failed attempts.
func NewAccountBuilder() *AccountBuilder {
	return &AccountBuilder{
		account: &authmodels.Account{
			ID:           TestAccounts.Alice,
			PasswordHash: "$2a$04$placeholderplaceholderplaceholderplaceholderplacehol",
			Version:      1,
			CreatedAt:    FixedNow,
		},
	}
}

func (b *AccountBuilder) WithID(id string) *AccountBuilder {
	b.account.ID = id
	return b
}

func (b *AccountBuilder) WithPasswordHash(hash string) *AccountBuilder {
	b.account.PasswordHash = hash
	return b
}

func (b *AccountBuilder) WithFailedAttempts(n int) *AccountBuilder {
	b.account.FailedAttempts = n
	return b
}

func (b *AccountBuilder) LockedUntil(t time.Time) *AccountBuilder {
	b.account.LockedUntil = &t
	return b
}

func (b *AccountBuilder) WithVersion(v int64) *AccountBuilder {
	b.account.Version = v
	return b
}

func (b *AccountBuilder) Build() *authmodels.Account {
	return b.account.Clone()
}
