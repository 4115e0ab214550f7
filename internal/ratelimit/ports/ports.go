// Package ports defines shared interfaces for the ratelimit module.
// Interfaces are placed here when consumed by multiple services to avoid duplication.
package ports

import (
	"context"
	"time"

	"warden/internal/ratelimit/models"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// Store keeps per-key request history and makes admission decisions.
// Implementations serialize decisions for the same key; decisions for
// different keys may run in parallel.
type Store interface {
	// Allow records one request at now for key when admitted under limit.
	Allow(ctx context.Context, key string, limit models.Limit, now time.Time) (*models.Decision, error)

	// Reset clears the history for key.
	Reset(ctx context.Context, key string) error
}

// Sweeper evicts state whose window has fully elapsed and that has been idle long enough.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (evicted int, err error)
}
