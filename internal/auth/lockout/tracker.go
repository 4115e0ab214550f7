// Package lockout tracks consecutive failed logins per account and locks
// accounts that reach the threshold.
//
// State machine:
//
//	Active --(Threshold consecutive failures)--> Locked(Duration)
//	Locked --(next attempt after expiry)--> Active with the counter reset
//	Active --(success)--> Active with the counter reset
//
// Lockout fields are persisted with compare-and-swap on the account version.
// Updates to one account are serialized within the process, so the CAS retry
// only absorbs races with other processes sharing the store.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/auth/metrics"
	"warden/internal/auth/models"
	"warden/internal/auth/ports"
	"warden/internal/ratelimit/config"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
	wsync "warden/pkg/platform/sync"
	"warden/pkg/requestcontext"
)

// Config holds lockout parameters.
type Config struct {
	Threshold  int
	Duration   time.Duration
	MaxRetries int
	// StrictInvariants panics on corrupt counters instead of clamping them.
	StrictInvariants bool
}

// DefaultConfig returns 5 failures locking for 5 minutes with 3 CAS retries.
func DefaultConfig() Config {
	d := config.DefaultConfig().Lockout
	return Config{
		Threshold:  d.Threshold,
		Duration:   d.Duration,
		MaxRetries: d.MaxRetries,
	}
}

// Tracker owns the lockout fields of accounts.
type Tracker struct {
	store   ports.AccountStore
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Logger
	locks   *wsync.ShardedMutex
}

type Option func(*Tracker)

func WithConfig(cfg Config) Option {
	return func(t *Tracker) {
		t.config = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithAuditLogger routes lock and unlock events to an audit logger.
// By default they go to the structured logger.
func WithAuditLogger(a *audit.Logger) Option {
	return func(t *Tracker) {
		t.audit = a
	}
}

func New(store ports.AccountStore, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("account store is required")
	}
	t := &Tracker{
		store:  store,
		config: DefaultConfig(),
		logger: slog.Default(),
		locks:  wsync.NewShardedMutex(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.config.Threshold < 1 {
		return nil, errors.New("lockout threshold must be at least 1")
	}
	if t.config.Duration <= 0 {
		return nil, errors.New("lockout duration must be positive")
	}
	if t.config.MaxRetries < 0 {
		t.config.MaxRetries = 0
	}
	if t.audit == nil {
		t.audit = audit.NewLogger(t.logger, nil)
	}
	return t, nil
}

// IsLocked reports whether accountID is locked at the request time and for how long.
// Unknown accounts are reported unlocked so callers cannot probe for existence.
func (t *Tracker) IsLocked(ctx context.Context, accountID string) (bool, time.Duration, error) {
	acc, err := t.store.Load(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, 0, nil
		}
		return false, 0, dErrors.Wrap(err, dErrors.CodeBackendUnavailable, "failed to load lockout state")
	}
	now := requestcontext.Now(ctx)
	state := acc.LockState(now)
	return state.Locked, state.RetryAfter(now), nil
}

// RecordAttempt applies the outcome of a login attempt and returns the resulting state.
// While the account is locked the attempt is ignored and the current lock is returned.
func (t *Tracker) RecordAttempt(ctx context.Context, accountID string, succeeded bool) (models.LockState, error) {
	now := requestcontext.Now(ctx)
	t.locks.Lock(accountID)
	defer t.locks.Unlock(accountID)

	for attempt := 0; attempt <= t.config.MaxRetries; attempt++ {
		acc, err := t.store.Load(ctx, accountID)
		if err != nil {
			return models.LockState{}, t.translate(err, "failed to load lockout state")
		}

		current := acc.LockState(now)
		if current.Locked {
			return current, nil
		}

		next := t.transition(ctx, acc, succeeded, now)
		if sameLockout(acc.Lockout(), next) {
			return current, nil
		}

		err = t.store.CompareAndSwapLockout(ctx, accountID, acc.Version, next)
		if err == nil {
			state := models.LockState{
				FailedAttempts: next.FailedAttempts,
				LockedUntil:    next.LockedUntil,
				Locked:         next.LockedUntil != nil && now.Before(*next.LockedUntil),
			}
			if state.Locked {
				t.onLocked(ctx, accountID, state.RetryAfter(now))
			}
			return state, nil
		}
		if !errors.Is(err, sentinel.ErrStaleVersion) {
			return models.LockState{}, t.translate(err, "failed to update lockout state")
		}
		if t.metrics != nil {
			t.metrics.IncrementLockoutConflicts()
		}
		t.logger.DebugContext(ctx, "lockout update lost a race, retrying",
			"attempt", attempt+1,
		)
	}
	return models.LockState{}, dErrors.New(dErrors.CodeConflict, "lockout state changed concurrently")
}

// Unlock clears the counters and any active lock of accountID.
func (t *Tracker) Unlock(ctx context.Context, accountID string) error {
	t.locks.Lock(accountID)
	defer t.locks.Unlock(accountID)

	for attempt := 0; attempt <= t.config.MaxRetries; attempt++ {
		acc, err := t.store.Load(ctx, accountID)
		if err != nil {
			return t.translate(err, "failed to load lockout state")
		}
		if sameLockout(acc.Lockout(), models.LockoutFields{}) {
			return nil
		}
		err = t.store.CompareAndSwapLockout(ctx, accountID, acc.Version, models.LockoutFields{})
		if err == nil {
			t.audit.Log(ctx, audit.EventAccountUnlocked, "account_id", accountID)
			return nil
		}
		if !errors.Is(err, sentinel.ErrStaleVersion) {
			return t.translate(err, "failed to update lockout state")
		}
		if t.metrics != nil {
			t.metrics.IncrementLockoutConflicts()
		}
	}
	return dErrors.New(dErrors.CodeConflict, "lockout state changed concurrently")
}

// transition computes the lockout fields after one attempt on an unlocked account.
func (t *Tracker) transition(ctx context.Context, acc *models.Account, succeeded bool, now time.Time) models.LockoutFields {
	failed := acc.FailedAttempts
	if failed < 0 {
		if t.config.StrictInvariants {
			panic(fmt.Sprintf("lockout: account %q has negative failed attempts %d", acc.ID, failed))
		}
		t.logger.ErrorContext(ctx, "clamping corrupt failed attempt counter",
			"failed_attempts", failed,
		)
		failed = 0
	}
	// a lock that has elapsed starts a fresh count
	if acc.LockedUntil != nil && !now.Before(*acc.LockedUntil) {
		failed = 0
	}

	if succeeded {
		return models.LockoutFields{}
	}

	failed++
	if failed >= t.config.Threshold {
		until := now.Add(t.config.Duration)
		return models.LockoutFields{FailedAttempts: failed, LockedUntil: &until}
	}
	return models.LockoutFields{FailedAttempts: failed}
}

func (t *Tracker) onLocked(ctx context.Context, accountID string, retryAfter time.Duration) {
	if t.metrics != nil {
		t.metrics.IncrementLockoutsTriggered()
	}
	t.audit.Log(ctx, audit.EventAccountLocked,
		"account_id", accountID,
		"threshold", t.config.Threshold,
		"retry_after_ms", retryAfter.Milliseconds(),
	)
}

func (t *Tracker) translate(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
	}
	return dErrors.Wrap(err, dErrors.CodeBackendUnavailable, msg)
}

func sameLockout(a, b models.LockoutFields) bool {
	if a.FailedAttempts != b.FailedAttempts {
		return false
	}
	switch {
	case a.LockedUntil == nil && b.LockedUntil == nil:
		return true
	case a.LockedUntil == nil || b.LockedUntil == nil:
		return false
	default:
		return a.LockedUntil.Equal(*b.LockedUntil)
	}
}
