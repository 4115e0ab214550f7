package window

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"warden/internal/ratelimit/models"
)

// PostgresStore persists the sliding-window log as one row per admitted request.
// A transaction-scoped advisory lock on the key hash serializes decisions for a key
// across every instance sharing the database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed sliding-window log store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Allow(ctx context.Context, key string, limit models.Limit, now time.Time) (*models.Decision, error) {
	if key == "" {
		return nil, fmt.Errorf("rate limit key is required")
	}
	if err := limit.Validate(); err != nil {
		return nil, err
	}

	cutoff := now.Add(-limit.Window)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rate limit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1)::bigint)`, key); err != nil {
		return nil, fmt.Errorf("acquire rate limit lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE key = $1 AND occurred_at <= $2`, key, cutoff); err != nil {
		return nil, fmt.Errorf("purge rate limit events: %w", err)
	}

	var (
		current int
		oldest  sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(occurred_at)
		FROM rate_limit_events
		WHERE key = $1
	`, key).Scan(&current, &oldest)
	if err != nil {
		return nil, fmt.Errorf("count rate limit events: %w", err)
	}

	if current >= limit.Requests {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit rate limit tx: %w", err)
		}
		resetAt := now.Add(limit.Window)
		if oldest.Valid {
			resetAt = oldest.Time.Add(limit.Window)
		}
		return models.Deny(limit.Requests, resetAt, resetAt.Sub(now)), nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_limit_events (key, occurred_at, expires_at)
		VALUES ($1, $2, $3)
	`, key, now, now.Add(limit.Window))
	if err != nil {
		return nil, fmt.Errorf("insert rate limit event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rate limit tx: %w", err)
	}

	first := now
	if oldest.Valid {
		first = oldest.Time
	}
	return models.Allow(limit.Requests, limit.Requests-(current+1), first.Add(limit.Window)), nil
}

func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("rate limit key is required")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE key = $1`, key); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}

// Sweep deletes events whose window has elapsed. Keys with live events are untouched.
func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep rate limit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rate limit events: %w", err)
	}
	return int(n), nil
}
