package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresTRL persists revoked token JTIs in PostgreSQL.
type PostgresTRL struct {
	db *sql.DB
}

// NewPostgresTRL constructs a PostgreSQL-backed token revocation list.
func NewPostgresTRL(db *sql.DB) *PostgresTRL {
	return &PostgresTRL{db: db}
}

// Revoke records jti until expiresAt. Re-revoking keeps the later expiry.
func (t *PostgresTRL) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	query := `
		INSERT INTO token_revocations (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO UPDATE SET
			expires_at = GREATEST(token_revocations.expires_at, EXCLUDED.expires_at)
	`
	if _, err := t.db.ExecContext(ctx, query, jti, expiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti is revoked at now.
func (t *PostgresTRL) IsRevoked(ctx context.Context, jti string, now time.Time) (bool, error) {
	var expiresAt time.Time
	err := t.db.QueryRowContext(ctx, `SELECT expires_at FROM token_revocations WHERE jti = $1`, jti).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return !now.After(expiresAt), nil
}

// Sweep deletes entries whose tokens have expired.
func (t *PostgresTRL) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := t.db.ExecContext(ctx, `DELETE FROM token_revocations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep token revocations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep token revocations: %w", err)
	}
	return int(n), nil
}
