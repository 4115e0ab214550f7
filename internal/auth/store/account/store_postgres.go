package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"warden/internal/auth/models"
	"warden/pkg/platform/sentinel"
)

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed account store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*models.Account, error) {
	var (
		acc         models.Account
		lockedUntil sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash, failed_attempts, locked_until, version, created_at
		FROM accounts
		WHERE id = $1
	`, id).Scan(&acc.ID, &acc.PasswordHash, &acc.FailedAttempts, &lockedUntil, &acc.Version, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		acc.LockedUntil = &t
	}
	return &acc, nil
}

func (s *PostgresStore) Create(ctx context.Context, account *models.Account) error {
	if account == nil {
		return fmt.Errorf("account is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, password_hash, failed_attempts, locked_until, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, account.ID, account.PasswordHash, account.FailedAttempts, nullTime(account.LockedUntil), account.Version, account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %q: %w", account.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// CompareAndSwapLockout updates the lockout columns only if version still
// equals expectedVersion. A zero-row update is disambiguated into not found
// versus stale with a follow-up read.
func (s *PostgresStore) CompareAndSwapLockout(ctx context.Context, id string, expectedVersion int64, fields models.LockoutFields) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET failed_attempts = $3, locked_until = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`, id, expectedVersion, fields.FailedAttempts, nullTime(fields.LockedUntil))
	if err != nil {
		return fmt.Errorf("update account lockout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account lockout: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update account lockout: %w", err)
	}
	if !exists {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return fmt.Errorf("account %q: %w", id, sentinel.ErrStaleVersion)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
