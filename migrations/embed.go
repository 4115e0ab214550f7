// Package migrations embeds warden's Postgres schema and applies it.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"
)

//go:embed *.sql
var FS embed.FS

// advisoryLockKey serializes Up across replicas starting at the same time.
const advisoryLockKey = 0x77617264656e // "warden"

const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Pending lists the up migrations in apply order.
func Pending() ([]string, error) {
	files, err := fs.Glob(FS, "*.up.sql")
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// Version is the migration file name without its .up.sql suffix.
func Version(file string) string {
	return strings.TrimSuffix(file, ".up.sql")
}

// Up applies every migration not yet recorded in schema_migrations, each in
// its own transaction.
func Up(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createVersionTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	files, err := Pending()
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	for _, file := range files {
		if err := apply(ctx, db, file); err != nil {
			return fmt.Errorf("migration %s: %w", file, err)
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, file string) error {
	body, err := fs.ReadFile(FS, file)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`,
		Version(file),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// already applied
		return nil
	}
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return err
	}
	return tx.Commit()
}
