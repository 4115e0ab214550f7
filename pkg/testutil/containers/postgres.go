//go:build integration

// Package containers starts the Postgres instance that warden's integration
// tests share. One container serves every suite in a test binary; suites
// isolate themselves by truncating the tables they touch.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"warden/migrations"
)

const postgresImage = "postgres:18-alpine"

// Tables owned by warden's migrations.
var Tables = []string{"accounts", "rate_limit_events", "token_revocations"}

type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

var (
	sharedMu sync.Mutex
	shared   *PostgresContainer
)

// Postgres returns the shared migrated container, starting it on first use.
// The container outlives the calling test; the testcontainers reaper removes
// it when the process exits.
func Postgres(t *testing.T) *PostgresContainer {
	t.Helper()

	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return shared
	}

	pc, err := startPostgres(context.Background())
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	shared = pc
	return shared
}

func startPostgres(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("warden_test"),
		postgres.WithUsername("warden"),
		postgres.WithPassword("warden_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	fail := func(step string, err error) (*PostgresContainer, error) {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fail("connection string", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fail("open", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return fail("migrate", err)
	}
	return &PostgresContainer{Container: container, DSN: dsn, DB: db}, nil
}

// Truncate empties tables, or every warden table when none are named.
func (p *PostgresContainer) Truncate(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		tables = Tables
	}
	if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE"); err != nil {
		return fmt.Errorf("truncate %v: %w", tables, err)
	}
	return nil
}
