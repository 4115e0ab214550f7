// Package database opens the Postgres pool backing the account, rate limit
// and revocation stores.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"warden/migrations"
)

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Migrate applies the embedded schema after connecting.
	Migrate bool
}

func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		Migrate:         true,
	}
}

// Pool wraps a *sql.DB opened through the pgx stdlib driver.
type Pool struct {
	db *sql.DB
}

// New opens and pings the database. Returns nil, nil if the URL is empty.
// Connection pool statistics are exported on reg when it is non-nil.
func New(ctx context.Context, cfg Config, reg prometheus.Registerer) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Migrate {
		if err := migrations.Up(ctx, db); err != nil {
			db.Close() //nolint:errcheck
			return nil, err
		}
	}

	if reg != nil {
		if err := reg.Register(collectors.NewDBStatsCollector(db, "warden")); err != nil {
			db.Close() //nolint:errcheck
			return nil, fmt.Errorf("register db stats: %w", err)
		}
	}
	return &Pool{db: db}, nil
}

// DB returns the underlying *sql.DB for query operations.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health checks if the database is reachable.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("database not configured")
	}
	return p.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
