package main

import (
	"database/sql"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"warden/internal/auth/store/revocation"
	"warden/internal/auth/token"
	"warden/internal/ratelimit/config"
	"warden/internal/ratelimit/models"
	"warden/internal/ratelimit/ports"
	"warden/internal/ratelimit/store/fixedwindow"
	"warden/internal/ratelimit/store/tokenbucket"
	"warden/internal/ratelimit/store/window"
	"warden/internal/ratelimit/workers/cleanup"
)

// rateLimitStores is the store selection for the configured algorithm and backend.
type rateLimitStores struct {
	primary  ports.Store
	fallback ports.Store
	name     string
}

// buildRateLimitStores picks the primary store and, for remote backends, an
// in-memory store of the same algorithm to answer while the backend is down.
// Stores that keep state in process are registered with sweeper. Algorithm
// and backend pairs without a store are rejected rather than substituted.
func buildRateLimitStores(cfg *config.Config, rdb goredis.UniversalClient, db *sql.DB, sweeper *cleanup.SweepService) (*rateLimitStores, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rate limit config: %w", err)
	}
	local := func() ports.Store {
		switch cfg.Algorithm {
		case models.AlgorithmTokenBucket:
			s := tokenbucket.NewInMemoryStore(cfg.Shards, tokenbucket.WithIdleTTL(cfg.IdleTTL))
			sweeper.Register("tokenbucket_memory", s)
			return s
		case models.AlgorithmFixedWindow:
			s := fixedwindow.NewInMemoryStore(cfg.Shards)
			sweeper.Register("fixedwindow_memory", s)
			return s
		default:
			s := window.NewInMemoryStore(cfg.Shards, window.WithIdleTTL(cfg.IdleTTL))
			sweeper.Register("window_memory", s)
			return s
		}
	}

	switch cfg.Backend {
	case config.BackendMemory:
		return &rateLimitStores{primary: local(), name: "memory"}, nil

	case config.BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis backend selected without a redis client")
		}
		var primary ports.Store
		switch cfg.Algorithm {
		case models.AlgorithmFixedWindow:
			primary = fixedwindow.NewRedisStore(rdb, "")
		case models.AlgorithmSlidingLog:
			primary = window.NewRedisStore(rdb, "")
		default:
			return nil, fmt.Errorf("no redis store for algorithm %q", cfg.Algorithm)
		}
		return &rateLimitStores{primary: primary, fallback: local(), name: "redis"}, nil

	case config.BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres backend selected without a database")
		}
		if cfg.Algorithm != models.AlgorithmSlidingLog {
			return nil, fmt.Errorf("no postgres store for algorithm %q", cfg.Algorithm)
		}
		pg := window.NewPostgresStore(db)
		sweeper.Register("window_postgres", pg)
		return &rateLimitStores{primary: pg, fallback: local(), name: "postgres"}, nil
	}
	return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
}

// buildRevocationList keeps revoked token IDs next to the rate limit state:
// Redis when configured, then Postgres, then process memory.
func buildRevocationList(rdb goredis.UniversalClient, db *sql.DB, sweeper *cleanup.SweepService) token.RevocationList {
	switch {
	case rdb != nil:
		return revocation.NewRedisTRL(rdb, "")
	case db != nil:
		trl := revocation.NewPostgresTRL(db)
		sweeper.Register("revocations_postgres", trl)
		return trl
	default:
		trl := revocation.NewInMemoryTRL()
		sweeper.Register("revocations_memory", trl)
		return trl
	}
}
