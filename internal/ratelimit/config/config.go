package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"warden/internal/ratelimit/models"
)

// Backend selects where window state is kept.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
)

// Config holds rate limiting and lockout configuration.
type Config struct {
	Algorithm models.Algorithm
	Backend   Backend

	// FailOpen admits requests when the store is unavailable and no fallback answers.
	// The default is to deny.
	FailOpen bool

	// Default applies to routes without an explicit entry.
	Default models.Limit
	// Routes holds per-route limits scoped per (client, route).
	Routes map[models.Route]models.Limit

	// Shards is the number of lock shards for in-memory stores.
	Shards int
	// IdleTTL is how long a key with an elapsed window is kept before eviction.
	IdleTTL time.Duration
	// SweepInterval is the cleanup worker period.
	SweepInterval time.Duration

	Breaker BreakerConfig
	Lockout LockoutConfig
}

// BreakerConfig controls when a failing store is bypassed for the in-memory fallback.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

// LockoutConfig defines account lockout parameters.
type LockoutConfig struct {
	Threshold  int           // consecutive failures before locking
	Duration   time.Duration // how long a lock lasts
	MaxRetries int           // CAS retries before surfacing a conflict
}

// DefaultConfig returns the defaults: 10 requests/minute on login, 5 failures lock for 5 minutes.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: models.AlgorithmSlidingLog,
		Backend:   BackendMemory,
		FailOpen:  false,
		Default:   models.Limit{Requests: 100, Window: time.Minute},
		Routes: map[models.Route]models.Limit{
			models.RouteGlobal:   {Requests: 300, Window: time.Minute},
			models.RouteLogin:    {Requests: 10, Window: time.Minute},
			models.RouteRegister: {Requests: 10, Window: time.Minute},
			models.RouteMe:       {Requests: 100, Window: time.Minute},
			models.RouteLogout:   {Requests: 30, Window: time.Minute},
		},
		Shards:        64,
		IdleTTL:       10 * time.Minute,
		SweepInterval: time.Minute,
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Cooldown:         time.Second,
		},
		Lockout: LockoutConfig{
			Threshold:  5,
			Duration:   5 * time.Minute,
			MaxRetries: 3,
		},
	}
}

// LimitFor returns the limit configured for route, falling back to Default.
func (c *Config) LimitFor(route models.Route) models.Limit {
	if limit, ok := c.Routes[route]; ok {
		return limit
	}
	return c.Default
}

// SetRoute overrides the limit for route.
func (c *Config) SetRoute(route models.Route, limit models.Limit) {
	if c.Routes == nil {
		c.Routes = make(map[models.Route]models.Limit)
	}
	c.Routes[route] = limit
}

// Validate checks every configured limit and the lockout parameters.
func (c *Config) Validate() error {
	if !c.Algorithm.IsValid() {
		return fmt.Errorf("unknown rate limit algorithm %q", c.Algorithm)
	}
	switch c.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.Backend)
	}
	if c.Algorithm == models.AlgorithmTokenBucket && c.Backend != BackendMemory {
		return fmt.Errorf("token bucket is only available with the memory backend")
	}
	if c.Algorithm == models.AlgorithmFixedWindow && c.Backend == BackendPostgres {
		return fmt.Errorf("fixed window is not available with the postgres backend")
	}
	if err := c.Default.Validate(); err != nil {
		return fmt.Errorf("default limit: %w", err)
	}
	for route, limit := range c.Routes {
		if err := limit.Validate(); err != nil {
			return fmt.Errorf("route %s: %w", route, err)
		}
	}
	if c.Lockout.Threshold < 1 {
		return fmt.Errorf("lockout threshold must be at least 1")
	}
	if c.Lockout.Duration <= 0 {
		return fmt.Errorf("lockout duration must be positive")
	}
	return nil
}

// ParseLimit parses "<requests>/<duration>", e.g. "10/1m" or "5/30s".
func ParseLimit(s string) (models.Limit, error) {
	reqPart, windowPart, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return models.Limit{}, fmt.Errorf("invalid limit %q: want <requests>/<duration>", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(reqPart))
	if err != nil {
		return models.Limit{}, fmt.Errorf("invalid limit %q: %w", s, err)
	}
	window, err := time.ParseDuration(strings.TrimSpace(windowPart))
	if err != nil {
		return models.Limit{}, fmt.Errorf("invalid limit %q: %w", s, err)
	}
	limit := models.Limit{Requests: n, Window: window}
	if err := limit.Validate(); err != nil {
		return models.Limit{}, fmt.Errorf("invalid limit %q: %w", s, err)
	}
	return limit, nil
}
