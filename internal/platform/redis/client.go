// Package redis wraps the go-redis client used by the rate limit and token
// revocation stores.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// Config holds connection settings. Zero values keep the go-redis defaults.
type Config struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:          url,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}

type poolMetrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	timeouts   prometheus.Counter
	staleConns prometheus.Counter
	totalConns prometheus.Gauge
	idleConns  prometheus.Gauge
}

func newPoolMetrics(reg prometheus.Registerer) *poolMetrics {
	f := promauto.With(reg)
	return &poolMetrics{
		hits: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_redis_pool_hits_total",
			Help: "Number of times a connection was found in the pool",
		}),
		misses: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_redis_pool_misses_total",
			Help: "Number of times a connection was not found in the pool",
		}),
		timeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_redis_pool_timeouts_total",
			Help: "Number of times a connection was not obtained due to timeout",
		}),
		staleConns: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_redis_pool_stale_conns_total",
			Help: "Number of stale connections removed from the pool",
		}),
		totalConns: f.NewGauge(prometheus.GaugeOpts{
			Name: "warden_redis_pool_total_conns",
			Help: "Number of total connections in the pool",
		}),
		idleConns: f.NewGauge(prometheus.GaugeOpts{
			Name: "warden_redis_pool_idle_conns",
			Help: "Number of idle connections in the pool",
		}),
	}
}

// Client wraps the go-redis client with health checking and pool metrics.
type Client struct {
	*redis.Client
	metrics   *poolMetrics
	lastStats *redis.PoolStats
}

// New connects to cfg.URL and pings it. Returns nil, nil when no URL is set.
// Pool metrics are registered on reg when it is non-nil.
func New(ctx context.Context, cfg Config, reg prometheus.Registerer) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	c := &Client{Client: client}
	if reg != nil {
		c.metrics = newPoolMetrics(reg)
	}
	return c, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}

// RecordPoolStats updates the pool metrics with the delta since the last call.
func (c *Client) RecordPoolStats() {
	if c.metrics == nil {
		return
	}
	stats := c.PoolStats()
	m := c.metrics

	m.totalConns.Set(float64(stats.TotalConns))
	m.idleConns.Set(float64(stats.IdleConns))

	prev := c.lastStats
	if prev == nil {
		prev = &redis.PoolStats{}
	}
	addDelta(m.hits, stats.Hits, prev.Hits)
	addDelta(m.misses, stats.Misses, prev.Misses)
	addDelta(m.timeouts, stats.Timeouts, prev.Timeouts)
	addDelta(m.staleConns, stats.StaleConns, prev.StaleConns)

	c.lastStats = stats
}

// RunPoolStats records pool statistics every interval until ctx is done.
func (c *Client) RunPoolStats(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.RecordPoolStats()
		}
	}
}

func addDelta(c prometheus.Counter, cur, prev uint32) {
	if cur > prev {
		c.Add(float64(cur - prev))
	}
}
