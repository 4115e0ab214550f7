package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/ratelimit/metrics"
	"warden/internal/ratelimit/ports"
)

// CleanupResult contains the results of a sweep run.
type CleanupResult struct {
	Evicted  map[string]int // evicted keys per store name
	Duration time.Duration  // time taken for the run
}

// Total returns the number of evicted keys across all stores.
func (r *CleanupResult) Total() int {
	n := 0
	for _, v := range r.Evicted {
		n += v
	}
	return n
}

type Option func(*SweepService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *SweepService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *SweepService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SweepService) {
		s.metrics = m
	}
}

// WithClock overrides the time source passed to Sweep.
func WithClock(now func() time.Time) Option {
	return func(s *SweepService) {
		if now != nil {
			s.now = now
		}
	}
}

// SweepService periodically evicts idle window state from every registered store.
type SweepService struct {
	stores   map[string]ports.Sweeper
	names    []string
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(opts ...Option) *SweepService {
	service := &SweepService{
		stores:   make(map[string]ports.Sweeper),
		logger:   slog.Default(),
		interval: time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Register adds a store to sweep under name. Nil stores are ignored.
func (s *SweepService) Register(name string, store ports.Sweeper) {
	if store == nil {
		return
	}
	if _, ok := s.stores[name]; !ok {
		s.names = append(s.names, name)
	}
	s.stores[name] = store
}

func (s *SweepService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			startTime := time.Now()
			res, err := s.RunOnce(ctx)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Error("rate_limit_sweep_failed",
					"error", err,
					"duration_ms", duration.Milliseconds(),
				)
				if s.metrics != nil {
					s.metrics.IncrementCleanupRuns("error")
					s.metrics.ObserveCleanupDuration(duration.Seconds())
				}
				continue
			}

			res.Duration = duration
			s.logger.Info("rate_limit_sweep_completed",
				"evicted", res.Total(),
				"duration_ms", duration.Milliseconds(),
			)
			if s.metrics != nil {
				s.metrics.IncrementCleanupRuns("success")
				s.metrics.ObserveCleanupDuration(duration.Seconds())
			}

		case <-ctx.Done():
			s.logger.Info("rate limit sweep worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce sweeps every store once. A failing store does not stop the others;
// their errors are joined. Logging is handled by the caller (Start).
func (s *SweepService) RunOnce(ctx context.Context) (*CleanupResult, error) {
	now := s.now()
	res := &CleanupResult{Evicted: make(map[string]int, len(s.stores))}
	var errs []error
	for _, name := range s.names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		evicted, err := s.stores[name].Sweep(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", name, err))
			continue
		}
		res.Evicted[name] = evicted
		if s.metrics != nil && evicted > 0 {
			s.metrics.IncrementSweepEvictions(name, evicted)
		}
	}
	return res, errors.Join(errs...)
}
