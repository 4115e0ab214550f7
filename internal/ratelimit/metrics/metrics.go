package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds rate limiter collectors. A nil registerer builds unregistered
// collectors, which is what tests use.
type Metrics struct {
	RateLimitDecisionsTotal         *prometheus.CounterVec
	RateLimitStoreErrorsTotal       *prometheus.CounterVec
	RateLimitFallbackDecisionsTotal prometheus.Counter
	RateLimitCircuitOpen            *prometheus.GaugeVec
	RateLimitDecisionDuration       prometheus.Histogram
	RateLimitSweepEvictionsTotal    *prometheus.CounterVec
	RateLimitCleanupRunsTotal       *prometheus.CounterVec
	RateLimitCleanupDurationSeconds prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RateLimitDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_ratelimit_decisions_total",
			Help: "Admission decisions by route and outcome",
		}, []string{"route", "outcome"}),
		RateLimitStoreErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_ratelimit_store_errors_total",
			Help: "Rate limit store errors by store",
		}, []string{"store"}),
		RateLimitFallbackDecisionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_ratelimit_fallback_decisions_total",
			Help: "Decisions answered by the fallback store while the primary was unavailable",
		}),
		RateLimitCircuitOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "warden_ratelimit_circuit_open",
			Help: "1 when the circuit breaker in front of a rate limit store is open",
		}, []string{"name"}),
		RateLimitDecisionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_ratelimit_decision_duration_seconds",
			Help:    "Time spent making an admission decision",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		RateLimitSweepEvictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_ratelimit_sweep_evictions_total",
			Help: "Idle keys evicted by the cleanup worker by store",
		}, []string{"store"}),
		RateLimitCleanupRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_ratelimit_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		}, []string{"status"}),
		RateLimitCleanupDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "warden_ratelimit_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
	}
}

func (m *Metrics) IncrementDecision(route, outcome string) {
	m.RateLimitDecisionsTotal.WithLabelValues(route, outcome).Inc()
}

func (m *Metrics) IncrementStoreError(store string) {
	m.RateLimitStoreErrorsTotal.WithLabelValues(store).Inc()
}

func (m *Metrics) IncrementFallbackDecision() {
	m.RateLimitFallbackDecisionsTotal.Inc()
}

func (m *Metrics) SetCircuitOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.RateLimitCircuitOpen.WithLabelValues(name).Set(v)
}

func (m *Metrics) ObserveDecisionDuration(seconds float64) {
	m.RateLimitDecisionDuration.Observe(seconds)
}

func (m *Metrics) IncrementSweepEvictions(store string, count int) {
	m.RateLimitSweepEvictionsTotal.WithLabelValues(store).Add(float64(count))
}

func (m *Metrics) IncrementCleanupRuns(status string) {
	m.RateLimitCleanupRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCleanupDuration(durationSeconds float64) {
	m.RateLimitCleanupDurationSeconds.Observe(durationSeconds)
}
