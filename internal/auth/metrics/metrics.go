package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for auth operations.
type Metrics struct {
	AccountsCreated          prometheus.Counter
	LoginOutcomes            *prometheus.CounterVec
	LockoutsTriggered        prometheus.Counter
	LockoutConflicts         prometheus.Counter
	TokensIssued             prometheus.Counter
	TokenValidationFailures  *prometheus.CounterVec
	TokensRevoked            prometheus.Counter
	LoginDurationSeconds     prometheus.Histogram
	PasswordRehashesRequired prometheus.Counter
}

// New registers auth collectors with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AccountsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_accounts_created_total",
			Help: "Total number of accounts registered",
		}),
		LoginOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_login_outcomes_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		LockoutsTriggered: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_lockouts_triggered_total",
			Help: "Accounts locked after consecutive failed logins",
		}),
		LockoutConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_lockout_conflicts_total",
			Help: "Lockout updates that lost an optimistic concurrency race and were retried",
		}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_tokens_issued_total",
			Help: "Total number of access tokens issued",
		}),
		TokenValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_token_validation_failures_total",
			Help: "Rejected tokens by internal reason",
		}, []string{"reason"}),
		TokensRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_tokens_revoked_total",
			Help: "Total number of tokens revoked on logout",
		}),
		LoginDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_login_duration_seconds",
			Help:    "Duration of login requests in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
		PasswordRehashesRequired: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_password_rehash_required_total",
			Help: "Successful logins whose stored digest uses outdated parameters",
		}),
	}
}

func (m *Metrics) IncrementAccountsCreated() {
	m.AccountsCreated.Inc()
}

func (m *Metrics) IncrementLoginOutcome(outcome string) {
	m.LoginOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementLockoutsTriggered() {
	m.LockoutsTriggered.Inc()
}

func (m *Metrics) IncrementLockoutConflicts() {
	m.LockoutConflicts.Inc()
}

func (m *Metrics) IncrementTokensIssued() {
	m.TokensIssued.Inc()
}

func (m *Metrics) IncrementTokenValidationFailure(reason string) {
	m.TokenValidationFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementTokensRevoked() {
	m.TokensRevoked.Inc()
}

func (m *Metrics) ObserveLoginDuration(seconds float64) {
	m.LoginDurationSeconds.Observe(seconds)
}

func (m *Metrics) IncrementPasswordRehashRequired() {
	m.PasswordRehashesRequired.Inc()
}
