package request

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Duration *prometheus.HistogramVec
	Requests *prometheus.CounterVec
}

// NewMetrics registers the HTTP collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "route"}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Observe(method, route string, status int, d time.Duration) {
	m.Duration.WithLabelValues(method, route).Observe(d.Seconds())
	m.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
