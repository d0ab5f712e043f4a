// Package metrics holds the Prometheus collectors of the auth server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for auth events.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeNotVerified        = "not_verified"
	OutcomeInvalidToken       = "invalid_token"
	OutcomeExpired            = "expired"
	OutcomeRateLimited        = "rate_limited"
	OutcomeError              = "error"
)

// Metrics contains the server's custom collectors. Each instance owns its
// collectors, so tests can use a private registry.
type Metrics struct {
	AuthEvents      *prometheus.CounterVec
	SessionsSwept   prometheus.Counter
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// Panics if registration fails (following prometheus convention).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeeper_auth_events_total",
				Help: "Total number of authentication events by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		SessionsSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authkeeper_sessions_swept_total",
				Help: "Total number of expired sessions deleted by the sweeper",
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeeper_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authkeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.AuthEvents, m.SessionsSwept, m.RequestsTotal, m.RequestDuration)
	}
	return m
}

// RecordAuthEvent counts one auth event, e.g. ("login", OutcomeSuccess).
// A nil receiver is a no-op.
func (m *Metrics) RecordAuthEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.AuthEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) RecordSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsSwept.Add(float64(n))
}

func (m *Metrics) RecordRequest(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, method, status).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
