// Package metrics exposes Prometheus instrumentation for the auth flows.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Flow labels.
const (
	FlowRegister = "register"
	FlowLogin    = "login"
	FlowLogout   = "logout"
	FlowSession  = "session"
)

// Outcome labels.
const (
	OutcomeSuccess         = "success"
	OutcomeBadRequest      = "bad_request"
	OutcomePolicyViolation = "policy_violation"
	OutcomeConflict        = "conflict"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeInternal        = "internal"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry     *prometheus.Registry
	attempts     *prometheus.CounterVec
	hashDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, along with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_attempts_total",
				Help: "Total number of auth flow attempts by outcome",
			},
			[]string{"flow", "outcome"},
		),
		hashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authd_password_hash_duration_seconds",
				Help:    "Password hash and verify duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
	}

	m.registry.MustRegister(
		m.attempts,
		m.hashDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordAttempt counts one flow attempt with its outcome.
func (m *Metrics) RecordAttempt(flow, outcome string) {
	m.attempts.WithLabelValues(flow, outcome).Inc()
}

// ObserveHash records how long a hash operation ("hash" or "verify") took.
func (m *Metrics) ObserveHash(op string, d time.Duration) {
	m.hashDuration.WithLabelValues(op).Observe(d.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
