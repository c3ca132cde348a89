// Package metrics holds the Prometheus collectors for pipeline runs.
//
// Collectors live on a registry owned by each Metrics value, not the
// default global registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for completion requests.
const (
	OutcomeSuccess   = "success"
	OutcomeTransport = "transport_error"
	OutcomeMalformed = "malformed_reply"
	OutcomeError     = "error"
)

// Metrics bundles the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	completionRequests *prometheus.CounterVec
	completionLatency  *prometheus.HistogramVec
	reviewCycles       prometheus.Histogram
	runs               *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		completionRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "squad_completion_requests_total",
				Help: "Completion service calls by agent and outcome",
			},
			[]string{"agent", "outcome"},
		),
		completionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "squad_completion_latency_seconds",
				Help:    "Completion service call latency",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"agent"},
		),
		reviewCycles: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "squad_review_cycles",
				Help:    "Revision rounds executed per run",
				Buckets: prometheus.LinearBuckets(0, 1, 9),
			},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "squad_runs_total",
				Help: "Finished pipeline runs by review status",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		m.completionRequests,
		m.completionLatency,
		m.reviewCycles,
		m.runs,
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCompletion records one completion call.
func (m *Metrics) ObserveCompletion(agent, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.completionRequests.WithLabelValues(agent, outcome).Inc()
	m.completionLatency.WithLabelValues(agent).Observe(latency.Seconds())
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, cycles int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.reviewCycles.Observe(float64(cycles))
}
