// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeNetwork   = "network_error"
	OutcomeMalformed = "malformed"
	OutcomeEmpty     = "empty"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Upstream API metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  prometheus.Histogram
	UpstreamRecords  prometheus.Counter

	// Memo metrics
	MemoLookups *prometheus.CounterVec

	// Dashboard metrics
	DashboardRenders  *prometheus.CounterVec
	DashboardDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "hdbdash"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of datastore requests by outcome",
		}, []string{"outcome"}),
		UpstreamLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Datastore request latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		UpstreamRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "records_total",
			Help:      "Total number of resale records received",
		}),

		MemoLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memo",
			Name:      "lookups_total",
			Help:      "Fetch memo lookups by result",
		}, []string{"result"}),

		DashboardRenders: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "renders_total",
			Help:      "Dashboard pipeline runs by outcome",
		}, []string{"outcome"}),
		DashboardDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "render_duration_seconds",
			Help:      "Time to fetch, aggregate and compute growth for one selection",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveFetch(outcome string, elapsed time.Duration, records int) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(outcome).Inc()
	m.UpstreamLatency.Observe(elapsed.Seconds())
	if records > 0 {
		m.UpstreamRecords.Add(float64(records))
	}
}

func (m *Metrics) MemoHit() {
	if m == nil {
		return
	}
	m.MemoLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) MemoMiss() {
	if m == nil {
		return
	}
	m.MemoLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) ObserveRender(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DashboardRenders.WithLabelValues(outcome).Inc()
	m.DashboardDuration.Observe(elapsed.Seconds())
}
