// Package telemetry exposes the daemon's own operational metrics and
// tracing — not to be confused with grizzly's load-test statistics,
// which are emitted by an external collaborator and out of scope here.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RouterMetrics tracks the router's worker pool and request handling.
type RouterMetrics struct {
	WorkersSpawned   prometheus.Counter
	WorkersReady     prometheus.Gauge
	WorkersActive    prometheus.Gauge
	RequestsRouted   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	HandlerErrors    *prometheus.CounterVec
}

// NewRouterMetrics registers the router's metrics. Safe to call once
// per process; the router owns the single instance for its lifetime.
func NewRouterMetrics() *RouterMetrics {
	return &RouterMetrics{
		WorkersSpawned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "async_messaged_workers_spawned_total",
			Help: "Total number of workers spawned by the router.",
		}),
		WorkersReady: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "async_messaged_workers_ready",
			Help: "Number of workers currently idle in the ready pool.",
		}),
		WorkersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "async_messaged_workers_active",
			Help: "Number of workers currently bound to a client affinity.",
		}),
		RequestsRouted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "async_messaged_requests_routed_total",
			Help: "Total number of requests routed to a worker, by action.",
		}, []string{"action"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "async_messaged_request_duration_seconds",
			Help:    "Time spent handling a request inside an integration, by action.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		HandlerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "async_messaged_handler_errors_total",
			Help: "Total number of failed handler invocations, by action.",
		}, []string{"action"}),
	}
}

// ObserveHandled records a completed handler invocation.
func (m *RouterMetrics) ObserveHandled(action string, duration time.Duration, success bool) {
	m.RequestsRouted.WithLabelValues(action).Inc()
	m.RequestDuration.WithLabelValues(action).Observe(duration.Seconds())
	if !success {
		m.HandlerErrors.WithLabelValues(action).Inc()
	}
}
