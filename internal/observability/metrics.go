package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus instrumentation. All methods are
// nil-receiver safe so instrumentation stays optional in tests.
type Metrics struct {
	registry *prometheus.Registry

	spinsTotal        *prometheus.CounterVec
	spinDuration      prometheus.Histogram
	stepDuration      *prometheus.HistogramVec
	refundEscalations prometheus.Counter
	rateLimitWaits    prometheus.Counter
	rateLimitWaitSec  prometheus.Counter
	wsConnections     prometheus.Gauge
}

// NewMetrics registers the service's collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		spinsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spindle",
			Name:      "spins_total",
			Help:      "Spins finished, labeled by terminal saga state.",
		}, []string{"state"}),
		spinDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spindle",
			Name:      "spin_duration_seconds",
			Help:      "End to end spin latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spindle",
			Name:      "saga_step_duration_seconds",
			Help:      "Latency of individual saga steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		refundEscalations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spindle",
			Name:      "refund_escalations_total",
			Help:      "Refunds that exhausted one retry pass and were escalated.",
		}),
		rateLimitWaits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spindle",
			Name:      "rate_limit_waits_total",
			Help:      "Requests that waited on the submission rate limiter.",
		}),
		rateLimitWaitSec: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spindle",
			Name:      "rate_limit_wait_seconds_total",
			Help:      "Total time spent waiting on the submission rate limiter.",
		}),
		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "spindle",
			Name:      "websocket_connections",
			Help:      "Currently open websocket connections.",
		}),
	}
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SpinFinished records a spin reaching a terminal state.
func (m *Metrics) SpinFinished(state string) {
	if m == nil {
		return
	}
	m.spinsTotal.WithLabelValues(state).Inc()
}

// ObserveSpin records end to end spin latency.
func (m *Metrics) ObserveSpin(d time.Duration) {
	if m == nil {
		return
	}
	m.spinDuration.Observe(d.Seconds())
}

// ObserveStep records one saga step's latency.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RefundEscalated counts a refund handed to the escalation path.
func (m *Metrics) RefundEscalated() {
	if m == nil {
		return
	}
	m.refundEscalations.Inc()
}

// RateLimitWait records one wait on the submission rate limiter.
func (m *Metrics) RateLimitWait(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.rateLimitWaits.Inc()
	m.rateLimitWaitSec.Add(d.Seconds())
}

// WSConnected and WSDisconnected track the websocket connection gauge.
func (m *Metrics) WSConnected() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) WSDisconnected() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}
