// Package metrics provides Prometheus collectors for the storefront.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hkloudou/storefront/internal/prefetch"
)

const namespace = "storefront"

// Default histogram buckets for latency metrics (in seconds)
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// Metrics holds every storefront collector
type Metrics struct {
	Prefetch *PrefetchMetrics
	Failures *FailureReporter
	HTTP     *HTTPMetrics
}

// New creates and registers all collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Prefetch: NewPrefetchMetrics(reg),
		Failures: NewFailureReporter(reg),
		HTTP:     NewHTTPMetrics(reg),
	}
}

// PrefetchMetrics implements prefetch.Metrics
type PrefetchMetrics struct {
	started  prometheus.Counter
	skipped  *prometheus.CounterVec
	settled  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrefetchMetrics creates and registers prefetch collectors on reg
func NewPrefetchMetrics(reg prometheus.Registerer) *PrefetchMetrics {
	m := &PrefetchMetrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "started_total",
			Help:      "Prefetch fetches started.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "skipped_total",
			Help:      "Prefetch calls that did not start a fetch.",
		}, []string{"reason"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "settled_total",
			Help:      "Prefetch fetches by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "duration_seconds",
			Help:      "Prefetch fetch latency.",
			Buckets:   defaultBuckets,
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.started, m.skipped, m.settled, m.duration)
	return m
}

func (m *PrefetchMetrics) Started() {
	m.started.Inc()
}

func (m *PrefetchMetrics) Skipped(reason prefetch.SkipReason) {
	m.skipped.WithLabelValues(reason.String()).Inc()
}

func (m *PrefetchMetrics) Settled(outcome prefetch.Outcome, elapsed time.Duration) {
	m.settled.WithLabelValues(outcome.String()).Inc()
	m.duration.WithLabelValues(outcome.String()).Observe(elapsed.Seconds())
}

var _ prefetch.Metrics = (*PrefetchMetrics)(nil)

// FailureReporter implements prefetch.Reporter, counting failures by kind:
// timeout, canceled or error.
type FailureReporter struct {
	failures *prometheus.CounterVec
}

// NewFailureReporter creates and registers the failure counter on reg
func NewFailureReporter(reg prometheus.Registerer) *FailureReporter {
	r := &FailureReporter{
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "failures_total",
			Help:      "Reported prefetch failures by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(r.failures)
	return r
}

func (r *FailureReporter) ReportPrefetchFailure(key string, err error) {
	r.failures.WithLabelValues(failureKind(err)).Inc()
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

var _ prefetch.Reporter = (*FailureReporter)(nil)

// HTTPMetrics records API requests
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates and registers HTTP collectors on reg
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   defaultBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// Observe records one finished request
func (m *HTTPMetrics) Observe(route string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}
