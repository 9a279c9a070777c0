package report

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Launch modes, used as the mode label.
const (
	ModeIntercepted = "intercepted"
	ModePassthrough = "passthrough"
)

// Metrics are counters over launches. Every value can be explained by
// looking at the launches that produced it.
type Metrics struct {
	registry *prometheus.Registry

	Launches    *prometheus.CounterVec // mode
	Failures    *prometheus.CounterVec // stage
	Exits       *prometheus.CounterVec // reason, code
	MediumBytes prometheus.Histogram
	Duration    prometheus.Histogram
}

// NewMetrics creates a metric set on its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spree",
			Name:      "launches_total",
			Help:      "Launch requests by mode.",
		}, []string{"mode"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spree",
			Name:      "launch_failures_total",
			Help:      "Launch requests that failed before the child started, by stage.",
		}, []string{"stage"}),
		Exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spree",
			Name:      "child_exits_total",
			Help:      "Children that exited, by exit reason and code.",
		}, []string{"reason", "code"}),
		MediumBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spree",
			Name:      "medium_bytes",
			Help:      "Size of the envelope written to the transfer medium.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spree",
			Name:      "child_duration_seconds",
			Help:      "Wall time of launched children.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(m.Launches, m.Failures, m.Exits, m.MediumBytes, m.Duration)
	return m
}

var globalMetrics = NewMetrics()

// Global returns global metrics instance
func Global() *Metrics {
	return globalMetrics
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrLaunch counts a launch request in mode.
func (m *Metrics) IncrLaunch(mode string) {
	m.Launches.WithLabelValues(mode).Inc()
}

// IncrFailure counts a launch that failed at stage.
func (m *Metrics) IncrFailure(stage string) {
	m.Failures.WithLabelValues(stage).Inc()
}

// ObserveMedium records the size of a written medium.
func (m *Metrics) ObserveMedium(size int64) {
	m.MediumBytes.Observe(float64(size))
}

// RecordResult updates the exit counters from a finished launch.
func (m *Metrics) RecordResult(r *Result) {
	m.Exits.WithLabelValues(r.ExitReason, strconv.Itoa(r.ExitCode)).Inc()
	m.Duration.Observe(r.Duration.Seconds())
}
