package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for sandbox executions. All
// methods are nil-receiver safe so callers can wire metrics optionally.
type Metrics struct {
	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram

	// Error metrics, labelled by classified kind
	ErrorsTotal *prometheus.CounterVec

	// Runtime lifecycle
	RuntimesActive prometheus.Gauge
}

// NewMetrics creates a metrics collector registered against reg. A nil
// reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_executions_total",
				Help: "Total number of script executions",
			},
			[]string{"status"},
		),
		ExecutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sandbox_execution_duration_seconds",
				Help:    "Script execution duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_errors_total",
				Help: "Total number of classified sandbox failures",
			},
			[]string{"kind"},
		),
		RuntimesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_runtimes_active",
				Help: "Number of open sandbox runtimes",
			},
		),
	}
}

// ObserveExecution records one completed execution.
func (m *Metrics) ObserveExecution(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionDuration.Observe(duration.Seconds())
}

// RecordError records one classified failure.
func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// RuntimeOpened increments the active runtime gauge.
func (m *Metrics) RuntimeOpened() {
	if m == nil {
		return
	}
	m.RuntimesActive.Inc()
}

// RuntimeClosed decrements the active runtime gauge.
func (m *Metrics) RuntimeClosed() {
	if m == nil {
		return
	}
	m.RuntimesActive.Dec()
}
