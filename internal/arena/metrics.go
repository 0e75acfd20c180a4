package arena

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements MetricsRecorder on top of a prometheus
// registry: per-operation latency histogram, outcome counters, and a gauge
// for the write-behind backlog.
type PrometheusMetrics struct {
	durations *prometheus.HistogramVec
	outcomes  *prometheus.CounterVec
	pending   prometheus.Gauge
}

var (
	_ MetricsRecorder = (*PrometheusMetrics)(nil)
	_ PendingReporter = (*PrometheusMetrics)(nil)
)

// NewPrometheusMetrics constructs and registers the service collectors. A nil
// registerer falls back to the default registry.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rankmine",
			Subsystem: "arena",
			Name:      "operation_duration_seconds",
			Help:      "Latency of arena service operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rankmine",
			Subsystem: "arena",
			Name:      "operations_total",
			Help:      "Arena service operations by outcome.",
		}, []string{"operation", "status"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rankmine",
			Subsystem: "arena",
			Name:      "pending_entries",
			Help:      "Entries waiting in the write-behind scheduler.",
		}),
	}
	for _, c := range []prometheus.Collector{m.durations, m.outcomes, m.pending} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe records one operation outcome.
func (m *PrometheusMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	m.durations.WithLabelValues(operation).Observe(duration.Seconds())
	m.outcomes.WithLabelValues(operation, status).Inc()
}

// SetPendingEntries reports the current write-behind backlog size.
func (m *PrometheusMetrics) SetPendingEntries(n int) {
	m.pending.Set(float64(n))
}
