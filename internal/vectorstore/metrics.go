package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments QdrantStore operations. A nil *Metrics is safe
// to call methods on.
type Metrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewMetrics registers vectorstore metrics against reg. A nil registry
// yields a Metrics that still works but records nothing visible.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "engrama",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engrama",
			Subsystem: "vectorstore",
			Name:      "operation_errors_total",
			Help:      "Count of failed vector store operations by kind.",
		}, []string{"op"}),
	}
}

// RecordOp records the outcome of a single operation of the given kind.
func (m *Metrics) RecordOp(op string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(seconds)
	if err != nil {
		m.errors.WithLabelValues(op).Inc()
	}
}
