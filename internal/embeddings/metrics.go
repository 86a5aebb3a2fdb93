// Package embeddings provides embedding generation with metrics instrumentation.
package embeddings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all embedding-related metrics.
type Metrics struct {
	duration prometheus.Histogram
	errors   prometheus.Counter
}

// NewMetrics creates a new Metrics instance for embeddings, registering its
// collectors with reg. A nil registry yields a Metrics that records into
// unregistered collectors, useful for tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "engrama",
			Subsystem: "embedding",
			Name:      "generation_duration_seconds",
			Help:      "Duration of a single encode() call to the embedding service.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "engrama",
			Subsystem: "embedding",
			Name:      "errors_total",
			Help:      "Total embedding generation failures.",
		}),
	}
}

// RecordGeneration records the outcome of a single encode call.
func (m *Metrics) RecordGeneration(seconds float64, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
	if err != nil {
		m.errors.Inc()
	}
}
