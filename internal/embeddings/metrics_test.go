package embeddings

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordGeneration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordGeneration(0.1, nil)
	m.RecordGeneration(0.05, nil)
	m.RecordGeneration(0.025, errors.New("generation failed"))

	families, err := reg.Gather()
	require.NoError(t, err)

	var histCount uint64
	var errCount float64
	for _, fam := range families {
		switch fam.GetName() {
		case "engrama_embedding_generation_duration_seconds":
			for _, metric := range fam.GetMetric() {
				histCount += metric.GetHistogram().GetSampleCount()
			}
		case "engrama_embedding_errors_total":
			for _, metric := range fam.GetMetric() {
				errCount += metric.GetCounter().GetValue()
			}
		}
	}

	require.Equal(t, uint64(3), histCount)
	require.Equal(t, float64(1), errCount)
}

func TestMetrics_NilRegistryIsSafe(t *testing.T) {
	m := NewMetrics(nil)
	require.NotPanics(t, func() {
		m.RecordGeneration(0.01, nil)
	})
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordGeneration(0.01, nil)
	})
}
