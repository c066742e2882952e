package monitoring

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorCounters(t *testing.T) {
	mc := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mc.IncrCounter(PredictionsTotal)
		}()
	}
	wg.Wait()
	mc.IncrCounter(PredictionErrors, "missing_field")
	mc.IncrCounter(PredictionErrors, "missing_field")

	snap := mc.Snapshot()
	assert.Equal(t, int64(50), snap.Counters[PredictionsTotal])
	assert.Equal(t, int64(2), snap.Counters[`prediction_errors_total{kind="missing_field"}`])
	assert.Positive(t, snap.Runtime.Goroutines)
}

func TestMetricsCollectorLatency(t *testing.T) {
	mc := NewMetricsCollector()
	assert.Equal(t, LatencySummary{}, mc.Snapshot().Latency)

	for i := 1; i <= 100; i++ {
		mc.ObserveLatency(time.Duration(i) * time.Millisecond)
	}
	lat := mc.Snapshot().Latency
	assert.Equal(t, 100, lat.Samples)
	assert.InDelta(t, 50.5, lat.MeanMs, 1e-9)
	assert.Equal(t, 50.0, lat.P50Ms)
	assert.Equal(t, 95.0, lat.P95Ms)
	assert.Equal(t, 100.0, lat.MaxMs)
}

func TestMetricsCollectorLatencyWindow(t *testing.T) {
	mc := NewMetricsCollector()
	for i := 0; i < maxLatencySamples; i++ {
		mc.ObserveLatency(time.Millisecond)
	}
	for i := 0; i < 10; i++ {
		mc.ObserveLatency(time.Second)
	}
	lat := mc.Snapshot().Latency
	assert.Equal(t, maxLatencySamples, lat.Samples)
	assert.Equal(t, 1000.0, lat.MaxMs)
}

func TestExportPrometheus(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrCounter(PredictionsTotal)
	mc.IncrCounter(PredictionErrors, "invalid_input")
	mc.ObserveLatency(2 * time.Millisecond)

	out := mc.ExportPrometheus()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "# TYPE scorecast_predictions_total counter\nscorecast_predictions_total 1\n")
	assert.Contains(t, out, `scorecast_prediction_errors_total{kind="invalid_input"} 1`)
	assert.Contains(t, out, "scorecast_prediction_latency_ms_count 1")
	assert.Equal(t, 1, strings.Count(out, "# TYPE scorecast_prediction_errors_total counter"))
}
