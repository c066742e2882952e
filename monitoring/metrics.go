// Package monitoring keeps in-process counters and latency samples for the
// prediction service.
package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

const maxLatencySamples = 1000

// Counter names recorded by the HTTP layer.
const (
	PredictionsTotal  = "predictions_total"
	PredictionErrors  = "prediction_errors_total"
	CacheHits         = "prediction_cache_hits_total"
	CacheMisses       = "prediction_cache_misses_total"
	StreamConnections = "stream_connections_total"
)

// MetricsCollector is safe for concurrent use.
type MetricsCollector struct {
	mu        sync.RWMutex
	counters  map[string]int64
	latencies []float64
	next      int
	startTime time.Time
}

// NewMetricsCollector starts the uptime clock.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:  make(map[string]int64),
		latencies: make([]float64, 0, maxLatencySamples),
		startTime: time.Now(),
	}
}

// IncrCounter adds one to name, optionally qualified by a label value such as
// an error kind: IncrCounter(PredictionErrors, "missing_field").
func (mc *MetricsCollector) IncrCounter(name string, label ...string) {
	key := name
	if len(label) > 0 && label[0] != "" {
		key = fmt.Sprintf(`%s{kind="%s"}`, name, label[0])
	}
	mc.mu.Lock()
	mc.counters[key]++
	mc.mu.Unlock()
}

// ObserveLatency keeps the most recent samples, overwriting the oldest.
func (mc *MetricsCollector) ObserveLatency(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if len(mc.latencies) < maxLatencySamples {
		mc.latencies = append(mc.latencies, ms)
		return
	}
	mc.latencies[mc.next] = ms
	mc.next = (mc.next + 1) % maxLatencySamples
}

// LatencySummary describes the recent prediction latency window in milliseconds.
type LatencySummary struct {
	Samples int     `json:"samples"`
	MeanMs  float64 `json:"mean_ms"`
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
	MaxMs   float64 `json:"max_ms"`
}

// RuntimeStats is a sample of the Go runtime.
type RuntimeStats struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc_bytes"`
	HeapSys    uint64 `json:"heap_sys_bytes"`
	NumGC      uint32 `json:"gc_count"`
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Uptime   string           `json:"uptime"`
	Counters map[string]int64 `json:"counters"`
	Latency  LatencySummary   `json:"latency"`
	Runtime  RuntimeStats     `json:"runtime"`
}

// Snapshot copies the current counters and summarizes the latency window.
func (mc *MetricsCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	counters := make(map[string]int64, len(mc.counters))
	for k, v := range mc.counters {
		counters[k] = v
	}
	samples := append([]float64(nil), mc.latencies...)
	mc.mu.RUnlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Snapshot{
		Uptime:   time.Since(mc.startTime).Round(time.Second).String(),
		Counters: counters,
		Latency:  summarize(samples),
		Runtime: RuntimeStats{
			Goroutines: runtime.NumGoroutine(),
			HeapAlloc:  m.HeapAlloc,
			HeapSys:    m.HeapSys,
			NumGC:      m.NumGC,
		},
	}
}

func summarize(samples []float64) LatencySummary {
	if len(samples) == 0 {
		return LatencySummary{}
	}
	sort.Float64s(samples)
	return LatencySummary{
		Samples: len(samples),
		MeanMs:  stat.Mean(samples, nil),
		P50Ms:   stat.Quantile(0.5, stat.Empirical, samples, nil),
		P95Ms:   stat.Quantile(0.95, stat.Empirical, samples, nil),
		MaxMs:   samples[len(samples)-1],
	}
}

// ExportPrometheus renders the snapshot in the Prometheus text format.
func (mc *MetricsCollector) ExportPrometheus() string {
	snap := mc.Snapshot()

	names := make([]string, 0, len(snap.Counters))
	for name := range snap.Counters {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	typed := make(map[string]bool)
	for _, name := range names {
		base, _, _ := strings.Cut(name, "{")
		if !typed[base] {
			fmt.Fprintf(&b, "# TYPE scorecast_%s counter\n", base)
			typed[base] = true
		}
		fmt.Fprintf(&b, "scorecast_%s %d\n", name, snap.Counters[name])
	}
	fmt.Fprintf(&b, "# TYPE scorecast_prediction_latency_ms summary\n")
	fmt.Fprintf(&b, "scorecast_prediction_latency_ms{quantile=\"0.5\"} %g\n", snap.Latency.P50Ms)
	fmt.Fprintf(&b, "scorecast_prediction_latency_ms{quantile=\"0.95\"} %g\n", snap.Latency.P95Ms)
	fmt.Fprintf(&b, "scorecast_prediction_latency_ms_count %d\n", snap.Latency.Samples)
	fmt.Fprintf(&b, "# TYPE scorecast_goroutines gauge\nscorecast_goroutines %d\n", snap.Runtime.Goroutines)
	fmt.Fprintf(&b, "# TYPE scorecast_heap_alloc_bytes gauge\nscorecast_heap_alloc_bytes %d\n", snap.Runtime.HeapAlloc)
	return b.String()
}
