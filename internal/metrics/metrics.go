package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationLoad records payload reads.
	CacheOperationLoad CacheOperation = "load"
	// CacheOperationSave records payload writes.
	CacheOperationSave CacheOperation = "save"
	// CacheOperationRemove records single-slot removals.
	CacheOperationRemove CacheOperation = "remove"
	// CacheOperationClear records bulk invalidation.
	CacheOperationClear CacheOperation = "clear"
)

// CacheResult captures how a cache operation ended.
type CacheResult string

const (
	// CacheResultHit indicates a load decoded a stored payload.
	CacheResultHit CacheResult = "hit"
	// CacheResultMiss indicates no payload was stored for the key.
	CacheResultMiss CacheResult = "miss"
	// CacheResultOK indicates a write, remove or clear completed.
	CacheResultOK CacheResult = "ok"
	// CacheResultError indicates storage or encoding failed.
	CacheResultError CacheResult = "error"
)

// FetchSource reports where the data layer satisfied a request from.
type FetchSource string

const (
	// FetchSourceCache means a fresh cached payload was returned.
	FetchSourceCache FetchSource = "cache"
	// FetchSourceNetwork means the remote backend was called.
	FetchSourceNetwork FetchSource = "network"
	// FetchSourceStale means the backend failed and a stale payload was served.
	FetchSourceStale FetchSource = "stale"
	// FetchSourceError means neither the backend nor the cache could answer.
	FetchSourceError FetchSource = "error"
)

// Recorder publishes Prometheus metrics for cache activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
	freshness       *prometheus.CounterVec
	fetches         *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dreamcache",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache store operations by result.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dreamcache",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for cache store operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "result"})

	freshness := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dreamcache",
		Subsystem: "cache",
		Name:      "freshness_total",
		Help:      "Staleness evaluations by TTL tier.",
	}, []string{"tier", "result"})

	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dreamcache",
		Subsystem: "fetch",
		Name:      "requests_total",
		Help:      "Read-through requests by payload kind and source.",
	}, []string{"key_kind", "source"})

	reg.MustRegister(cacheOperations, cacheLatency, freshness, fetches)

	return &Recorder{
		gatherer:        reg,
		handler:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		cacheOperations: cacheOperations,
		cacheLatency:    cacheLatency,
		freshness:       freshness,
		fetches:         fetches,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveCache records the result and latency of a cache store operation.
func (r *Recorder) ObserveCache(operation CacheOperation, result CacheResult, duration time.Duration) {
	if r == nil {
		return
	}
	opLabel := normalizeLabel(string(operation))
	resLabel := normalizeLabel(string(result))
	r.cacheOperations.WithLabelValues(opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(opLabel, resLabel).Observe(duration.Seconds())
}

// ObserveFreshness records one staleness evaluation for the tier.
func (r *Recorder) ObserveFreshness(tier string, stale bool) {
	if r == nil {
		return
	}
	result := "fresh"
	if stale {
		result = "stale"
	}
	r.freshness.WithLabelValues(normalizeLabel(tier), result).Inc()
}

// ObserveFetch records where a read-through request was answered from.
func (r *Recorder) ObserveFetch(keyKind string, source FetchSource) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(normalizeLabel(keyKind), normalizeLabel(string(source))).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
