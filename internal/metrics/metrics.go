package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the artist cache method being instrumented.
type CacheOperation string

const (
	CacheOperationGet    CacheOperation = "get"
	CacheOperationSet    CacheOperation = "set"
	CacheOperationDelete CacheOperation = "delete"
)

// CacheResult captures the result of a cache operation.
type CacheResult string

const (
	// CacheResultHit indicates a get returned an unexpired entry.
	CacheResultHit CacheResult = "hit"
	// CacheResultMiss indicates a get found nothing.
	CacheResultMiss CacheResult = "miss"
	// CacheResultOK indicates a set or delete completed.
	CacheResultOK CacheResult = "ok"
	// CacheResultError indicates the backend failed.
	CacheResultError CacheResult = "error"
)

// UpstreamOperation identifies the provider call being instrumented.
type UpstreamOperation string

const (
	UpstreamResolveArtist UpstreamOperation = "resolve_artist"
	UpstreamFetchTracks   UpstreamOperation = "fetch_tracks"
)

// Recorder publishes Prometheus metrics for top-track fulfillment.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec

	transactions *prometheus.CounterVec
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

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toptracks",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total top-tracks requests by outcome and cache status.",
	}, []string{"outcome", "cache_status", "status_code"})

	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "toptracks",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed top-tracks requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toptracks",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Artist cache operations.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "toptracks",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for artist cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "result"})

	upstreamRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toptracks",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Calls made to the metadata provider.",
	}, []string{"operation", "result"})

	upstreamLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "toptracks",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for metadata provider calls.",
		Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"operation", "result"})

	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toptracks",
		Subsystem: "transactions",
		Name:      "appended_total",
		Help:      "Audit transactions appended to the transaction log.",
	}, []string{"backend", "result"})

	reg.MustRegister(requests, requestLatency, cacheOperations, cacheLatency, upstreamRequests, upstreamLatency, transactions)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:         reg,
		handler:          handler,
		requests:         requests,
		requestLatency:   requestLatency,
		cacheOperations:  cacheOperations,
		cacheLatency:     cacheLatency,
		upstreamRequests: upstreamRequests,
		upstreamLatency:  upstreamLatency,
		transactions:     transactions,
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

// ObserveRequest records the outcome and latency of a top-tracks request.
func (r *Recorder) ObserveRequest(outcome, cacheStatus string, statusCode int, duration time.Duration) {
	if r == nil {
		return
	}
	outcomeLabel := normalizeLabel(outcome)
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	r.requests.WithLabelValues(outcomeLabel, normalizeLabel(cacheStatus), statusLabel).Inc()
	r.requestLatency.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

// ObserveCache records one artist cache operation.
func (r *Recorder) ObserveCache(operation CacheOperation, result CacheResult, duration time.Duration) {
	if r == nil {
		return
	}
	opLabel := normalizeLabel(string(operation))
	resLabel := normalizeLabel(string(result))
	r.cacheOperations.WithLabelValues(opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(opLabel, resLabel).Observe(duration.Seconds())
}

// ObserveUpstream records one provider call; failed is true when it errored.
func (r *Recorder) ObserveUpstream(operation UpstreamOperation, failed bool, duration time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	opLabel := normalizeLabel(string(operation))
	r.upstreamRequests.WithLabelValues(opLabel, result).Inc()
	r.upstreamLatency.WithLabelValues(opLabel, result).Observe(duration.Seconds())
}

// ObserveTransaction counts a transaction log append attempt against the named backend.
func (r *Recorder) ObserveTransaction(backend string, failed bool) {
	if r == nil {
		return
	}
	result := "appended"
	if failed {
		result = "error"
	}
	r.transactions.WithLabelValues(normalizeLabel(backend), result).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
