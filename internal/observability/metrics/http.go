package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIMetrics carries its own registry; the service name is stamped on every
// series as a constant label.
type APIMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge

	searches      *prometheus.CounterVec
	degraded      *prometheus.CounterVec
	emptySearches *prometheus.CounterVec
	resultCounts  *prometheus.HistogramVec
	searchLatency *prometheus.HistogramVec
	stageLatency  *prometheus.HistogramVec
	skippedStages *prometheus.CounterVec
	fusionMerges  *prometheus.CounterVec
	fusionDupes   *prometheus.CounterVec
}

func NewAPIMetrics(service string) *APIMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, registry))

	return &APIMetrics{
		registry: registry,

		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolrank", Subsystem: "http", Name: "requests_total",
			Help: "Total HTTP requests processed.",
		}, []string{"method", "path", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolrank", Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "toolrank", Subsystem: "http", Name: "in_flight_requests",
			Help: "Number of in-flight HTTP requests.",
		}),

		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolrank", Subsystem: "search", Name: "requests_total",
			Help: "Total completed search requests.",
		}, []string{"endpoint"}),
		degraded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolrank", Subsystem: "search", Name: "degraded_total",
			Help: "Total search requests answered with degraded pipeline stages.",
		}, []string{"endpoint"}),
		emptySearches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolrank", Subsystem: "search", Name: "no_results_total",
			Help: "Total search requests that fused down to zero results.",
		}, []string{"endpoint"}),
		resultCounts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolrank", Subsystem: "search", Name: "results",
			Help:    "Distribution of fused results per search request.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"endpoint"}),
		searchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolrank", Subsystem: "search", Name: "duration_seconds",
			Help: "End-to-end search execution duration in seconds.", Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		stageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolrank", Subsystem: "search", Name: "stage_duration_seconds",
			Help: "Orchestrator stage duration in seconds.", Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		skippedStages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolrank", Subsystem: "search", Name: "stages_skipped_total",
			Help: "Total pipeline stages skipped by the plan optimizer.",
		}, []string{"stage"}),
		fusionMerges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolrank", Subsystem: "fusion", Name: "merges_total",
			Help: "Total fusion passes by dedup strategy.",
		}, []string{"strategy"}),
		fusionDupes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolrank", Subsystem: "fusion", Name: "duplicates_removed_total",
			Help: "Total duplicate results collapsed during fusion.",
		}, []string{"strategy"}),
	}
}

func (m *APIMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *APIMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		rec := &responseStatus{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		path := normalizePath(r.URL.Path)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(rec.code)).Inc()
		m.latency.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses resource IDs; raw paths would explode label cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/tools/") && strings.HasSuffix(path, "/datasheet"):
		return "/v1/tools/{tool_id}/datasheet"
	case strings.HasPrefix(path, "/v1/tools/"):
		return "/v1/tools/{tool_id}"
	case strings.HasPrefix(path, "/v1/tasks/"):
		return "/v1/tasks/{task_id}"
	default:
		return path
	}
}

func (m *APIMetrics) RecordSearchObservation(endpoint string, resultCount int, degraded bool, duration time.Duration) {
	m.searches.WithLabelValues(endpoint).Inc()
	m.resultCounts.WithLabelValues(endpoint).Observe(float64(resultCount))
	m.searchLatency.WithLabelValues(endpoint).Observe(duration.Seconds())

	if degraded {
		m.degraded.WithLabelValues(endpoint).Inc()
	}
	if resultCount == 0 {
		m.emptySearches.WithLabelValues(endpoint).Inc()
	}
}

func (m *APIMetrics) RecordSearchStage(stage string, duration time.Duration) {
	if stage == "" {
		stage = "unknown"
	}
	m.stageLatency.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *APIMetrics) RecordSkippedStage(stage string) {
	if stage == "" {
		return
	}
	m.skippedStages.WithLabelValues(stage).Inc()
}

func (m *APIMetrics) RecordFusion(strategy string, duplicatesRemoved int) {
	if strategy == "" {
		strategy = "unknown"
	}
	m.fusionMerges.WithLabelValues(strategy).Inc()
	if duplicatesRemoved > 0 {
		m.fusionDupes.WithLabelValues(strategy).Add(float64(duplicatesRemoved))
	}
}

type responseStatus struct {
	http.ResponseWriter
	code int
}

func (w *responseStatus) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseStatus) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
