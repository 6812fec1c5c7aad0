package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processed *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	inFlight  *prometheus.GaugeVec
	queueLag  *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, registry))

	return &WorkerMetrics{
		registry: registry,

		processed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolrank", Subsystem: "worker", Name: "task_process_total",
			Help: "Total processed sync tasks by type and status.",
		}, []string{"type", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolrank", Subsystem: "worker", Name: "task_process_duration_seconds",
			Help:    "Sync task processing duration in seconds by type and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type", "status"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "toolrank", Subsystem: "worker", Name: "task_process_in_flight",
			Help: "Number of in-flight sync tasks by type.",
		}, []string{"type"}),
		queueLag: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolrank", Subsystem: "worker", Name: "queue_lag_seconds",
			Help:    "Delay between task creation and processing start.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"type"}),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartTask(taskType string) {
	m.inFlight.WithLabelValues(taskType).Inc()
}

func (m *WorkerMetrics) FinishTask(taskType string, duration time.Duration, err error) {
	m.inFlight.WithLabelValues(taskType).Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.processed.WithLabelValues(taskType, status).Inc()
	m.latency.WithLabelValues(taskType, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(taskType string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(taskType).Observe(lag.Seconds())
}
