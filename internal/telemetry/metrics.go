package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "worker_jobs_enqueued_total", Help: "Jobs accepted by the queue"}, []string{"type"})
	JobsCompleted    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "worker_jobs_completed_total", Help: "Jobs completed successfully"}, []string{"type"})
	JobsFailed       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "worker_jobs_failed_total", Help: "Jobs that ended failed"}, []string{"type"})
	JobDuration      = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "worker_job_duration_seconds", Help: "Time from dequeue to terminal status", Buckets: prometheus.ExponentialBuckets(1, 2, 12)}, []string{"type"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "worker_queue_depth", Help: "Jobs waiting to be picked up"})
	ProcessingGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "worker_jobs_processing", Help: "Jobs currently processing"})
	AnalysisRetries  = prometheus.NewCounter(prometheus.CounterOpts{Name: "worker_analysis_retries_total", Help: "Analysis calls retried after rate limiting"})
	Handshakes       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "worker_handshakes_total", Help: "Sign-in handshakes by terminal state"}, []string{"state"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "worker_rate_limit_rejects_total", Help: "API requests rejected by rate limiter"})
	CleanupRemoved   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "worker_cleanup_removed_total", Help: "Records removed by the periodic sweep"}, []string{"sweep"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsCompleted,
			JobsFailed,
			JobDuration,
			QueueDepthGauge,
			ProcessingGauge,
			AnalysisRetries,
			Handshakes,
			RateLimitRejects,
			CleanupRemoved,
		)
	})
	return promhttp.Handler()
}
