// Package metrics provides Prometheus metrics for monitoring the diagnosis
// dispatch engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandlens_tasks_dispatched_total",
			Help: "Total number of tasks dispatched to AI platforms",
		},
		[]string{"platform"},
	)
	TasksSucceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandlens_tasks_succeeded_total",
			Help: "Total number of tasks that completed successfully",
		},
		[]string{"platform"},
	)
	TasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandlens_tasks_failed_total",
			Help: "Total number of tasks that failed or timed out",
		},
		[]string{"platform"},
	)
	TasksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandlens_tasks_skipped_total",
			Help: "Total number of tasks skipped because a circuit was open",
		},
		[]string{"platform"},
	)
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandlens_task_duration_seconds",
			Help:    "Per-task platform call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60, 90},
		},
		[]string{"platform", "status"},
	)
	BatchTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brandlens_batch_timeouts_total",
			Help: "Total number of batches that hit the global deadline",
		},
	)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brandlens_breaker_state",
			Help: "Circuit breaker state per platform (0=closed, 1=half_open, 2=open)",
		},
		[]string{"platform"},
	)
	ExecutionsByStage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brandlens_executions_by_stage",
			Help: "Current number of tracked executions per lifecycle stage",
		},
		[]string{"stage"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandlens_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandlens_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordTaskDispatched(platform string) {
	TasksDispatched.WithLabelValues(platform).Inc()
}

func RecordTaskSucceeded(platform string, duration time.Duration) {
	TasksSucceeded.WithLabelValues(platform).Inc()
	TaskDuration.WithLabelValues(platform, "success").Observe(duration.Seconds())
}

func RecordTaskFailed(platform string, duration time.Duration) {
	TasksFailed.WithLabelValues(platform).Inc()
	TaskDuration.WithLabelValues(platform, "failed").Observe(duration.Seconds())
}

func RecordTaskSkipped(platform string) {
	TasksSkipped.WithLabelValues(platform).Inc()
}

func RecordBatchTimeout() {
	BatchTimeouts.Inc()
}

func UpdateBreakerState(platform string, state string) {
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	BreakerState.WithLabelValues(platform).Set(v)
}

func UpdateExecutionsByStage(byStage map[string]int) {
	ExecutionsByStage.Reset()
	for stage, count := range byStage {
		ExecutionsByStage.WithLabelValues(stage).Set(float64(count))
	}
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
