// Package metrics provides Prometheus metrics for the ops task runner.
// Every silent-degradation point in the system increments BackendErrors so
// backend trouble stays visible even though it is never surfaced to
// callers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vmeassist/opsd/internal/task"
)

var (
	TasksSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsd_tasks_submitted_total",
			Help: "Total number of tasks submitted through the ops API",
		},
	)
	TasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsd_tasks_finished_total",
			Help: "Total number of tasks that reached a terminal status",
		},
		[]string{"status"},
	)
	TasksCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsd_tasks_cancelled_total",
			Help: "Total number of advisory cancel requests",
		},
	)
	TaskEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsd_task_events_total",
			Help: "Total number of task events emitted",
		},
		[]string{"kind"},
	)
	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsd_backend_errors_total",
			Help: "Total number of swallowed persistent-backend errors",
		},
		[]string{"op"},
	)
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsd_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)
	TasksByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opsd_tasks_by_status",
			Help: "Current number of known tasks by status",
		},
		[]string{"status"},
	)
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsd_queue_depth",
			Help: "Current depth of the task queue",
		},
	)
	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsd_sse_streams_active",
			Help: "Number of currently open SSE streams",
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordTaskFinished(status task.Status, duration time.Duration) {
	TasksFinished.WithLabelValues(string(status)).Inc()
	TaskDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

func UpdateTaskGauges(tasksByStatus map[task.Status]int) {
	TasksByStatus.Reset()
	for status, count := range tasksByStatus {
		TasksByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
}

func UpdateQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
