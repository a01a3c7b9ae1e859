package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrellis_tasks_submitted_total",
			Help: "Total number of tasks submitted",
		},
		[]string{"app"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrellis_tasks_completed_total",
			Help: "Total number of tasks reaching a terminal state",
		},
		[]string{"app", "state"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobtrellis_task_duration_seconds",
			Help:    "Task run duration in seconds, from app start to finish",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"app"},
	)

	TasksCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrellis_tasks_cancelled_total",
			Help: "Total number of tasks cancelled by cascade from a failed dependency",
		},
		[]string{"app"},
	)

	TaskRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrellis_task_retries_total",
			Help: "Total number of operator-driven task retries",
		},
		[]string{"app"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobtrellis_queue_depth",
			Help: "Current number of tasks in a queue, by state",
		},
		[]string{"queue", "state"},
	)

	// Worker metrics
	ActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobtrellis_active_workers",
			Help: "Current number of worker processes known to be running",
		},
		[]string{"manager_id"},
	)

	WorkerBusyTime = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrellis_worker_busy_seconds_total",
			Help: "Total time a worker spent running apps",
		},
		[]string{"manager_id"},
	)

	// Spawner metrics
	SpawnerLaunches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrellis_spawner_launches_total",
			Help: "Total number of worker launch requests issued by the spawner",
		},
		[]string{"manager_id", "provider"},
	)

	SpawnerPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobtrellis_spawner_poll_duration_seconds",
			Help:    "Time taken to walk all queues and managers in one spawner poll round",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	// Store metrics
	StoreLockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobtrellis_store_lock_wait_seconds",
			Help:    "Time spent retrying a store operation against ErrStoreBusy",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~0.8s
		},
		[]string{"queue"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrellis_store_operation_errors_total",
			Help: "Total number of store operations that returned an error",
		},
		[]string{"queue", "op"},
	)

	// HTTP metrics, for the admin read-only surface
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobtrellis_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrellis_http_requests_total",
			Help: "Total number of HTTP requests served by the admin surface",
		},
		[]string{"method", "path", "status"},
	)
)

// RecordTaskSubmission records a task submission for the named app.
func RecordTaskSubmission(app string) {
	TasksSubmitted.WithLabelValues(app).Inc()
}

// RecordTaskCompletion records a task reaching a terminal state and its run duration.
func RecordTaskCompletion(app, state string, duration float64) {
	TasksCompleted.WithLabelValues(app, state).Inc()
	TaskDuration.WithLabelValues(app).Observe(duration)
}

// RecordTaskCancelled records a task cancelled by cascade.
func RecordTaskCancelled(app string) {
	TasksCancelled.WithLabelValues(app).Inc()
}

// RecordTaskRetry records an operator-driven retry.
func RecordTaskRetry(app string) {
	TaskRetries.WithLabelValues(app).Inc()
}

// SetQueueDepth sets the queue depth gauge for a queue/state pair.
func SetQueueDepth(queue, state string, depth float64) {
	QueueDepth.WithLabelValues(queue, state).Set(depth)
}

// SetActiveWorkers sets the active worker gauge for a manager.
func SetActiveWorkers(managerID string, count float64) {
	ActiveWorkers.WithLabelValues(managerID).Set(count)
}

// RecordWorkerBusyTime records time a worker spent running an app.
func RecordWorkerBusyTime(managerID string, duration float64) {
	WorkerBusyTime.WithLabelValues(managerID).Add(duration)
}

// RecordSpawnerLaunch records one spawn request issued to a provider.
func RecordSpawnerLaunch(managerID, provider string) {
	SpawnerLaunches.WithLabelValues(managerID, provider).Inc()
}

// RecordSpawnerPoll records the wall time of one spawner poll round.
func RecordSpawnerPoll(duration float64) {
	SpawnerPollDuration.Observe(duration)
}

// RecordStoreLockWait records time spent retrying against ErrStoreBusy.
func RecordStoreLockWait(queue string, duration float64) {
	StoreLockWaitDuration.WithLabelValues(queue).Observe(duration)
}

// RecordStoreError records a failed store operation.
func RecordStoreError(queue, op string) {
	StoreOperationErrors.WithLabelValues(queue, op).Inc()
}

// RecordHTTPRequest records one served admin HTTP request.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}
