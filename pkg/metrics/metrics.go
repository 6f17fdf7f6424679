package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task lifecycle metrics
	TasksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_tasks_submitted_total",
			Help: "Total number of tasks submitted by task type",
		},
		[]string{"task_type"},
	)

	TasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskcore_tasks_total",
			Help: "Number of task records by status",
		},
		[]string{"status"},
	)

	TasksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_tasks_completed_total",
			Help: "Total number of tasks reaching a terminal state by status and task type",
		},
		[]string{"status", "task_type"},
	)

	TaskExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskcore_task_execution_duration_seconds",
			Help:    "Wall-clock duration of one execution attempt",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"task_type"},
	)

	// Dispatch metrics
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_dispatches_total",
			Help: "Total number of task dispatches by transport",
		},
		[]string{"transport"},
	)

	ClaimsWon = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskcore_claims_won_total",
			Help: "Total number of successful RUNNING claims",
		},
	)

	ClaimsLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskcore_claims_lost_total",
			Help: "Total number of claim attempts that lost the version race",
		},
	)

	// Retry metrics
	RetriesScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_retries_scheduled_total",
			Help: "Total number of retries scheduled by error class",
		},
		[]string{"error_class"},
	)

	DeadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_dead_letters_total",
			Help: "Total number of tasks moved to the dead letter state",
		},
		[]string{"task_type"},
	)

	// Rate limiter metrics
	LimiterGrants = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_limiter_grants_total",
			Help: "Total number of granted rate limiter acquisitions by provider and strategy",
		},
		[]string{"provider", "strategy"},
	)

	LimiterDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_limiter_denials_total",
			Help: "Total number of denied rate limiter acquisitions by provider and strategy",
		},
		[]string{"provider", "strategy"},
	)

	LimiterRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskcore_limiter_rate_permits_per_second",
			Help: "Current effective rate of each limiter key",
		},
		[]string{"provider", "strategy"},
	)

	// Sweeper metrics
	SweepsRun = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskcore_sweeps_total",
			Help: "Total number of recovery sweeps executed",
		},
	)

	SweepRequeues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcore_sweep_requeues_total",
			Help: "Total number of tasks re-dispatched by the sweeper by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksSubmitted)
	prometheus.MustRegister(TasksByStatus)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(TaskExecutionDuration)
	prometheus.MustRegister(Dispatches)
	prometheus.MustRegister(ClaimsWon)
	prometheus.MustRegister(ClaimsLost)
	prometheus.MustRegister(RetriesScheduled)
	prometheus.MustRegister(DeadLetters)
	prometheus.MustRegister(LimiterGrants)
	prometheus.MustRegister(LimiterDenials)
	prometheus.MustRegister(LimiterRate)
	prometheus.MustRegister(SweepsRun)
	prometheus.MustRegister(SweepRequeues)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
