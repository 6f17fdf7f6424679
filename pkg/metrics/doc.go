/*
Package metrics defines taskcore's Prometheus instrumentation.

All collectors are registered at init on the default registry and
exported through Handler for the /metrics endpoint. Counters cover the
task lifecycle (submitted, completed, failed, retried, cancelled, dead
lettered) labelled by task type; claim wins and losses expose how often
duplicate deliveries race; rate-limiter metrics count grants and denials
per provider and strategy; histograms track execution duration per task
type; sweep runs count recovery activity.

Components record metrics inline at the point the event happens - there
is no polling collector layer. The package is import-and-use:

	metrics.TasksCompleted.WithLabelValues(taskType).Inc()

	mux.Handle("/metrics", metrics.Handler())
*/
package metrics
