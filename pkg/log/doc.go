/*
Package log provides structured logging for taskcore built on zerolog.

Init configures the global logger once at startup - level and JSON or
console output - and everything else derives from it. Components log
through scoped child loggers rather than the bare global:

	WithComponent("sweeper")            component-tagged
	WithTask(taskID, taskType)          execution-path logs
	WithProvider(provider, model, user) rate-limiter and client logs
	WithStrategy(name)                  limiter strategy decisions

The tags are the contract: every log line on the execution path carries
its task ID, so one task's history is a single filter away in any log
aggregator. The package-level Info/Warn/Error helpers exist for code
with no better scope, mostly main.

The Watermill adapter bridges the message broker's logging interface
onto zerolog so transport internals land in the same stream with the
same fields.
*/
package log
