/*
Package sweeper recovers tasks that dispatch and delivery lost track of.

The framework's happy path relies on in-memory machinery - queue slots,
retry timers, running goroutines - none of which survive a crash or a
full queue. The sweeper is the durable backstop: a cron-scheduled scan
of the store that re-drives any record whose in-memory escort has
disappeared. Recovery is possible precisely because every decision was
persisted before the machinery was trusted.

# The Three Sweeps

	RETRYING  NextAttemptAt has passed          -> re-dispatch
	          (the delayed-retry timer was lost with the process)

	RUNNING   no update for longer than the     -> RETRYING with a
	          claim lease                          TIMEOUT charge, or
	          (the executing node died)            DEAD_LETTER if the
	                                               budget is spent

	QUEUED    no update for the orphan grace    -> re-dispatch
	          (the original dispatch was rejected or lost)

Lease expiry is charged against the task's retry budget as an ordinary
TIMEOUT failure - a task that keeps killing its node or keeps stalling
ends up in the dead-letter queue like any other repeat offender, instead
of looping forever.

Every sweep write is optimistic. A record that a live executor touches
between the scan and the write fails its version check and is skipped;
the sweeper never fights a living process, it only inherits from dead
ones.

# Scheduling

The schedule is a cron expression (robfig/cron, "@every 1m" by default).
Start also runs one immediate sweep so a restarting node drains its
backlog before the first tick. Stop waits for an in-flight sweep to
finish.

The sweeper is constructed and owned by the engine and enabled through
config; multi-node deployments run one sweeper per node against the
node's own store.
*/
package sweeper
