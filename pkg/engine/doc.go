/*
Package engine assembles and runs the task execution framework.

The engine is the composition root: it builds the store, transport,
executor, retry manager, rate limiter, event broker and recovery sweeper
from one Config, owns their start/stop order, and exposes the small
surface the application actually uses - Submit, Cancel, Get, and event
subscriptions.

# Architecture

	┌─────────────────────────── ENGINE ───────────────────────────┐
	│                                                               │
	│  Submit ──► validate ──► Create(QUEUED) ──► Dispatch          │
	│                                                               │
	│  ┌───────────┐   ┌────────────┐   ┌───────────┐               │
	│  │ Transport │──►│  Executor  │──►│ BoltStore │               │
	│  │ inproc /  │   │ claim, run │   │ records + │               │
	│  │ broker    │   │ route      │   │ versions  │               │
	│  └───────────┘   └─────┬──────┘   └───────────┘               │
	│        ▲               │                                      │
	│        │         ┌─────▼──────┐   ┌───────────┐               │
	│  ┌─────┴─────┐   │ RetryMgr   │   │  Events   │──► subscribers│
	│  │  Sweeper  │   │ backoff    │   │  broker   │               │
	│  │ cron scan │   │ tables     │   └───────────┘               │
	│  └───────────┘   └────────────┘                               │
	│                                                               │
	│  RateLimit Manager ──► handed to provider clients             │
	└───────────────────────────────────────────────────────────────┘

Start order is broker, transport, sweeper; Stop reverses it and closes
the store last. Stop is idempotent.

# Submission

Submit validates the task type against the registry and the parameters
against the executable, persists the record as QUEUED, counts it on the
parent's sub-task summary when one is named, publishes a queued event,
and hands the record to the transport. Submission is complete when the
record is durable - a dispatch failure (full queue, stopping transport)
is only a warning, because the recovery sweeper re-dispatches orphaned
QUEUED records. Callers get a task ID back before any execution starts.

# Cancellation

Cancel resolves three cases:

  - QUEUED or RETRYING: cancelled immediately by optimistic write,
    retried a few times under racing transitions. The record never runs.
  - RUNNING: only if the executable implements Cancellable. The executor
    is signalled, the executable's Cancel hook runs, and the task's own
    cancelled outcome finishes the record.
  - terminal: an error naming the status it already reached.

# Configuration

Engine behavior comes from config.Config: transport selection (inproc
or broker), worker count, queue capacity, claim lease, retry tables,
sweeper schedule and provider rate-limit settings. Options exist for
tests to inject a store or transport; production wiring uses the config
alone.

# Usage

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	eng, err := engine.New(*cfg)
	if err != nil {
		return err
	}
	eng.MustRegister(task.Echo{})
	if err := eng.Start(); err != nil {
		return err
	}
	defer eng.Stop()

	id, err := eng.Submit("echo", "user-1", params)
*/
package engine
