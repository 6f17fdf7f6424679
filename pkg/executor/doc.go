/*
Package executor runs claimed tasks and routes their outcomes.

The executor is the consuming end of the dispatch pipeline. A transport
delivers Dispatch envelopes to Executor.Handle, which claims the record,
runs the registered executable, and translates the resulting Outcome
into exactly one terminal or retrying store transition. Everything the
framework promises about exactly-once effect, duplicate tolerance and
crash recovery converges in this package.

# Execution Flow

	transport delivery
	        │
	        ▼
	┌──────────────────────────────────────────────────────────┐
	│ 1. Load record                                           │
	│ 2. RETRYING?  requeue (RETRYING -> QUEUED) first         │
	│ 3. Not QUEUED?  drop - duplicate or stale delivery       │
	│ 4. Claim: CAS QUEUED -> RUNNING with expected version    │
	│      lost the race -> drop silently                      │
	│ 5. Resolve executable; validate parameters               │
	│ 6. Execute under a cancellable per-task context          │
	│      (panics recovered into INTERNAL_ERROR outcomes)     │
	│ 7. Route the outcome                                     │
	└──────────────────────────────────────────────────────────┘

	                      Outcome routing
	        ┌──────────────┬─────────────────┬────────────┐
	        ▼              ▼                 ▼            ▼
	    success       retryable          cancelled      fatal
	        │          failure               │            │
	        ▼              │                 ▼            ▼
	  COMPLETED or         │             CANCELLED     FAILED
	  COMPLETED_WITH_      ▼
	  ERRORS          retry budget left?
	                   yes: RETRYING + delayed redispatch
	                   no:  DEAD_LETTER

# Claiming and Duplicates

The claim is a compare-and-swap on the record version observed at load
time. When two workers receive the same dispatch - brokers deliver at
least once, sweeps can race live deliveries - both attempt the swap and
exactly one wins. The loser logs at debug and walks away; losing a
conditional write is the expected cost of the protocol, not an error.

The same discipline covers the other direction: terminal writes use the
version the execution context last observed, so a cancellation that
committed while the task was running makes the executor's completion
write fail its version check and the record stays CANCELLED. Work may
run more than once; its recorded effect applies at most once.

# Outcome Routing

Success re-reads the record and inspects the sub-task summary. If any
children landed in FAILED, DEAD_LETTER or CANCELLED, the parent is
completed as COMPLETED_WITH_ERRORS carrying a BUSINESS_ERROR noting how
many children did not complete; otherwise plain COMPLETED. Either way
the per-task retry counter is cleared.

Retryable failures consult the retry manager. Within budget, the record
moves to RETRYING with NextAttemptAt stamped and a delayed redispatch is
scheduled carrying a Redelivery envelope for log provenance; a failed
redispatch is only a warning because the recovery sweeper will find the
due record anyway. An exhausted budget dead-letters the record and logs
at error level - dead letters are the operator's queue.

Fatal failures and cancellations write FAILED and CANCELLED directly.

# Cooperative Cancellation

Each running task gets its own context.CancelFunc, tracked by task ID.
SignalCancel(taskID) fires it; an executable that honors its context
returns a cancelled outcome and the record is marked CANCELLED. Tasks
that never check their context simply run to completion - cancellation
of running work is opt-in by construction.

# Lifecycle Hooks

Executables implementing the optional StartedHook, CompletedHook or
FailedHook interfaces get called at the matching points. Hooks run
inside a recover guard; a panicking hook is logged and the lifecycle
proceeds. Hooks observe, they do not steer.

# Usage

The engine owns the wiring; nothing else constructs an Executor:

	exec := executor.New(executor.Config{
		Store:     store,
		Registry:  registry,
		Broker:    broker,
		RetryMgr:  retryMgr,
		Transport: trans,
		NodeID:    nodeID,
		Submit:    engineSubmit,
	})
	trans.Start(exec.Handle)
*/
package executor
