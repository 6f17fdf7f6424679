/*
Package storage provides persistent task state management using BoltDB.

The storage package is the single source of truth for task records. Every
status transition in the system - claiming, completing, failing, retrying,
cancelling - goes through this package, and every write is both a state
machine check and an optimistic concurrency check. Components never mutate
records in memory and write them back; they ask the store to perform a
named transition and either get the updated record or a typed error.

# Architecture

	┌───────────────────── BOLT STORE ─────────────────────────┐
	│                                                           │
	│  tasks.db (single file, data directory)                   │
	│    bucket "tasks":  task ID -> JSON-encoded TaskRecord    │
	│                                                           │
	│  Every write transaction:                                 │
	│    1. Load record by ID             (ErrNotFound)         │
	│    2. Compare stored Version with                         │
	│       the caller's expected Version (ErrVersionMismatch)  │
	│    3. Check the lifecycle machine                         │
	│       allows the transition         (ErrInvalidTransition)│
	│    4. Apply mutation, bump Version, persist               │
	└───────────────────────────────────────────────────────────┘

The version check runs before the transition check. A caller holding a
stale record always learns "someone got there first" rather than "that
transition is illegal", which matters because the two errors demand
different reactions: a version mismatch is an expected race and is
dropped silently, an invalid transition is a bug or a duplicate terminal
write and is surfaced.

# Optimistic Concurrency

Records carry a Version that increments on every successful write. All
transition methods take the version the caller last observed:

	rec, err := store.Get(id)
	// ... decide ...
	updated, err := store.RecordCompletion(id, rec.Version, result)
	if errors.Is(err, storage.ErrVersionMismatch) {
		// another writer won; re-read or walk away
	}

This is how exactly-once effect is built on at-least-once delivery:
two executors receiving the same dispatch both attempt the QUEUED ->
RUNNING swap with the same expected version, exactly one succeeds, and
the loser abandons the task without having touched anything.

It is also how committed cancellation beats late completion: the
cancellation write bumps the version, so an executor finishing the work
afterwards fails its terminal write on the version check and the record
stays CANCELLED.

# Transition Methods

	CompareAndSwapStatus    generic CAS, used for the RUNNING claim
	RecordProgress          merges progress JSON, bumps version,
	                        no status change (RUNNING only)
	RecordCompletion        RUNNING -> COMPLETED with result payload
	RecordCompletionWithErrors  RUNNING -> COMPLETED_WITH_ERRORS
	RecordFailure           RUNNING -> FAILED with ErrorInfo
	RecordRetrying          RUNNING -> RETRYING, bumps RetryCount,
	                        stamps NextAttemptAt, clears node ID
	RequeueForRetry         RETRYING -> QUEUED when the delay elapses
	RecordDeadLetter        RUNNING/RETRYING -> DEAD_LETTER
	RecordCancellation      QUEUED/RETRYING -> CANCELLED

BumpSubTaskSummary maintains the count-by-status map on a parent record
as its children move through their own lifecycles; passing an empty
"from" status means a child is being counted for the first time.

ListByStatus scans the full bucket and is intended for the recovery
sweeper and operator tooling, not hot paths.

# Progress Merging

RecordProgress performs a shallow JSON object merge: incoming keys
overwrite, absent keys survive. An executable reporting {"pct": 40}
after {"stage": "generating"} leaves both keys on the record. Each
progress write bumps the version, which is why execution contexts track
the version as they go.

# Durability

BoltDB gives single-file, transactional, crash-safe storage with zero
operational overhead - the right shape for a per-node task store where
the working set is modest and every write must survive a crash. Records
marshal to JSON inside the transaction; a record that cannot be decoded
on read is reported as corruption, not skipped.

# Usage

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := &types.TaskRecord{ID: id, TaskType: "echo", Status: types.StatusQueued}
	if err := store.Create(rec); err != nil {
		return err
	}

The Store interface abstracts BoltStore for components that only need a
subset of operations, and is what tests fake when they need to inject
write failures.
*/
package storage
