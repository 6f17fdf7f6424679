/*
Package types defines the core data structures used throughout taskcore.

This package contains the fundamental types that represent the task execution
domain model: task records, lifecycle statuses, error classification, and
execution outcomes. All other packages depend on types; types depends on
nothing but the standard library.

# Task Lifecycle

Every task moves through a strict state machine. Transitions not listed here
are rejected by the storage layer:

	                 ┌──────────┐
	                 │  QUEUED  │◄────────────┐
	                 └────┬─────┘             │
	             ┌────────┴────────┐          │
	             ▼                 ▼          │
	        ┌─────────┐      ┌───────────┐    │
	        │ RUNNING │      │ CANCELLED │    │
	        └────┬────┘      └───────────┘    │
	   ┌─────────┼──────────────┬─────────┐   │
	   ▼         ▼              ▼         ▼   │
	┌───────┐ ┌────────┐ ┌───────────┐ ┌──────┴───┐
	│ DONE* │ │ FAILED │ │DEAD_LETTER│ │ RETRYING │
	└───────┘ └────────┘ └───────────┘ └────┬─────┘
	                           ▲             │
	                           └─────────────┘
	                          (also CANCELLED)

	DONE* = COMPLETED or COMPLETED_WITH_ERRORS

RETRYING -> QUEUED is the only backward edge in the machine. COMPLETED,
FAILED, CANCELLED, DEAD_LETTER and COMPLETED_WITH_ERRORS are terminal:
once a record reaches one of them, no further transition is valid, ever.
Terminal immutability is what makes duplicate deliveries and racing
completions safe - the first terminal write wins and every later write
fails the transition check.

# Core Types

TaskRecord: The persistent unit of work. Carries identity (ID, UserID,
TaskType, ParentTaskID), the opaque Parameters payload, lifecycle fields
(Status, RetryCount, NextAttemptAt, ExecutionNodeID) and a monotonically
increasing Version used for optimistic concurrency control. Records are
copied with Clone before being handed across goroutine boundaries.

TaskStatus: The lifecycle states above, with Terminal() and the package
level CanTransition(from, to) predicate encoding the state machine.

ErrorClass: A closed taxonomy of failure causes. Classes drive retry
policy - Retryable() reports whether a class is worth another attempt,
Quota() singles out provider quota exhaustion, which uses a much longer
backoff table and feeds the rate limiter:

	Retryable: TIMEOUT, REMOTE_SERVICE_ERROR, AI_MODEL_ERROR,
	           AI_QUOTA_EXHAUSTED, UNKNOWN
	Fatal:     INTERNAL_ERROR, BUSINESS_ERROR, INPUT_ERROR,
	           NOT_FOUND, PERMISSION_ERROR, CANCELLED

ErrorInfo: The serialized failure detail stored on a failed record -
message, class, and an optional trimmed stack trace.

Outcome: What one execution attempt produced. An Outcome is one of
success, retryable failure, fatal failure, or cancelled, built with the
Succeed, RetryLater, Fail and Cancel constructors. FromError converts an
arbitrary error into the right Outcome by classifying it first: errors
that expose an ErrorClass() method keep their class, everything else is
UNKNOWN (and therefore retried).

# Usage

Classifying an error inside an executable:

	resp, err := client.Generate(ctx, req)
	if err != nil {
		return types.FromError(err)
	}
	return types.Succeed(result)

Checking a transition before attempting a write:

	if !types.CanTransition(rec.Status, types.StatusCancelled) {
		return fmt.Errorf("task already %s", rec.Status)
	}

# Design Principles

  - Closed enums: statuses and error classes are fixed sets, not open
    strings. Unknown inputs map to UNKNOWN, never to a new class.
  - The state machine lives here, in one table, and nowhere else.
  - No behavior beyond the data model: persistence, retry policy and
    dispatch all live in higher packages.
*/
package types
