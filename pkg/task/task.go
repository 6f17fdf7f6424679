package task

import (
	"encoding/json"

	"github.com/fableworks/taskcore/pkg/types"
)

// Executable is the polymorphic unit of work for one task type. Variants are
// registered by type key and resolved at dispatch time; an unknown type
// fails the task as non-retryable.
//
// Execute returns a discriminated outcome instead of raising errors for
// expected business failures, so the executor separates retry from fatal
// from cancelled without sniffing error types. An executable never lets a
// provider-call error escape raw: it classifies and wraps.
type Executable interface {
	// Type returns the task type key this variant handles.
	Type() string

	// ValidateParameters is the pre-flight payload check. A structurally
	// invalid payload fails the task immediately as non-retryable, before
	// any provider call is attempted.
	ValidateParameters(params json.RawMessage) error

	// Execute runs the work inside the given context.
	Execute(ctx *Context) types.Outcome
}

// Lifecycle hooks are optional: a variant implements the interfaces it
// needs. Hook failures are logged and swallowed, never escalated, and never
// mask the task outcome.

// QueuedHook runs when the record is created QUEUED.
type QueuedHook interface {
	OnQueued(rec *types.TaskRecord)
}

// StartedHook runs after a successful RUNNING claim.
type StartedHook interface {
	OnStarted(rec *types.TaskRecord)
}

// CompletedHook runs after the record reaches COMPLETED.
type CompletedHook interface {
	OnCompleted(rec *types.TaskRecord, result json.RawMessage)
}

// FailedHook runs after the record reaches FAILED, DEAD_LETTER or RETRYING.
type FailedHook interface {
	OnFailed(rec *types.TaskRecord, errInfo *types.ErrorInfo)
}

// Cancellable marks a variant that supports mid-flight cancellation. Cancel
// must be idempotent and safe to call concurrently with an in-flight
// Execute; it is a best-effort signal, the executable still observes
// cancellation cooperatively through its context. Variants that don't
// implement this reject cancellation while RUNNING.
type Cancellable interface {
	Cancel(ctx *Context) error
}
