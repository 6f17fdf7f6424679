package transport

import (
	"context"
	"time"

	"github.com/fableworks/taskcore/pkg/retry"
)

// Dispatch is the unit moved by a transport: enough to locate the record
// and route it, never the work itself. The record in the state store stays
// authoritative; duplicate delivery of the same dispatch is expected and
// made harmless by the executor's version-checked claim.
type Dispatch struct {
	TaskID     string `json:"task_id"`
	UserID     string `json:"user_id"`
	TaskType   string `json:"task_type"`
	RetryCount int    `json:"retry_count"`
	// Redelivery carries provenance when this dispatch is a delayed retry.
	Redelivery *retry.Redelivery `json:"redelivery,omitempty"`
}

// Handler consumes one dispatched task. It runs the full claim-execute-
// route cycle before returning; the transport delivers the next dispatch to
// the worker only after that.
type Handler func(ctx context.Context, d Dispatch)

// Transport moves a task id from "ready" to "claimed by a worker". Both
// implementations guarantee at-least-once delivery; exactly-once effect
// comes from the optimistic claim, not from the transport.
type Transport interface {
	// Dispatch queues d for delivery to a worker.
	Dispatch(d Dispatch) error

	// DispatchDelayedRetry re-queues d after the delay elapses.
	DispatchDelayedRetry(d Dispatch, delay time.Duration) error

	// Start begins delivering dispatches to handler.
	Start(handler Handler) error

	// Stop shuts the transport down, waiting for in-flight handlers.
	Stop() error

	// Name returns the transport name for logging and metrics.
	Name() string
}
