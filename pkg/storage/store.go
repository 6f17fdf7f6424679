package storage

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/fableworks/taskcore/pkg/types"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("task not found")
	// ErrVersionMismatch is returned when a conditional write loses the
	// optimistic race. Callers treat this as "another owner already handled
	// it" and no-op, never as a failure.
	ErrVersionMismatch = errors.New("task version mismatch")
	// ErrInvalidTransition is returned when a write would move a record
	// along an edge the state machine does not have.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the durable task state store. Every mutating call is conditional
// on the caller's last-read version; on success the returned record carries
// the incremented version. The storage engine must apply the version check
// and the write atomically.
type Store interface {
	// Create persists a new record. The record must be QUEUED with version 0;
	// the store assigns version 1 and timestamps.
	Create(rec *types.TaskRecord) error

	// Get returns a copy of the record.
	Get(id string) (*types.TaskRecord, error)

	// CompareAndSwapStatus atomically moves the record to newStatus if the
	// stored version equals expectedVersion and the transition is legal.
	// mutate, when non-nil, is applied to the record inside the same
	// transaction. Used for the RUNNING claim and for cancellation.
	CompareAndSwapStatus(id string, expectedVersion uint64, newStatus types.TaskStatus, mutate func(*types.TaskRecord)) (*types.TaskRecord, error)

	// RecordProgress merges progress into the record without changing
	// status. The record must not be terminal.
	RecordProgress(id string, expectedVersion uint64, progress json.RawMessage) (*types.TaskRecord, error)

	// RecordCompletion moves RUNNING -> COMPLETED and stores the result.
	RecordCompletion(id string, expectedVersion uint64, result json.RawMessage) (*types.TaskRecord, error)

	// RecordCompletionWithErrors moves RUNNING -> COMPLETED_WITH_ERRORS.
	// Used by fan-out parents when some children failed.
	RecordCompletionWithErrors(id string, expectedVersion uint64, result json.RawMessage, errInfo *types.ErrorInfo) (*types.TaskRecord, error)

	// RecordFailure moves RUNNING -> FAILED with structured error detail.
	RecordFailure(id string, expectedVersion uint64, errInfo *types.ErrorInfo) (*types.TaskRecord, error)

	// RecordRetrying moves RUNNING -> RETRYING, increments the retry count
	// and sets the next attempt timestamp.
	RecordRetrying(id string, expectedVersion uint64, errInfo *types.ErrorInfo, nextAttemptAt time.Time) (*types.TaskRecord, error)

	// RecordDeadLetter moves the record to DEAD_LETTER after retry
	// exhaustion.
	RecordDeadLetter(id string, expectedVersion uint64, errInfo *types.ErrorInfo) (*types.TaskRecord, error)

	// RecordCancellation moves QUEUED or RUNNING to CANCELLED.
	RecordCancellation(id string, expectedVersion uint64) (*types.TaskRecord, error)

	// RequeueForRetry moves RETRYING -> QUEUED ahead of a retry dispatch.
	RequeueForRetry(id string, expectedVersion uint64) (*types.TaskRecord, error)

	// BumpSubTaskSummary shifts one child from one status bucket to another
	// on the parent's summary map. Losing a concurrent race here is retried
	// internally; summary consistency is eventual.
	BumpSubTaskSummary(parentID string, from, to types.TaskStatus) (*types.TaskRecord, error)

	// ListByStatus returns all records currently in the given status.
	ListByStatus(status types.TaskStatus) ([]*types.TaskRecord, error)

	Close() error
}
