package types

import (
	"encoding/json"
	"time"
)

// TaskStatus represents the lifecycle state of a task record
type TaskStatus string

const (
	StatusQueued              TaskStatus = "QUEUED"
	StatusRunning             TaskStatus = "RUNNING"
	StatusCompleted           TaskStatus = "COMPLETED"
	StatusFailed              TaskStatus = "FAILED"
	StatusRetrying            TaskStatus = "RETRYING"
	StatusCancelled           TaskStatus = "CANCELLED"
	StatusDeadLetter          TaskStatus = "DEAD_LETTER"
	StatusCompletedWithErrors TaskStatus = "COMPLETED_WITH_ERRORS"
)

// validTransitions maps each status to the set of statuses it may move to.
// RETRYING -> QUEUED is the only backward edge; terminal states have no
// outgoing edges.
var validTransitions = map[TaskStatus][]TaskStatus{
	StatusQueued:   {StatusRunning, StatusCancelled},
	StatusRunning:  {StatusCompleted, StatusFailed, StatusRetrying, StatusCancelled, StatusDeadLetter, StatusCompletedWithErrors},
	StatusRetrying: {StatusQueued, StatusDeadLetter, StatusCancelled},
}

// Terminal reports whether the status is a terminal state.
// A record in a terminal state never transitions again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusDeadLetter, StatusCompletedWithErrors:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TaskRecord is the durable representation of one unit of asynchronous work.
// All mutations must be version-checked: the Version field is the optimistic
// concurrency token and is incremented by the store on every successful write.
type TaskRecord struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	TaskType   string          `json:"task_type"`
	Status     TaskStatus      `json:"status"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Progress   json.RawMessage `json:"progress,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	ErrorInfo  *ErrorInfo      `json:"error_info,omitempty"`

	RetryCount      int       `json:"retry_count"`
	LastAttemptAt   time.Time `json:"last_attempt_at,omitempty"`
	NextAttemptAt   time.Time `json:"next_attempt_at,omitempty"`
	ExecutionNodeID string    `json:"execution_node_id,omitempty"`

	// Fan-out hierarchy. SubTaskSummary is maintained on the parent record
	// as children transition; consistency is eventual, not transactional.
	ParentTaskID   string             `json:"parent_task_id,omitempty"`
	SubTaskSummary map[TaskStatus]int `json:"sub_task_summary,omitempty"`

	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record. The store hands out clones so
// callers can't mutate shared state behind the version check.
func (r *TaskRecord) Clone() *TaskRecord {
	cp := *r
	if r.Parameters != nil {
		cp.Parameters = append(json.RawMessage(nil), r.Parameters...)
	}
	if r.Progress != nil {
		cp.Progress = append(json.RawMessage(nil), r.Progress...)
	}
	if r.Result != nil {
		cp.Result = append(json.RawMessage(nil), r.Result...)
	}
	if r.ErrorInfo != nil {
		ei := *r.ErrorInfo
		cp.ErrorInfo = &ei
	}
	if r.SubTaskSummary != nil {
		cp.SubTaskSummary = make(map[TaskStatus]int, len(r.SubTaskSummary))
		for k, v := range r.SubTaskSummary {
			cp.SubTaskSummary[k] = v
		}
	}
	return &cp
}
