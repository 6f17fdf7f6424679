package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fableworks/taskcore/pkg/events"
	"github.com/fableworks/taskcore/pkg/log"
	"github.com/fableworks/taskcore/pkg/storage"
	"github.com/fableworks/taskcore/pkg/types"
)

// SubmitFunc creates a child task record and dispatches it, returning the
// new task id. Injected by the engine so the context doesn't depend on the
// dispatch machinery.
type SubmitFunc func(taskType, userID, parentTaskID string, params json.RawMessage) (string, error)

// Context is the per-execution handle an executable works through: typed
// parameters, progress reporting, logging tagged with the task id, and
// sub-task submission for fan-out work.
type Context struct {
	ctx    context.Context
	rec    *types.TaskRecord
	store  storage.Store
	broker *events.Broker
	submit SubmitFunc
	logger *zerolog.Logger

	mu      sync.Mutex
	version uint64
}

// ContextConfig wires a Context.
type ContextConfig struct {
	Ctx    context.Context
	Record *types.TaskRecord
	Store  storage.Store
	Broker *events.Broker
	Submit SubmitFunc
}

// NewContext builds the execution context for one claimed record.
func NewContext(cfg ContextConfig) *Context {
	ctx := cfg.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		ctx:     ctx,
		rec:     cfg.Record,
		store:   cfg.Store,
		broker:  cfg.Broker,
		submit:  cfg.Submit,
		logger:  log.WithTask(cfg.Record.ID, cfg.Record.TaskType),
		version: cfg.Record.Version,
	}
}

// Context returns the underlying context carrying deadline and cooperative
// cancellation.
func (c *Context) Context() context.Context {
	return c.ctx
}

// TaskID returns the record id.
func (c *Context) TaskID() string { return c.rec.ID }

// UserID returns the submitting user.
func (c *Context) UserID() string { return c.rec.UserID }

// TaskType returns the record's type key.
func (c *Context) TaskType() string { return c.rec.TaskType }

// RetryCount returns how many retries the record has been through.
func (c *Context) RetryCount() int { return c.rec.RetryCount }

// Parameters unmarshals the task payload into v. Decoding the opaque record
// payload is the framework's job: executables see their own typed struct.
func (c *Context) Parameters(v interface{}) error {
	if len(c.rec.Parameters) == 0 {
		return fmt.Errorf("task %s has no parameters", c.rec.ID)
	}
	if err := json.Unmarshal(c.rec.Parameters, v); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	return nil
}

// RawParameters returns the undecoded payload.
func (c *Context) RawParameters() json.RawMessage {
	return c.rec.Parameters
}

// UpdateProgress merges data into the record's progress field and emits a
// progress notification. Safe to call zero or many times. The store write
// either completes or fails loudly; the notification is fire-and-forget.
func (c *Context) UpdateProgress(data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.store.RecordProgress(c.rec.ID, c.version, payload)
	if err != nil {
		return fmt.Errorf("failed to record progress: %w", err)
	}
	c.version = rec.Version

	if c.broker != nil {
		c.broker.Publish(&events.Event{
			Type:     events.EventTaskProgress,
			TaskID:   c.rec.ID,
			TaskType: c.rec.TaskType,
			UserID:   c.rec.UserID,
			Status:   rec.Status,
			Progress: payload,
		})
	}
	return nil
}

// LogInfo writes a structured info line tagged with the task id. Never
// fails.
func (c *Context) LogInfo(msg string) {
	c.logger.Info().Msg(msg)
}

// LogError writes a structured error line tagged with the task id. Never
// fails.
func (c *Context) LogError(msg string, err error) {
	c.logger.Error().Err(err).Msg(msg)
}

// Logger returns the task-tagged logger for richer structured logging.
func (c *Context) Logger() *zerolog.Logger {
	return c.logger
}

// SubmitSubTask creates a new QUEUED record with this task as parent and
// returns its id. The parent's sub-task summary is updated as children
// transition; consistency is eventual.
func (c *Context) SubmitSubTask(taskType string, params interface{}) (string, error) {
	if c.submit == nil {
		return "", fmt.Errorf("sub-task submission not available in this context")
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode sub-task parameters: %w", err)
	}
	return c.submit(taskType, c.rec.UserID, c.rec.ID, payload)
}

// SubTaskSummary returns the current count-by-status of this task's
// children. The summary is eventually consistent.
func (c *Context) SubTaskSummary() (map[types.TaskStatus]int, error) {
	rec, err := c.store.Get(c.rec.ID)
	if err != nil {
		return nil, err
	}
	return rec.SubTaskSummary, nil
}

// AwaitSubTasks polls the sub-task summary until every child has reached a
// terminal state or the execution is cancelled. Fan-out parents call this
// after submitting their children; the executor then folds child failures
// into the parent's terminal status.
func (c *Context) AwaitSubTasks(poll time.Duration) (map[types.TaskStatus]int, error) {
	if poll <= 0 {
		poll = time.Second
	}
	for {
		summary, err := c.SubTaskSummary()
		if err != nil {
			return nil, err
		}
		pending := summary[types.StatusQueued] + summary[types.StatusRunning] + summary[types.StatusRetrying]
		if pending == 0 {
			return summary, nil
		}
		select {
		case <-c.ctx.Done():
			return summary, c.ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Cancelled reports whether cancellation has been requested. Executables
// with long loops poll this between suspension points; the framework never
// forcibly interrupts an in-flight provider call.
func (c *Context) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Version returns the record version after the context's latest write. The
// executor uses it for the version-checked terminal write.
func (c *Context) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}
