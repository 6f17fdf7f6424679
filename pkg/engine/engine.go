package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/fableworks/taskcore/pkg/config"
	"github.com/fableworks/taskcore/pkg/events"
	"github.com/fableworks/taskcore/pkg/executor"
	"github.com/fableworks/taskcore/pkg/log"
	"github.com/fableworks/taskcore/pkg/metrics"
	"github.com/fableworks/taskcore/pkg/ratelimit"
	"github.com/fableworks/taskcore/pkg/retry"
	"github.com/fableworks/taskcore/pkg/storage"
	"github.com/fableworks/taskcore/pkg/sweeper"
	"github.com/fableworks/taskcore/pkg/task"
	"github.com/fableworks/taskcore/pkg/transport"
	"github.com/fableworks/taskcore/pkg/types"
)

// cancelAttempts bounds the CAS loop for cancelling a queued task that keeps
// moving under us.
const cancelAttempts = 3

// Engine is the assembled framework: store, registry, transport, executor,
// retry manager, rate limiters and recovery sweeper wired together behind
// one facade. Applications register their executables, Start the engine,
// and interact through Submit, Cancel, Get and Events.
type Engine struct {
	cfg      config.Config
	store    storage.Store
	registry *task.Registry
	broker   *events.Broker
	retryMgr *retry.Manager
	limiter  *ratelimit.Manager
	trans    transport.Transport
	exec     *executor.Executor
	sweep    *sweeper.Sweeper

	mu      sync.Mutex
	started bool
	stopped bool
}

// Option customizes engine construction.
type Option func(*options)

type options struct {
	store storage.Store
	trans transport.Transport
}

// WithStore replaces the default bbolt store, mainly for tests.
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithTransport replaces the transport chosen by configuration.
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.trans = t }
}

// New builds an engine from cfg. The store and transport come from the
// configuration unless overridden by options. The returned engine owns the
// store and closes it on Stop.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open task store: %w", err)
		}
	}

	trans := o.trans
	if trans == nil {
		switch cfg.Engine.Transport {
		case config.TransportBroker:
			trans = transport.NewBroker(cfg.Engine.Workers, cfg.Engine.QueueCapacity, nil)
		default:
			trans = transport.NewInProc(cfg.Engine.Workers, cfg.Engine.QueueCapacity)
		}
	}

	e := &Engine{
		cfg:      cfg,
		store:    store,
		registry: task.NewRegistry(),
		broker:   events.NewBroker(),
		retryMgr: retry.NewManager(cfg.Retry),
		limiter:  ratelimit.NewManager(ratelimit.NewStaticSource(cfg.Providers)),
		trans:    trans,
	}

	e.exec = executor.New(executor.Config{
		Store:     store,
		Registry:  e.registry,
		Broker:    e.broker,
		RetryMgr:  e.retryMgr,
		Transport: trans,
		NodeID:    cfg.NodeID,
		Submit:    e.submit,
	})

	e.sweep = sweeper.New(sweeper.Config{
		Store:      store,
		Transport:  trans,
		RetryMgr:   e.retryMgr,
		Schedule:   cfg.Sweeper.Schedule,
		ClaimLease: cfg.Engine.ClaimLease,
	})

	return e, nil
}

// Register adds an executable to the engine's registry. All registrations
// must happen before Start.
func (e *Engine) Register(exec task.Executable) error {
	return e.registry.Register(exec)
}

// MustRegister is Register that panics on error, for static wiring at boot.
func (e *Engine) MustRegister(exec task.Executable) {
	e.registry.MustRegister(exec)
}

// Start brings up the event broker, the transport workers and the recovery
// sweeper.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("engine already started")
	}

	e.broker.Start()
	if err := e.trans.Start(e.exec.Handle); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	if e.cfg.Sweeper.Enabled {
		if err := e.sweep.Start(); err != nil {
			return fmt.Errorf("failed to start sweeper: %w", err)
		}
	}

	e.started = true
	log.WithComponent("engine").Info().
		Str("node_id", e.cfg.NodeID).
		Str("transport", e.trans.Name()).
		Int("workers", e.cfg.Engine.Workers).
		Strs("task_types", e.registry.Types()).
		Msg("task engine started")
	return nil
}

// Stop shuts everything down in reverse order and closes the store.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}
	e.stopped = true

	if e.cfg.Sweeper.Enabled {
		e.sweep.Stop()
	}
	if err := e.trans.Stop(); err != nil {
		log.WithComponent("engine").Warn().Err(err).Msg("transport stop failed")
	}
	e.broker.Stop()

	if err := e.store.Close(); err != nil {
		return fmt.Errorf("failed to close task store: %w", err)
	}
	log.WithComponent("engine").Info().Msg("task engine stopped")
	return nil
}

// Submit creates a root task and dispatches it. The returned id is available
// for status polling immediately, before any execution starts.
func (e *Engine) Submit(taskType, userID string, params json.RawMessage) (string, error) {
	return e.submit(taskType, userID, "", params)
}

// submit is the shared creation path for root tasks and sub-tasks; it is
// also handed to the executor as the task context's submit function.
func (e *Engine) submit(taskType, userID, parentTaskID string, params json.RawMessage) (string, error) {
	exec, ok := e.registry.Resolve(taskType)
	if !ok {
		return "", fmt.Errorf("unknown task type %q", taskType)
	}
	if err := exec.ValidateParameters(params); err != nil {
		return "", fmt.Errorf("invalid parameters for %q: %w", taskType, err)
	}

	rec := &types.TaskRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		TaskType:     taskType,
		Status:       types.StatusQueued,
		Parameters:   params,
		ParentTaskID: parentTaskID,
	}
	if err := e.store.Create(rec); err != nil {
		return "", fmt.Errorf("failed to persist task: %w", err)
	}
	if parentTaskID != "" {
		if _, err := e.store.BumpSubTaskSummary(parentTaskID, "", types.StatusQueued); err != nil {
			log.WithTask(rec.ID, taskType).Warn().
				Str("parent_task_id", parentTaskID).
				Err(err).
				Msg("sub-task summary update failed")
		}
	}

	metrics.TasksSubmitted.WithLabelValues(taskType).Inc()
	e.broker.Publish(&events.Event{
		Type:     events.EventTaskQueued,
		TaskID:   rec.ID,
		TaskType: taskType,
		UserID:   userID,
		Status:   types.StatusQueued,
	})
	if h, ok := exec.(task.QueuedHook); ok {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithTask(rec.ID, taskType).Warn().
						Interface("panic", r).
						Msg("on_queued hook panicked")
				}
			}()
			h.OnQueued(rec.Clone())
		}()
	}

	d := transport.Dispatch{
		TaskID:   rec.ID,
		UserID:   userID,
		TaskType: taskType,
	}
	if err := e.trans.Dispatch(d); err != nil {
		// The record is durable and QUEUED; the recovery sweep will pick
		// it up once the queue drains.
		log.WithTask(rec.ID, taskType).Warn().Err(err).Msg("dispatch deferred to recovery sweep")
	}
	return rec.ID, nil
}

// Get returns a copy of the task record.
func (e *Engine) Get(taskID string) (*types.TaskRecord, error) {
	return e.store.Get(taskID)
}

// List returns all records currently in the given status.
func (e *Engine) List(status types.TaskStatus) ([]*types.TaskRecord, error) {
	return e.store.ListByStatus(status)
}

// Cancel requests cancellation of a task. A waiting task (QUEUED or
// RETRYING) is cancelled immediately. A RUNNING task is cancelled
// cooperatively and only if its executable opts in; the terminal write then
// happens when the execution observes the signal and returns. Terminal
// tasks cannot be cancelled.
func (e *Engine) Cancel(taskID string) error {
	for i := 0; i < cancelAttempts; i++ {
		rec, err := e.store.Get(taskID)
		if err != nil {
			return err
		}

		if rec.Status.Terminal() {
			return fmt.Errorf("task %s is already %s", taskID, rec.Status)
		}

		switch rec.Status {
		case types.StatusQueued, types.StatusRetrying:
			prior := rec.Status
			updated, err := e.store.RecordCancellation(rec.ID, rec.Version)
			if err != nil {
				if errors.Is(err, storage.ErrVersionMismatch) {
					continue // record moved, re-read and retry
				}
				return err
			}
			e.retryMgr.Clear(rec.ID)
			if updated.ParentTaskID != "" {
				if _, err := e.store.BumpSubTaskSummary(updated.ParentTaskID, prior, types.StatusCancelled); err != nil {
					log.WithTask(rec.ID, rec.TaskType).Warn().Err(err).Msg("sub-task summary update failed")
				}
			}
			metrics.TasksCompleted.WithLabelValues(string(types.StatusCancelled), updated.TaskType).Inc()
			e.broker.Publish(&events.Event{
				Type:     events.EventTaskCancelled,
				TaskID:   updated.ID,
				TaskType: updated.TaskType,
				UserID:   updated.UserID,
				Status:   types.StatusCancelled,
			})
			return nil

		case types.StatusRunning:
			exec, ok := e.registry.Resolve(rec.TaskType)
			if !ok {
				return fmt.Errorf("unknown task type %q", rec.TaskType)
			}
			c, ok := exec.(task.Cancellable)
			if !ok {
				return fmt.Errorf("task type %q does not support cancellation while running", rec.TaskType)
			}
			if !e.exec.SignalCancel(taskID) {
				return fmt.Errorf("task %s is not running on this node", taskID)
			}
			cancelCtx := task.NewContext(task.ContextConfig{
				Record: rec,
				Store:  e.store,
				Broker: e.broker,
				Submit: e.submit,
			})
			if err := c.Cancel(cancelCtx); err != nil {
				log.WithTask(rec.ID, rec.TaskType).Warn().Err(err).Msg("executable cancel callback failed")
			}
			return nil

		default:
			return fmt.Errorf("task %s is in unexpected status %s", taskID, rec.Status)
		}
	}
	return fmt.Errorf("task %s kept changing during cancellation", taskID)
}

// Events exposes the lifecycle event broker for subscriptions.
func (e *Engine) Events() *events.Broker {
	return e.broker
}

// Limiter exposes the provider rate limiter manager, for wrapping provider
// clients with ratelimit-aware throttling.
func (e *Engine) Limiter() *ratelimit.Manager {
	return e.limiter
}

// Registry exposes the task type registry.
func (e *Engine) Registry() *task.Registry {
	return e.registry
}
