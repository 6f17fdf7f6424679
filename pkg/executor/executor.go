package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fableworks/taskcore/pkg/events"
	"github.com/fableworks/taskcore/pkg/log"
	"github.com/fableworks/taskcore/pkg/metrics"
	"github.com/fableworks/taskcore/pkg/retry"
	"github.com/fableworks/taskcore/pkg/storage"
	"github.com/fableworks/taskcore/pkg/task"
	"github.com/fableworks/taskcore/pkg/transport"
	"github.com/fableworks/taskcore/pkg/types"
)

// Executor turns a dispatched task id into an execution: it loads the
// record, wins or loses the optimistic RUNNING claim, runs the matching
// executable inside a task context, and routes the outcome back through the
// state store and the transport. A lost claim is a silent no-op: duplicate
// delivery of the same task id is expected, not an error. Nothing an
// executable does can crash the worker; panics become non-retryable failure
// outcomes.
type Executor struct {
	store     storage.Store
	registry  *task.Registry
	broker    *events.Broker
	retryMgr  *retry.Manager
	transport transport.Transport
	nodeID    string
	submit    task.SubmitFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// Config wires an Executor.
type Config struct {
	Store     storage.Store
	Registry  *task.Registry
	Broker    *events.Broker
	RetryMgr  *retry.Manager
	Transport transport.Transport
	NodeID    string
	Submit    task.SubmitFunc
}

// New creates an executor.
func New(cfg Config) *Executor {
	return &Executor{
		store:     cfg.Store,
		registry:  cfg.Registry,
		broker:    cfg.Broker,
		retryMgr:  cfg.RetryMgr,
		transport: cfg.Transport,
		nodeID:    cfg.NodeID,
		submit:    cfg.Submit,
		running:   make(map[string]context.CancelFunc),
	}
}

// Handle is the transport.Handler: the full claim-execute-route cycle for
// one dispatch.
func (e *Executor) Handle(ctx context.Context, d transport.Dispatch) {
	logger := log.WithComponent("executor")

	rec, err := e.store.Get(d.TaskID)
	if err != nil {
		logger.Warn().Str("task_id", d.TaskID).Err(err).Msg("dispatched task not found")
		return
	}

	// A delayed retry delivers while the record is RETRYING; move it back
	// to QUEUED first. Losing this write means another worker or the
	// sweeper got there first.
	if rec.Status == types.StatusRetrying {
		rec, err = e.store.RequeueForRetry(rec.ID, rec.Version)
		if err != nil {
			if errors.Is(err, storage.ErrVersionMismatch) {
				return
			}
			logger.Warn().Str("task_id", d.TaskID).Err(err).Msg("requeue for retry failed")
			return
		}
	}

	if rec.Status != types.StatusQueued {
		// Stale or duplicate delivery; the record moved on without us.
		return
	}

	claimed, err := e.store.CompareAndSwapStatus(rec.ID, rec.Version, types.StatusRunning, func(r *types.TaskRecord) {
		r.ExecutionNodeID = e.nodeID
		r.LastAttemptAt = time.Now()
	})
	if err != nil {
		if errors.Is(err, storage.ErrVersionMismatch) {
			metrics.ClaimsLost.Inc()
			return
		}
		logger.Error().Str("task_id", rec.ID).Err(err).Msg("claim write failed")
		return
	}
	metrics.ClaimsWon.Inc()
	e.bumpParent(claimed, types.StatusQueued, types.StatusRunning)
	e.publish(events.EventTaskStarted, claimed, nil)

	exec, ok := e.registry.Resolve(claimed.TaskType)
	if !ok {
		e.failFatal(claimed, claimed.Version, types.NewErrorInfo(types.ErrorClassInput,
			fmt.Sprintf("no executor found for task type %q", claimed.TaskType)))
		return
	}

	if h, ok := exec.(task.StartedHook); ok {
		runHook("on_started", claimed.ID, func() { h.OnStarted(claimed.Clone()) })
	}

	if err := exec.ValidateParameters(claimed.Parameters); err != nil {
		e.failFatal(claimed, claimed.Version, types.NewErrorInfo(types.ErrorClassInput,
			fmt.Sprintf("invalid parameters: %v", err)))
		if h, ok := exec.(task.FailedHook); ok {
			runHook("on_failed", claimed.ID, func() { h.OnFailed(claimed.Clone(), claimed.ErrorInfo) })
		}
		return
	}

	execCtx, cancel := context.WithCancel(ctx)
	e.track(claimed.ID, cancel)
	defer e.untrack(claimed.ID)

	taskCtx := task.NewContext(task.ContextConfig{
		Ctx:    execCtx,
		Record: claimed,
		Store:  e.store,
		Broker: e.broker,
		Submit: e.submit,
	})

	started := time.Now()
	outcome := e.safeExecute(exec, taskCtx)
	metrics.TaskExecutionDuration.WithLabelValues(claimed.TaskType).Observe(time.Since(started).Seconds())

	e.route(d, claimed, exec, outcome, taskCtx.Version())
}

// safeExecute runs the executable, converting a panic into a non-retryable
// failure outcome so the worker keeps consuming.
func (e *Executor) safeExecute(exec task.Executable, ctx *task.Context) (out types.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.WithTask(ctx.TaskID(), ctx.TaskType()).Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("executable panicked")
			out = types.Fail(types.ErrorClassInternal, fmt.Sprintf("executable panicked: %v", r))
		}
	}()
	return exec.Execute(ctx)
}

// route writes the outcome back to the state store and schedules any retry.
// version is the record version after the context's last write; a mismatch
// on any of these writes means cancellation or another owner won the race,
// and the outcome is discarded.
func (e *Executor) route(d transport.Dispatch, rec *types.TaskRecord, exec task.Executable, outcome types.Outcome, version uint64) {
	switch outcome.Kind {
	case types.OutcomeSuccess:
		e.completeSuccess(rec, exec, outcome, version)

	case types.OutcomeCancelled:
		e.markCancelled(rec, version)

	case types.OutcomeRetryableFailure:
		e.scheduleRetry(d, rec, exec, outcome, version)

	default: // OutcomeFatalFailure and anything unrecognized
		e.failFatal(rec, version, outcome.Err)
		if h, ok := exec.(task.FailedHook); ok {
			runHook("on_failed", rec.ID, func() { h.OnFailed(rec.Clone(), outcome.Err) })
		}
		e.retryMgr.Clear(rec.ID)
	}
}

func (e *Executor) completeSuccess(rec *types.TaskRecord, exec task.Executable, outcome types.Outcome, version uint64) {
	e.retryMgr.Clear(rec.ID)

	// Fan-out parents fold child failures into their own terminal status.
	fresh, err := e.store.Get(rec.ID)
	if err != nil {
		fresh = rec
	}
	childFailures := fresh.SubTaskSummary[types.StatusFailed] +
		fresh.SubTaskSummary[types.StatusDeadLetter] +
		fresh.SubTaskSummary[types.StatusCancelled]

	var updated *types.TaskRecord
	if childFailures > 0 {
		errInfo := types.NewErrorInfo(types.ErrorClassBusiness,
			fmt.Sprintf("%d sub-task(s) did not complete", childFailures))
		updated, err = e.store.RecordCompletionWithErrors(rec.ID, version, outcome.Result, errInfo)
	} else {
		updated, err = e.store.RecordCompletion(rec.ID, version, outcome.Result)
	}
	if err != nil {
		e.logLostWrite(rec.ID, "completion", err)
		return
	}

	e.bumpParent(updated, types.StatusRunning, updated.Status)
	metrics.TasksCompleted.WithLabelValues(string(updated.Status), updated.TaskType).Inc()
	e.publish(events.EventTaskCompleted, updated, nil)

	if h, ok := exec.(task.CompletedHook); ok {
		runHook("on_completed", rec.ID, func() { h.OnCompleted(updated.Clone(), outcome.Result) })
	}
}

func (e *Executor) scheduleRetry(d transport.Dispatch, rec *types.TaskRecord, exec task.Executable, outcome types.Outcome, version uint64) {
	class := outcome.Err.Class
	decision := e.retryMgr.Next(rec.ID, class)

	if h, ok := exec.(task.FailedHook); ok {
		runHook("on_failed", rec.ID, func() { h.OnFailed(rec.Clone(), outcome.Err) })
	}

	switch {
	case decision.Retry:
		nextAttempt := time.Now().Add(decision.Delay)
		updated, err := e.store.RecordRetrying(rec.ID, version, outcome.Err, nextAttempt)
		if err != nil {
			e.logLostWrite(rec.ID, "retrying", err)
			return
		}
		e.bumpParent(updated, types.StatusRunning, types.StatusRetrying)
		metrics.RetriesScheduled.WithLabelValues(string(class)).Inc()
		e.publish(events.EventTaskRetrying, updated, outcome.Err)

		redelivery := e.retryMgr.NewRedelivery(rec.ID, e.transport.Name(), class, decision)
		next := transport.Dispatch{
			TaskID:     d.TaskID,
			UserID:     d.UserID,
			TaskType:   d.TaskType,
			RetryCount: updated.RetryCount,
			Redelivery: &redelivery,
		}
		if err := e.transport.DispatchDelayedRetry(next, decision.Delay); err != nil {
			// The record stays RETRYING; the recovery sweep re-dispatches
			// it once nextAttemptAt passes.
			log.WithTask(rec.ID, rec.TaskType).Warn().Err(err).Msg("delayed retry dispatch failed")
		}

	case decision.Exhausted:
		e.deadLetter(rec, version, outcome.Err)

	default:
		// Retryable outcome carrying a non-retryable class.
		e.failFatal(rec, version, outcome.Err)
		e.retryMgr.Clear(rec.ID)
	}
}

func (e *Executor) deadLetter(rec *types.TaskRecord, version uint64, errInfo *types.ErrorInfo) {
	updated, err := e.store.RecordDeadLetter(rec.ID, version, errInfo)
	if err != nil {
		e.logLostWrite(rec.ID, "dead letter", err)
		return
	}
	e.bumpParent(updated, types.StatusRunning, types.StatusDeadLetter)
	metrics.DeadLetters.WithLabelValues(updated.TaskType).Inc()
	metrics.TasksCompleted.WithLabelValues(string(types.StatusDeadLetter), updated.TaskType).Inc()
	e.publish(events.EventTaskDeadLetter, updated, errInfo)
	log.WithTask(rec.ID, rec.TaskType).Error().
		Str("error_class", string(errInfo.Class)).
		Int("retry_count", updated.RetryCount).
		Msg("task moved to dead letter; operator action required")
}

func (e *Executor) failFatal(rec *types.TaskRecord, version uint64, errInfo *types.ErrorInfo) {
	updated, err := e.store.RecordFailure(rec.ID, version, errInfo)
	if err != nil {
		e.logLostWrite(rec.ID, "failure", err)
		return
	}
	e.bumpParent(updated, types.StatusRunning, types.StatusFailed)
	metrics.TasksCompleted.WithLabelValues(string(types.StatusFailed), updated.TaskType).Inc()
	e.publish(events.EventTaskFailed, updated, errInfo)
}

func (e *Executor) markCancelled(rec *types.TaskRecord, version uint64) {
	updated, err := e.store.RecordCancellation(rec.ID, version)
	if err != nil {
		// Usually the cancellation request already moved the record.
		e.logLostWrite(rec.ID, "cancellation", err)
		return
	}
	e.bumpParent(updated, types.StatusRunning, types.StatusCancelled)
	metrics.TasksCompleted.WithLabelValues(string(types.StatusCancelled), updated.TaskType).Inc()
	e.publish(events.EventTaskCancelled, updated, updated.ErrorInfo)
}

// logLostWrite records a conditional write that did not land. Version
// mismatches are the expected cancellation/duplicate race and only worth a
// debug line.
func (e *Executor) logLostWrite(taskID, what string, err error) {
	if errors.Is(err, storage.ErrVersionMismatch) {
		log.WithComponent("executor").Debug().
			Str("task_id", taskID).
			Str("write", what).
			Msg("conditional write lost the race")
		return
	}
	log.WithComponent("executor").Error().
		Str("task_id", taskID).
		Str("write", what).
		Err(err).
		Msg("state store write failed")
}

// bumpParent maintains the parent's count-by-status summary as this child
// transitions. Best effort: a failed summary write never affects the child.
func (e *Executor) bumpParent(rec *types.TaskRecord, from, to types.TaskStatus) {
	if rec.ParentTaskID == "" {
		return
	}
	if _, err := e.store.BumpSubTaskSummary(rec.ParentTaskID, from, to); err != nil {
		log.WithComponent("executor").Warn().
			Str("task_id", rec.ID).
			Str("parent_task_id", rec.ParentTaskID).
			Err(err).
			Msg("sub-task summary update failed")
	}
}

func (e *Executor) publish(eventType events.EventType, rec *types.TaskRecord, errInfo *types.ErrorInfo) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(&events.Event{
		Type:     eventType,
		TaskID:   rec.ID,
		TaskType: rec.TaskType,
		UserID:   rec.UserID,
		Status:   rec.Status,
		Error:    errInfo,
	})
}

// track registers the cancel function for a running execution.
func (e *Executor) track(taskID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[taskID] = cancel
}

func (e *Executor) untrack(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, taskID)
}

// SignalCancel fires the cooperative cancellation signal for an in-flight
// execution. Returns false when the task is not running on this node.
func (e *Executor) SignalCancel(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.running[taskID]
	if ok {
		cancel()
	}
	return ok
}

// RunningCount reports how many executions this node currently owns.
func (e *Executor) RunningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

// runHook isolates lifecycle hooks: a hook failure is logged and swallowed,
// never escalated, and never masks the task outcome.
func runHook(name, taskID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("executor").Warn().
				Str("task_id", taskID).
				Str("hook", name).
				Interface("panic", r).
				Msg("lifecycle hook panicked")
		}
	}()
	fn()
}
