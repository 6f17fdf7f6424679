package sweeper

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fableworks/taskcore/pkg/log"
	"github.com/fableworks/taskcore/pkg/metrics"
	"github.com/fableworks/taskcore/pkg/retry"
	"github.com/fableworks/taskcore/pkg/storage"
	"github.com/fableworks/taskcore/pkg/transport"
	"github.com/fableworks/taskcore/pkg/types"
)

// orphanGrace is how long a QUEUED record may sit untouched before the
// sweep re-dispatches it. Fresh submissions are normally picked up within
// milliseconds; anything older lost its dispatch to a full queue or a
// crash.
const orphanGrace = time.Minute

// Requeue reasons reported in sweep metrics.
const (
	reasonRetryDue     = "retry_due"
	reasonLeaseExpired = "lease_expired"
	reasonQueuedOrphan = "queued_orphan"
)

// Sweeper is the recovery loop that makes the at-least-once promise hold
// across crashes and full queues. On every tick it re-dispatches due
// retries, reclaims RUNNING records whose lease expired, and re-dispatches
// QUEUED records nobody picked up. Every write it makes is version-checked,
// so a sweep racing a live worker loses harmlessly.
type Sweeper struct {
	store      storage.Store
	trans      transport.Transport
	retryMgr   *retry.Manager
	schedule   string
	claimLease time.Duration
	cron       *cron.Cron
	now        func() time.Time
}

// Config wires a Sweeper.
type Config struct {
	Store      storage.Store
	Transport  transport.Transport
	RetryMgr   *retry.Manager
	Schedule   string
	ClaimLease time.Duration
}

// New creates a sweeper. Schedule accepts cron expressions and @every
// intervals.
func New(cfg Config) *Sweeper {
	return &Sweeper{
		store:      cfg.Store,
		trans:      cfg.Transport,
		retryMgr:   cfg.RetryMgr,
		schedule:   cfg.Schedule,
		claimLease: cfg.ClaimLease,
		now:        time.Now,
	}
}

// Start schedules the sweep and runs one immediately so a restarted node
// recovers its backlog without waiting for the first tick.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		return fmt.Errorf("invalid sweeper schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	go s.Sweep()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs one full recovery pass.
func (s *Sweeper) Sweep() {
	metrics.SweepsRun.Inc()
	requeued := s.sweepRetrying() + s.sweepRunning() + s.sweepQueued()
	if requeued > 0 {
		log.WithComponent("sweeper").Info().Int("requeued", requeued).Msg("recovery sweep re-dispatched tasks")
	}
	s.refreshGauges()
}

// refreshGauges republishes the per-status record counts. The sweep is the
// one place that already scans the store, so the gauge rides along.
func (s *Sweeper) refreshGauges() {
	for _, status := range []types.TaskStatus{
		types.StatusQueued, types.StatusRunning, types.StatusRetrying,
		types.StatusCompleted, types.StatusCompletedWithErrors,
		types.StatusFailed, types.StatusCancelled, types.StatusDeadLetter,
	} {
		records, err := s.store.ListByStatus(status)
		if err != nil {
			return
		}
		metrics.TasksByStatus.WithLabelValues(string(status)).Set(float64(len(records)))
	}
}

// sweepRetrying re-dispatches RETRYING records whose next attempt time has
// passed. The normal path is a delayed timer on the transport; this catches
// timers lost to a crash or a failed delayed dispatch.
func (s *Sweeper) sweepRetrying() int {
	records, err := s.store.ListByStatus(types.StatusRetrying)
	if err != nil {
		log.WithComponent("sweeper").Error().Err(err).Msg("failed to list retrying tasks")
		return 0
	}

	now := s.now()
	n := 0
	for _, rec := range records {
		if rec.NextAttemptAt.After(now) {
			continue
		}
		if err := s.dispatch(rec); err != nil {
			log.WithTask(rec.ID, rec.TaskType).Warn().Err(err).Msg("sweep re-dispatch failed")
			continue
		}
		metrics.SweepRequeues.WithLabelValues(reasonRetryDue).Inc()
		n++
	}
	return n
}

// sweepRunning reclaims RUNNING records whose owner has gone quiet past the
// claim lease. The owner may have crashed mid-execution, so its attempt is
// charged against the retry budget like any other failure.
func (s *Sweeper) sweepRunning() int {
	records, err := s.store.ListByStatus(types.StatusRunning)
	if err != nil {
		log.WithComponent("sweeper").Error().Err(err).Msg("failed to list running tasks")
		return 0
	}

	now := s.now()
	n := 0
	for _, rec := range records {
		if now.Sub(rec.UpdatedAt) < s.claimLease {
			continue
		}

		errInfo := types.NewErrorInfo(types.ErrorClassTimeout,
			fmt.Sprintf("execution lease expired on node %s", rec.ExecutionNodeID))
		decision := s.retryMgr.Next(rec.ID, types.ErrorClassTimeout)

		if decision.Retry {
			updated, err := s.store.RecordRetrying(rec.ID, rec.Version, errInfo, now.Add(decision.Delay))
			if err != nil {
				s.logLostWrite(rec, err)
				continue
			}
			s.bumpParent(updated, types.StatusRunning, types.StatusRetrying)
			if err := s.trans.DispatchDelayedRetry(s.toDispatch(updated), decision.Delay); err != nil {
				log.WithTask(rec.ID, rec.TaskType).Warn().Err(err).Msg("sweep re-dispatch failed")
			}
		} else {
			updated, err := s.store.RecordDeadLetter(rec.ID, rec.Version, errInfo)
			if err != nil {
				s.logLostWrite(rec, err)
				continue
			}
			s.bumpParent(updated, types.StatusRunning, types.StatusDeadLetter)
			metrics.DeadLetters.WithLabelValues(rec.TaskType).Inc()
			log.WithTask(rec.ID, rec.TaskType).Error().Msg("lease expired with retry budget exhausted; task moved to dead letter")
		}
		metrics.SweepRequeues.WithLabelValues(reasonLeaseExpired).Inc()
		n++
	}
	return n
}

// sweepQueued re-dispatches QUEUED records that sat past the orphan grace,
// typically because the dispatch queue was full at submission time.
func (s *Sweeper) sweepQueued() int {
	records, err := s.store.ListByStatus(types.StatusQueued)
	if err != nil {
		log.WithComponent("sweeper").Error().Err(err).Msg("failed to list queued tasks")
		return 0
	}

	now := s.now()
	n := 0
	for _, rec := range records {
		if now.Sub(rec.UpdatedAt) < orphanGrace {
			continue
		}
		if err := s.dispatch(rec); err != nil {
			log.WithTask(rec.ID, rec.TaskType).Warn().Err(err).Msg("sweep re-dispatch failed")
			continue
		}
		metrics.SweepRequeues.WithLabelValues(reasonQueuedOrphan).Inc()
		n++
	}
	return n
}

func (s *Sweeper) dispatch(rec *types.TaskRecord) error {
	return s.trans.Dispatch(s.toDispatch(rec))
}

func (s *Sweeper) toDispatch(rec *types.TaskRecord) transport.Dispatch {
	return transport.Dispatch{
		TaskID:     rec.ID,
		UserID:     rec.UserID,
		TaskType:   rec.TaskType,
		RetryCount: rec.RetryCount,
	}
}

func (s *Sweeper) bumpParent(rec *types.TaskRecord, from, to types.TaskStatus) {
	if rec.ParentTaskID == "" {
		return
	}
	if _, err := s.store.BumpSubTaskSummary(rec.ParentTaskID, from, to); err != nil {
		log.WithTask(rec.ID, rec.TaskType).Warn().Err(err).Msg("sub-task summary update failed")
	}
}

func (s *Sweeper) logLostWrite(rec *types.TaskRecord, err error) {
	if errors.Is(err, storage.ErrVersionMismatch) {
		// The worker is alive after all, or another sweep won.
		return
	}
	log.WithTask(rec.ID, rec.TaskType).Error().Err(err).Msg("sweep state write failed")
}
