package retry

import (
	"fmt"
	"sync"
	"time"

	"github.com/fableworks/taskcore/pkg/config"
	"github.com/fableworks/taskcore/pkg/types"
)

// Decision is the retry manager's verdict for one failure.
type Decision struct {
	// Retry is false when the error class is fatal or attempts are
	// exhausted.
	Retry bool
	// Exhausted distinguishes "gave up after max attempts" from "never
	// retryable": exhausted requests go to the dead letter state.
	Exhausted bool
	// Attempt is the failure count for this request, including this one.
	Attempt int
	// Delay is how long to wait before the next attempt.
	Delay time.Duration
}

// Redelivery is the message handed to the transport for a delayed retry. It
// carries full provenance so operators can trace why a task came back.
type Redelivery struct {
	TaskID      string           `json:"task_id"`
	RequestID   string           `json:"request_id"`
	Queue       string           `json:"queue"`
	ErrorClass  types.ErrorClass `json:"error_class"`
	Attempt     int              `json:"attempt"`
	Delay       time.Duration    `json:"delay"`
	ScheduledAt time.Time        `json:"scheduled_at"`
}

// Manager tracks attempt counts per logical request id and decides
// retry-versus-dead-letter. Counters are transient: created on first
// failure, removed on success or exhaustion. The task record keeps its own
// retryCount; the two are coordinated by the executor but answer different
// questions (durable audit versus in-flight decision).
type Manager struct {
	mu       sync.Mutex
	cfg      config.RetryConfig
	attempts map[string]int
}

// NewManager creates a retry manager from cfg.
func NewManager(cfg config.RetryConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		attempts: make(map[string]int),
	}
}

// Next records one failure for requestID and returns the verdict.
func (m *Manager) Next(requestID string, class types.ErrorClass) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !class.Retryable() {
		delete(m.attempts, requestID)
		return Decision{Retry: false}
	}

	m.attempts[requestID]++
	attempt := m.attempts[requestID]

	if attempt > m.cfg.MaxAttempts {
		delete(m.attempts, requestID)
		return Decision{Retry: false, Exhausted: true, Attempt: attempt}
	}

	return Decision{
		Retry:   true,
		Attempt: attempt,
		Delay:   m.backoff(attempt, class),
	}
}

// Backoff returns the delay for the given attempt number without mutating
// any counter.
func (m *Manager) Backoff(attempt int, class types.ErrorClass) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backoff(attempt, class)
}

// backoff looks up the delay table, capping at the last entry for attempts
// beyond the table length. Quota-class errors use their own flatter table.
// Caller holds the lock.
func (m *Manager) backoff(attempt int, class types.ErrorClass) time.Duration {
	table := m.cfg.DelayTable
	if class.Quota() && len(m.cfg.QuotaDelayTable) > 0 {
		table = m.cfg.QuotaDelayTable
	}
	if len(table) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(table) {
		idx = len(table) - 1
	}
	return table[idx]
}

// Clear drops the counter for requestID. Called on success and after
// exhaustion.
func (m *Manager) Clear(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, requestID)
}

// Attempts reports the current failure count for requestID.
func (m *Manager) Attempts(requestID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[requestID]
}

// MaxAttempts reports the configured ceiling.
func (m *Manager) MaxAttempts() int {
	return m.cfg.MaxAttempts
}

// NewRedelivery builds the provenance envelope for a delayed re-dispatch.
func (m *Manager) NewRedelivery(taskID, queue string, class types.ErrorClass, d Decision) Redelivery {
	return Redelivery{
		TaskID:      taskID,
		RequestID:   RequestID(taskID, d.Attempt),
		Queue:       queue,
		ErrorClass:  class,
		Attempt:     d.Attempt,
		Delay:       d.Delay,
		ScheduledAt: time.Now().Add(d.Delay),
	}
}

// RequestID derives the logical request id for one attempt of a task.
func RequestID(taskID string, attempt int) string {
	return fmt.Sprintf("%s#%d", taskID, attempt)
}
