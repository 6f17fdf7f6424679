package transport

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fableworks/taskcore/pkg/log"
	"github.com/fableworks/taskcore/pkg/metrics"
)

// InProc is the in-process transport: a bounded multi-producer queue
// consumed by a fixed-size worker pool. Each worker executes one task fully
// before taking the next. Delayed retries are scheduled re-enqueues.
//
// A full queue rejects the dispatch instead of blocking the producer; the
// record stays QUEUED and the recovery sweeper re-dispatches it.
type InProc struct {
	workers int
	queue   chan Dispatch

	handler Handler
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	started bool
	stopped bool
}

// NewInProc creates an in-process transport with the given pool size and
// queue capacity.
func NewInProc(workers, queueCapacity int) *InProc {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InProc{
		workers: workers,
		queue:   make(chan Dispatch, queueCapacity),
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Start spins up the worker pool
func (t *InProc) Start(handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return fmt.Errorf("inproc transport already started")
	}
	t.handler = handler
	t.started = true

	for i := 0; i < t.workers; i++ {
		t.wg.Add(1)
		go t.worker()
	}
	log.WithComponent("transport").Info().
		Int("workers", t.workers).
		Int("capacity", cap(t.queue)).
		Msg("inproc transport started")
	return nil
}

// worker consumes dispatches until shutdown
func (t *InProc) worker() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case d, ok := <-t.queue:
			if !ok {
				return
			}
			t.deliver(d)
		}
	}
}

// deliver runs the handler with panic isolation: a panicking handler must
// never take the worker goroutine down with it.
func (t *InProc) deliver(d Dispatch) {
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("transport").Error().
				Str("task_id", d.TaskID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("handler panicked")
		}
	}()
	t.handler(t.ctx, d)
}

// Dispatch queues d, rejecting when the queue is full
func (t *InProc) Dispatch(d Dispatch) error {
	// Checked outside the select: a closed Done() and a free queue slot are
	// both ready cases and select would pick between them at random.
	if t.ctx.Err() != nil {
		return fmt.Errorf("inproc transport stopped")
	}
	select {
	case <-t.ctx.Done():
		return fmt.Errorf("inproc transport stopped")
	case t.queue <- d:
		metrics.Dispatches.WithLabelValues(t.Name()).Inc()
		return nil
	default:
		return fmt.Errorf("dispatch queue full (capacity %d)", cap(t.queue))
	}
}

// DispatchDelayedRetry re-enqueues d after the delay
func (t *InProc) DispatchDelayedRetry(d Dispatch, delay time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return fmt.Errorf("inproc transport stopped")
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, timer)
		t.mu.Unlock()

		if err := t.Dispatch(d); err != nil {
			// The sweeper picks the record up from its RETRYING state.
			log.WithComponent("transport").Warn().
				Str("task_id", d.TaskID).
				Err(err).
				Msg("delayed retry dispatch failed")
		}
	})
	t.timers[timer] = struct{}{}
	return nil
}

// Stop drains in-flight work and shuts the pool down
func (t *InProc) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	for timer := range t.timers {
		timer.Stop()
	}
	t.timers = make(map[*time.Timer]struct{})
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	return nil
}

func (t *InProc) Name() string { return "inproc" }

// QueueDepth reports how many dispatches are waiting.
func (t *InProc) QueueDepth() int {
	return len(t.queue)
}
