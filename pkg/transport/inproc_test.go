package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector is a handler that records delivered dispatches.
type collector struct {
	mu   sync.Mutex
	got  []Dispatch
	done chan struct{}
	want int
}

func newCollector(want int) *collector {
	return &collector{done: make(chan struct{}), want: want}
}

func (c *collector) handle(_ context.Context, d Dispatch) {
	c.mu.Lock()
	c.got = append(c.got, d)
	if len(c.got) == c.want {
		close(c.done)
	}
	c.mu.Unlock()
}

func (c *collector) wait(t *testing.T, timeout time.Duration) []Dispatch {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(timeout):
		t.Fatal("handler did not receive the expected dispatches in time")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Dispatch(nil), c.got...)
}

func TestInProcDelivers(t *testing.T) {
	tr := NewInProc(2, 16)
	c := newCollector(3)
	require.NoError(t, tr.Start(c.handle))
	defer tr.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, tr.Dispatch(Dispatch{TaskID: id, TaskType: "echo"}))
	}

	got := c.wait(t, 2*time.Second)
	ids := map[string]bool{}
	for _, d := range got {
		ids[d.TaskID] = true
	}
	assert.Len(t, ids, 3)
}

func TestInProcRejectsWhenFull(t *testing.T) {
	// Not started, so nothing drains the queue.
	tr := NewInProc(1, 2)
	defer tr.Stop()

	require.NoError(t, tr.Dispatch(Dispatch{TaskID: "a"}))
	require.NoError(t, tr.Dispatch(Dispatch{TaskID: "b"}))

	err := tr.Dispatch(Dispatch{TaskID: "c"})
	assert.Error(t, err)
	assert.Equal(t, 2, tr.QueueDepth())
}

func TestInProcDelayedRetry(t *testing.T) {
	tr := NewInProc(1, 16)
	c := newCollector(1)
	require.NoError(t, tr.Start(c.handle))
	defer tr.Stop()

	start := time.Now()
	require.NoError(t, tr.DispatchDelayedRetry(Dispatch{TaskID: "a"}, 50*time.Millisecond))

	got := c.wait(t, 2*time.Second)
	assert.Equal(t, "a", got[0].TaskID)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestInProcStopCancelsPendingTimers(t *testing.T) {
	tr := NewInProc(1, 16)
	c := newCollector(1)
	require.NoError(t, tr.Start(c.handle))

	require.NoError(t, tr.DispatchDelayedRetry(Dispatch{TaskID: "a"}, time.Hour))
	require.NoError(t, tr.Stop())

	// The timer is gone and nothing was delivered.
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.got)
}

func TestInProcRejectsAfterStop(t *testing.T) {
	tr := NewInProc(1, 16)
	require.NoError(t, tr.Start(func(context.Context, Dispatch) {}))
	require.NoError(t, tr.Stop())

	assert.Error(t, tr.Dispatch(Dispatch{TaskID: "a"}))
	assert.Error(t, tr.DispatchDelayedRetry(Dispatch{TaskID: "a"}, time.Millisecond))
}

func TestInProcSurvivesHandlerPanic(t *testing.T) {
	tr := NewInProc(1, 16)
	c := newCollector(1)
	require.NoError(t, tr.Start(func(ctx context.Context, d Dispatch) {
		if d.TaskID == "boom" {
			panic("handler exploded")
		}
		c.handle(ctx, d)
	}))
	defer tr.Stop()

	require.NoError(t, tr.Dispatch(Dispatch{TaskID: "boom"}))
	require.NoError(t, tr.Dispatch(Dispatch{TaskID: "ok"}))

	got := c.wait(t, 2*time.Second)
	assert.Equal(t, "ok", got[0].TaskID)
}

func TestInProcDoubleStart(t *testing.T) {
	tr := NewInProc(1, 16)
	require.NoError(t, tr.Start(func(context.Context, Dispatch) {}))
	defer tr.Stop()

	assert.Error(t, tr.Start(func(context.Context, Dispatch) {}))
}
