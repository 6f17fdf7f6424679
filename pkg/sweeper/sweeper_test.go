package sweeper

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/taskcore/pkg/config"
	"github.com/fableworks/taskcore/pkg/retry"
	"github.com/fableworks/taskcore/pkg/storage"
	"github.com/fableworks/taskcore/pkg/transport"
	"github.com/fableworks/taskcore/pkg/types"
)

type fakeTransport struct {
	mu      sync.Mutex
	direct  []transport.Dispatch
	delayed []transport.Dispatch
}

func (f *fakeTransport) Dispatch(d transport.Dispatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, d)
	return nil
}

func (f *fakeTransport) DispatchDelayedRetry(d transport.Dispatch, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delayed = append(f.delayed, d)
	return nil
}

func (f *fakeTransport) Start(transport.Handler) error { return nil }
func (f *fakeTransport) Stop() error                   { return nil }
func (f *fakeTransport) Name() string                  { return "fake" }

func (f *fakeTransport) directCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.direct)
}

func (f *fakeTransport) delayedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delayed)
}

func newTestSweeper(t *testing.T, maxAttempts int) (*Sweeper, storage.Store, *fakeTransport) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	trans := &fakeTransport{}
	s := New(Config{
		Store:     store,
		Transport: trans,
		RetryMgr: retry.NewManager(config.RetryConfig{
			MaxAttempts: maxAttempts,
			DelayTable:  []time.Duration{10 * time.Millisecond},
		}),
		Schedule:   "@every 1h",
		ClaimLease: 5 * time.Minute,
	})
	return s, store, trans
}

func createTask(t *testing.T, store storage.Store, id string) *types.TaskRecord {
	t.Helper()
	rec := &types.TaskRecord{
		ID:         id,
		UserID:     "user-1",
		TaskType:   "echo",
		Status:     types.StatusQueued,
		Parameters: json.RawMessage(`{}`),
	}
	require.NoError(t, store.Create(rec))
	return rec
}

func TestSweepRedispatchesDueRetries(t *testing.T) {
	s, store, trans := newTestSweeper(t, 3)

	rec := createTask(t, store, "due")
	running, err := store.CompareAndSwapStatus(rec.ID, rec.Version, types.StatusRunning, nil)
	require.NoError(t, err)
	_, err = store.RecordRetrying(rec.ID, running.Version,
		types.NewErrorInfo(types.ErrorClassTimeout, "x"), time.Now().Add(-time.Second))
	require.NoError(t, err)

	s.Sweep()

	assert.Equal(t, 1, trans.directCount())
	assert.Equal(t, "due", trans.direct[0].TaskID)
}

func TestSweepSkipsFutureRetries(t *testing.T) {
	s, store, trans := newTestSweeper(t, 3)

	rec := createTask(t, store, "later")
	running, err := store.CompareAndSwapStatus(rec.ID, rec.Version, types.StatusRunning, nil)
	require.NoError(t, err)
	_, err = store.RecordRetrying(rec.ID, running.Version,
		types.NewErrorInfo(types.ErrorClassTimeout, "x"), time.Now().Add(time.Hour))
	require.NoError(t, err)

	s.Sweep()

	assert.Equal(t, 0, trans.directCount())
}

func TestSweepReclaimsExpiredLease(t *testing.T) {
	s, store, trans := newTestSweeper(t, 3)

	rec := createTask(t, store, "stuck")
	_, err := store.CompareAndSwapStatus(rec.ID, rec.Version, types.StatusRunning, func(r *types.TaskRecord) {
		r.ExecutionNodeID = "dead-node"
	})
	require.NoError(t, err)

	// The owner has been silent far past the lease.
	s.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	s.Sweep()

	got, err := store.Get("stuck")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRetrying, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, types.ErrorClassTimeout, got.ErrorInfo.Class)
	assert.Equal(t, 1, trans.delayedCount())
}

func TestSweepLeavesFreshRunningAlone(t *testing.T) {
	s, store, trans := newTestSweeper(t, 3)

	rec := createTask(t, store, "healthy")
	_, err := store.CompareAndSwapStatus(rec.ID, rec.Version, types.StatusRunning, nil)
	require.NoError(t, err)

	s.Sweep()

	got, err := store.Get("healthy")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, got.Status)
	assert.Equal(t, 0, trans.delayedCount())
}

func TestSweepDeadLettersExhaustedLease(t *testing.T) {
	// Zero retry budget: the first lease expiry is final.
	s, store, trans := newTestSweeper(t, 0)

	rec := createTask(t, store, "doomed")
	_, err := store.CompareAndSwapStatus(rec.ID, rec.Version, types.StatusRunning, nil)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	s.Sweep()

	got, err := store.Get("doomed")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeadLetter, got.Status)
	assert.Equal(t, 0, trans.delayedCount())
}

func TestSweepRedispatchesOrphanedQueued(t *testing.T) {
	s, store, trans := newTestSweeper(t, 3)
	createTask(t, store, "orphan")

	// Fresh submissions are left to the normal dispatch path.
	s.Sweep()
	assert.Equal(t, 0, trans.directCount())

	s.now = func() time.Time { return time.Now().Add(5 * time.Minute) }
	s.Sweep()
	assert.Equal(t, 1, trans.directCount())
	assert.Equal(t, "orphan", trans.direct[0].TaskID)
}

func TestStartRunsImmediateSweep(t *testing.T) {
	s, store, trans := newTestSweeper(t, 3)

	rec := createTask(t, store, "backlog")
	running, err := store.CompareAndSwapStatus(rec.ID, rec.Version, types.StatusRunning, nil)
	require.NoError(t, err)
	_, err = store.RecordRetrying(rec.ID, running.Version,
		types.NewErrorInfo(types.ErrorClassTimeout, "x"), time.Now().Add(-time.Second))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for trans.directCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 1, trans.directCount())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s, _, _ := newTestSweeper(t, 3)
	s.schedule = "not a schedule"
	assert.Error(t, s.Start())
}
