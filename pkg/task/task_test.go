package task

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/taskcore/pkg/storage"
	"github.com/fableworks/taskcore/pkg/types"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Echo{}))

	exec, ok := r.Resolve("echo")
	assert.True(t, ok)
	assert.Equal(t, "echo", exec.Type())

	_, ok = r.Resolve("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Echo{}))
	assert.Error(t, r.Register(Echo{}))
}

type unnamed struct{ Echo }

func (unnamed) Type() string { return "" }

func TestRegistryRejectsEmptyType(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(unnamed{}))
}

func TestRegistryTypesSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(named("zebra")))
	require.NoError(t, r.Register(named("alpha")))
	require.NoError(t, r.Register(named("m")))

	assert.Equal(t, []string{"alpha", "m", "zebra"}, r.Types())
}

type named string

func (n named) Type() string { return string(n) }
func (n named) ValidateParameters(params json.RawMessage) error { return nil }
func (n named) Execute(ctx *Context) types.Outcome { return types.Succeed(nil) }

func newRunningRecord(t *testing.T, store storage.Store, params string) *types.TaskRecord {
	t.Helper()
	rec := &types.TaskRecord{
		ID:         "t1",
		UserID:     "user-1",
		TaskType:   "echo",
		Status:     types.StatusQueued,
		Parameters: json.RawMessage(params),
	}
	require.NoError(t, store.Create(rec))
	running, err := store.CompareAndSwapStatus(rec.ID, rec.Version, types.StatusRunning, nil)
	require.NoError(t, err)
	return running
}

func TestContextParameters(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec := newRunningRecord(t, store, `{"text":"hello","count":3}`)
	ctx := NewContext(ContextConfig{Record: rec, Store: store})

	var p struct {
		Text  string `json:"text"`
		Count int    `json:"count"`
	}
	require.NoError(t, ctx.Parameters(&p))
	assert.Equal(t, "hello", p.Text)
	assert.Equal(t, 3, p.Count)
}

func TestContextProgressTracksVersion(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec := newRunningRecord(t, store, `{}`)
	ctx := NewContext(ContextConfig{Record: rec, Store: store})
	before := ctx.Version()

	// Each progress write bumps the record version; the context follows so
	// the terminal write still lands.
	require.NoError(t, ctx.UpdateProgress(map[string]int{"pct": 10}))
	require.NoError(t, ctx.UpdateProgress(map[string]int{"pct": 80}))
	assert.Equal(t, before+2, ctx.Version())

	_, err = store.RecordCompletion(rec.ID, ctx.Version(), json.RawMessage(`{}`))
	assert.NoError(t, err)
}

func TestContextSubmitSubTask(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec := newRunningRecord(t, store, `{}`)

	var gotType, gotUser, gotParent string
	ctx := NewContext(ContextConfig{
		Record: rec,
		Store:  store,
		Submit: func(taskType, userID, parentTaskID string, params json.RawMessage) (string, error) {
			gotType, gotUser, gotParent = taskType, userID, parentTaskID
			return "child-1", nil
		},
	})

	id, err := ctx.SubmitSubTask("summary.chapter", map[string]string{"chapter_id": "c1"})
	require.NoError(t, err)
	assert.Equal(t, "child-1", id)
	assert.Equal(t, "summary.chapter", gotType)
	assert.Equal(t, "user-1", gotUser)
	assert.Equal(t, "t1", gotParent)
}

func TestContextSubmitWithoutEngine(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec := newRunningRecord(t, store, `{}`)
	ctx := NewContext(ContextConfig{Record: rec, Store: store})

	_, err = ctx.SubmitSubTask("x", nil)
	assert.Error(t, err)
}

func TestContextCancelled(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec := newRunningRecord(t, store, `{}`)
	execCtx, cancel := context.WithCancel(context.Background())
	ctx := NewContext(ContextConfig{Ctx: execCtx, Record: rec, Store: store})

	assert.False(t, ctx.Cancelled())
	cancel()
	assert.True(t, ctx.Cancelled())
}

func TestAwaitSubTasksSettles(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec := newRunningRecord(t, store, `{}`)
	ctx := NewContext(ContextConfig{Record: rec, Store: store})

	// One child still queued.
	_, err = store.BumpSubTaskSummary(rec.ID, "", types.StatusQueued)
	require.NoError(t, err)

	go func() {
		// The child settles shortly after the wait starts.
		time.Sleep(30 * time.Millisecond)
		_, _ = store.BumpSubTaskSummary(rec.ID, types.StatusQueued, types.StatusCompleted)
	}()

	summary, err := ctx.AwaitSubTasks(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, summary[types.StatusCompleted])
}

func TestAwaitSubTasksObservesCancellation(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec := newRunningRecord(t, store, `{}`)
	execCtx, cancel := context.WithCancel(context.Background())
	ctx := NewContext(ContextConfig{Ctx: execCtx, Record: rec, Store: store})

	_, err = store.BumpSubTaskSummary(rec.ID, "", types.StatusQueued)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err = ctx.AwaitSubTasks(10 * time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEchoRoundTrip(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	params := `{"text":"hello","nested":{"a":1}}`
	rec := newRunningRecord(t, store, params)
	ctx := NewContext(ContextConfig{Record: rec, Store: store})

	out := Echo{}.Execute(ctx)
	assert.Equal(t, types.OutcomeSuccess, out.Kind)
	assert.JSONEq(t, params, string(out.Result))
}

func TestEchoValidation(t *testing.T) {
	assert.NoError(t, Echo{}.ValidateParameters(json.RawMessage(`{"a":1}`)))
	assert.Error(t, Echo{}.ValidateParameters(nil))
	assert.Error(t, Echo{}.ValidateParameters(json.RawMessage(`{not json`)))
}
