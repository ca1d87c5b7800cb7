package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/websets-labs/orchestrator/taskstore"
	"github.com/websets-labs/orchestrator/telemetry"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/upstream/upstreamtest"
	"github.com/websets-labs/orchestrator/workflow"
)

func newRunContext(t *testing.T, store *taskstore.Store, client upstream.Client, args map[string]any) *workflow.RunContext {
	t.Helper()
	task, err := store.Create("test.workflow", args)
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(task.ID, taskstore.StatusWorking))
	return &workflow.RunContext{
		TaskID:    task.ID,
		Type:      "test.workflow",
		Args:      args,
		Client:    client,
		Store:     store,
		Telemetry: telemetry.Noop(),
		Steps:     workflow.NewStepTracker(),
		Timeout:   workflow.OptionalTimeout(args),
	}
}

func TestRegistryFreezeRejectsLateRegistration(t *testing.T) {
	reg := workflow.NewRegistry()
	reg.Register("a", func(ctx context.Context, rc *workflow.RunContext) (any, error) { return nil, nil })
	reg.Freeze()

	require.Panics(t, func() {
		reg.Register("b", func(ctx context.Context, rc *workflow.RunContext) (any, error) { return nil, nil })
	})
}

func TestRegistryLookup(t *testing.T) {
	reg := workflow.NewRegistry()
	fn := func(ctx context.Context, rc *workflow.RunContext) (any, error) { return "ok", nil }
	reg.Register("known", fn)

	_, ok := reg.Lookup("unknown")
	require.False(t, ok)

	got, ok := reg.Lookup("known")
	require.True(t, ok)
	require.NotNil(t, got)
}

func TestOwnWebsetAndCancelOwnedWebsets(t *testing.T) {
	store := taskstore.New()
	t.Cleanup(func() { _ = store.Close() })
	client := upstreamtest.New()
	rc := newRunContext(t, store, client, nil)

	w1, err := client.CreateWebset(context.Background(), upstream.CreateWebsetParams{Query: "q1"})
	require.NoError(t, err)
	w2, err := client.CreateWebset(context.Background(), upstream.CreateWebsetParams{Query: "q2"})
	require.NoError(t, err)

	rc.OwnWebset(w1.ID)
	rc.OwnWebset(w2.ID)
	rc.CancelOwnedWebsets(context.Background())

	require.Equal(t, 1, client.CancelCount(w1.ID))
	require.Equal(t, 1, client.CancelCount(w2.ID))

	// Best-effort: at most one call per webset.
	rc.CancelOwnedWebsets(context.Background())
	require.Equal(t, 1, client.CancelCount(w1.ID))
}

func TestPollCancellationThenCancelOwnedIssuesOneCancel(t *testing.T) {
	store := taskstore.New()
	t.Cleanup(func() { _ = store.Close() })
	client := upstreamtest.New()
	rc := newRunContext(t, store, client, nil)

	w, err := client.CreateWebset(context.Background(), upstream.CreateWebsetParams{Query: "q"})
	require.NoError(t, err)
	rc.OwnWebset(w.ID)

	cancelled, err := store.Cancel(rc.TaskID)
	require.NoError(t, err)
	require.True(t, cancelled)

	res, err := workflow.PollToIdle(context.Background(), rc, w.ID, workflow.WithCadence(5*time.Millisecond))
	require.NoError(t, err)
	require.True(t, res.Cancelled)
	require.Equal(t, 1, client.CancelCount(w.ID))

	// The poll already cancelled this webset; the owned sweep must not
	// cancel it a second time.
	rc.CancelOwnedWebsets(context.Background())
	require.Equal(t, 1, client.CancelCount(w.ID))
}

func TestPollToIdleMirrorsProgressAndReturnsOnIdle(t *testing.T) {
	store := taskstore.New()
	t.Cleanup(func() { _ = store.Close() })
	client := upstreamtest.New()
	rc := newRunContext(t, store, client, nil)

	w, err := client.CreateWebset(context.Background(), upstream.CreateWebsetParams{Query: "q"})
	require.NoError(t, err)

	calls := 0
	client.SetScript(w.ID, func(w *upstream.Webset) {
		calls++
		if calls >= 2 {
			w.Status = upstream.WebsetStatusIdle
		}
		w.Searches[0].Progress = upstream.SearchProgress{Found: calls * 5, Analyzed: calls * 10}
	})

	res, err := workflow.PollToIdle(context.Background(), rc, w.ID, workflow.WithCadence(5*time.Millisecond))
	require.NoError(t, err)
	require.False(t, res.TimedOut)
	require.Equal(t, upstream.WebsetStatusIdle, res.Webset.Status)

	task, err := store.Get(rc.TaskID)
	require.NoError(t, err)
	require.NotZero(t, task.Progress.TotalSteps)
}

func TestPollToIdleFailsOnPaused(t *testing.T) {
	store := taskstore.New()
	t.Cleanup(func() { _ = store.Close() })
	client := upstreamtest.New()
	rc := newRunContext(t, store, client, nil)

	w, err := client.CreateWebset(context.Background(), upstream.CreateWebsetParams{Query: "q"})
	require.NoError(t, err)
	client.SetScript(w.ID, func(w *upstream.Webset) { w.Status = upstream.WebsetStatusPaused })

	_, err = workflow.PollToIdle(context.Background(), rc, w.ID, workflow.WithCadence(5*time.Millisecond))
	require.Error(t, err)
}

func TestPollToIdleTimesOutWithoutError(t *testing.T) {
	store := taskstore.New()
	t.Cleanup(func() { _ = store.Close() })
	client := upstreamtest.New()
	rc := newRunContext(t, store, client, map[string]any{"timeout": 20})

	w, err := client.CreateWebset(context.Background(), upstream.CreateWebsetParams{Query: "q"})
	require.NoError(t, err)
	// Webset stays "running" forever.

	res, err := workflow.PollToIdle(context.Background(), rc, w.ID, workflow.WithCadence(5*time.Millisecond))
	require.NoError(t, err)
	require.True(t, res.TimedOut)
}

func TestPollToIdleReturnsEarlyOnCancellation(t *testing.T) {
	store := taskstore.New()
	t.Cleanup(func() { _ = store.Close() })
	client := upstreamtest.New()
	rc := newRunContext(t, store, client, nil)

	w, err := client.CreateWebset(context.Background(), upstream.CreateWebsetParams{Query: "q"})
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = store.Cancel(rc.TaskID)
	}()

	res, err := workflow.PollToIdle(context.Background(), rc, w.ID, workflow.WithCadence(5*time.Millisecond))
	require.NoError(t, err)
	require.True(t, res.Cancelled)
	require.Equal(t, 1, client.CancelCount(w.ID))
}

func TestCollectItemsCapsAtTwiceCount(t *testing.T) {
	store := taskstore.New()
	t.Cleanup(func() { _ = store.Close() })
	client := upstreamtest.New()
	rc := newRunContext(t, store, client, nil)

	var items []upstream.Item
	for i := 0; i < 50; i++ {
		items = append(items, upstream.Item{ID: "item"})
	}
	client.Seed(upstream.Webset{ID: "webset_x"}, items)

	got, err := workflow.CollectItems(context.Background(), rc, "webset_x", 10)
	require.NoError(t, err)
	require.Len(t, got, 20)
}

func TestValidateHelpers(t *testing.T) {
	args := map[string]any{
		"query":    "hi",
		"entity":   map[string]any{"type": "company"},
		"criteria": []any{"a", "b"},
	}

	s, err := workflow.RequireString(args, "query")
	require.NoError(t, err)
	require.Equal(t, "hi", s)

	_, err = workflow.RequireString(args, "missing")
	require.Error(t, err)

	m, err := workflow.RequireMap(args, "entity")
	require.NoError(t, err)
	require.Equal(t, "company", m["type"])

	list, err := workflow.RequireStringSlice(args, "criteria", 1, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, list)

	_, err = workflow.RequireStringSlice(args, "criteria", 3, 5)
	require.Error(t, err)

	require.Equal(t, 10, workflow.OptionalCount(args, 10))
	require.Equal(t, 300*time.Second, workflow.OptionalTimeout(nil))
	require.Equal(t, 100*time.Millisecond, workflow.OptionalTimeout(map[string]any{"timeout": 100}))
}
