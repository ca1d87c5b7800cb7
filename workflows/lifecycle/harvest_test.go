package lifecycle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/websets-labs/orchestrator/taskstore"
	"github.com/websets-labs/orchestrator/telemetry"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/upstream/upstreamtest"
	"github.com/websets-labs/orchestrator/workflow"
	"github.com/websets-labs/orchestrator/workflows/lifecycle"
)

// autoIdleClient wraps a *upstreamtest.Client, scripting every webset it
// creates to flip to idle on its first poll and seeding it with a fixed set
// of items. This lets tests exercise the happy path without waiting out the
// poll-to-idle default 2s cadence or racing the workflow's own id generation.
type autoIdleClient struct {
	*upstreamtest.Client
	items []upstream.Item
}

func (c *autoIdleClient) CreateWebset(ctx context.Context, params upstream.CreateWebsetParams) (upstream.Webset, error) {
	w, err := c.Client.CreateWebset(ctx, params)
	if err != nil {
		return w, err
	}
	calls := 0
	c.Client.SetScript(w.ID, func(w *upstream.Webset) {
		calls++
		w.Status = upstream.WebsetStatusIdle
		w.Searches[0].Progress = upstream.SearchProgress{Found: len(c.items), Analyzed: len(c.items)}
	})
	c.Client.Seed(w, c.items)
	return w, nil
}

func newIdleClient(items []upstream.Item) *autoIdleClient {
	return &autoIdleClient{Client: upstreamtest.New(), items: items}
}

func run(t *testing.T, client upstream.Client, args map[string]any) (any, error) {
	t.Helper()
	store := taskstore.New()
	t.Cleanup(func() { _ = store.Close() })
	task, err := store.Create(string(lifecycle.Name), args)
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(task.ID, taskstore.StatusWorking))
	rc := &workflow.RunContext{
		TaskID:    task.ID,
		Type:      lifecycle.Name,
		Args:      args,
		Client:    client,
		Store:     store,
		Telemetry: telemetry.Noop(),
		Steps:     workflow.NewStepTracker(),
		Timeout:   workflow.OptionalTimeout(args),
	}
	return lifecycle.Run(context.Background(), rc)
}

// A harvest that times out completes with partial results.
func TestHarvestTimeoutReturnsPartial(t *testing.T) {
	client := upstreamtest.New()
	args := map[string]any{
		"query":   "AI infra startups",
		"entity":  map[string]any{"type": "company"},
		"count":   5,
		"timeout": 20,
	}

	result, err := run(t, client, args)
	require.NoError(t, err)

	res, ok := result.(lifecycle.Result)
	require.True(t, ok)
	require.True(t, res.TimedOut)
	require.Empty(t, res.Items)
	require.NotEmpty(t, res.WebsetID)
}

func TestHarvestCollectsProjectedItems(t *testing.T) {
	items := []upstream.Item{
		{ID: "item_1", URL: "https://a.example", Description: "a"},
		{ID: "item_2", URL: "https://b.example", Description: "b"},
	}
	client := newIdleClient(items)
	args := map[string]any{
		"query":  "AI infra startups",
		"entity": map[string]any{"type": "company"},
		"count":  5,
	}

	result, err := run(t, client, args)
	require.NoError(t, err)

	res, ok := result.(lifecycle.Result)
	require.True(t, ok)
	require.False(t, res.TimedOut)
	require.Len(t, res.Items, 2)
	require.Equal(t, 2, res.SearchProgress.Found)
}

func TestHarvestCleanupDeletesWebset(t *testing.T) {
	client := newIdleClient(nil)
	args := map[string]any{
		"query":   "AI infra startups",
		"entity":  map[string]any{"type": "company"},
		"cleanup": true,
	}

	result, err := run(t, client, args)
	require.NoError(t, err)
	res := result.(lifecycle.Result)
	require.True(t, client.Deleted(res.WebsetID))
}

func TestHarvestRejectsMissingEntityType(t *testing.T) {
	client := upstreamtest.New()
	_, err := run(t, client, map[string]any{"query": "x", "entity": map[string]any{}})
	require.Error(t, err)
}
