package adversarial_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/websets-labs/orchestrator/taskstore"
	"github.com/websets-labs/orchestrator/telemetry"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/upstream/upstreamtest"
	"github.com/websets-labs/orchestrator/workflow"
	"github.com/websets-labs/orchestrator/workflows/adversarial"
)

// perQueryClient scripts every webset it creates to go idle immediately,
// serving a fixed item list keyed by the search query that created it.
type perQueryClient struct {
	*upstreamtest.Client
	itemsByQuery map[string][]upstream.Item
}

func (c *perQueryClient) CreateWebset(ctx context.Context, params upstream.CreateWebsetParams) (upstream.Webset, error) {
	w, err := c.Client.CreateWebset(ctx, params)
	if err != nil {
		return w, err
	}
	c.Client.SetScript(w.ID, func(w *upstream.Webset) { w.Status = upstream.WebsetStatusIdle })
	c.Client.Seed(w, c.itemsByQuery[params.Query])
	return w, nil
}

func run(t *testing.T, client upstream.Client, args map[string]any) (any, error) {
	t.Helper()
	store := taskstore.New()
	t.Cleanup(func() { _ = store.Close() })
	task, err := store.Create(string(adversarial.Name), args)
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(task.ID, taskstore.StatusWorking))
	rc := &workflow.RunContext{
		TaskID:    task.ID,
		Type:      adversarial.Name,
		Args:      args,
		Client:    client,
		Store:     store,
		Telemetry: telemetry.Noop(),
		Steps:     workflow.NewStepTracker(),
		Timeout:   workflow.OptionalTimeout(args),
	}
	return adversarial.Run(context.Background(), rc)
}

func TestVerifyCollectsSupportingAndDisconfirming(t *testing.T) {
	claim := "Acme raised a Series B"
	client := &perQueryClient{
		Client: upstreamtest.New(),
		itemsByQuery: map[string][]upstream.Item{
			"evidence supporting: " + claim: {{ID: "s1", URL: "https://a.example", Description: "funding announcement"}},
			"evidence against: " + claim:    {{ID: "d1", URL: "https://b.example", Description: "denial statement"}},
		},
	}
	args := map[string]any{
		"claim":  claim,
		"entity": map[string]any{"type": "article"},
	}

	result, err := run(t, client, args)
	require.NoError(t, err)
	res := result.(adversarial.Result)

	require.Len(t, res.Supporting, 1)
	require.Len(t, res.Disconfirming, 1)
	require.Nil(t, res.Synthesis)
	require.NotEmpty(t, res.SupportingWebsetID)
	require.NotEmpty(t, res.DisconfirmingWebsetID)
}

func TestVerifySynthesizesWhenRequested(t *testing.T) {
	claim := "Acme raised a Series B"
	client := &perQueryClient{
		Client: upstreamtest.New(),
		itemsByQuery: map[string][]upstream.Item{
			"evidence supporting: " + claim: {{ID: "s1", URL: "https://a.example"}},
			"evidence against: " + claim:    {{ID: "d1", URL: "https://b.example"}},
		},
	}
	client.Client.ResearchFn = func(p upstream.CreateResearchParams) upstream.ResearchJob {
		return upstream.ResearchJob{Status: upstream.ResearchStatusFinished, Text: "verdict: likely true"}
	}
	args := map[string]any{
		"claim":      claim,
		"entity":     map[string]any{"type": "article"},
		"synthesize": true,
	}

	result, err := run(t, client, args)
	require.NoError(t, err)
	res := result.(adversarial.Result)

	require.NotNil(t, res.Synthesis)
	require.Equal(t, "verdict: likely true", res.Synthesis.Text)
}

func TestVerifyRequiresClaim(t *testing.T) {
	client := upstreamtest.New()
	_, err := run(t, client, map[string]any{"entity": map[string]any{"type": "article"}})
	require.Error(t, err)
}
