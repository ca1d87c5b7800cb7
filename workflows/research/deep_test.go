package research_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/websets-labs/orchestrator/taskstore"
	"github.com/websets-labs/orchestrator/telemetry"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/upstream/upstreamtest"
	"github.com/websets-labs/orchestrator/workflow"
	"github.com/websets-labs/orchestrator/workflows/research"
)

// pollingResearchClient flips a research job from running to finished after
// a fixed number of PollResearch calls, exercising research.deep's poll
// loop; each poll still waits one tick of the real poll cadence.
type pollingResearchClient struct {
	*upstreamtest.Client
	mu          sync.Mutex
	pollsNeeded int
	polls       int
}

func (c *pollingResearchClient) PollResearch(ctx context.Context, id string) (upstream.ResearchJob, error) {
	c.mu.Lock()
	c.polls++
	done := c.polls >= c.pollsNeeded
	c.mu.Unlock()

	job, err := c.Client.PollResearch(ctx, id)
	if err != nil {
		return job, err
	}
	if done {
		job.Status = upstream.ResearchStatusFinished
		job.Text = "final answer"
	}
	return job, nil
}

func runDeep(t *testing.T, client upstream.Client, args map[string]any) (any, error) {
	t.Helper()
	store := taskstore.New()
	t.Cleanup(func() { _ = store.Close() })
	task, err := store.Create(string(research.DeepName), args)
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(task.ID, taskstore.StatusWorking))
	rc := &workflow.RunContext{
		TaskID:    task.ID,
		Type:      research.DeepName,
		Args:      args,
		Client:    client,
		Store:     store,
		Telemetry: telemetry.Noop(),
		Steps:     workflow.NewStepTracker(),
		Timeout:   workflow.OptionalTimeout(args),
	}
	return research.RunDeep(context.Background(), rc)
}

func TestDeepResearchReturnsImmediateResult(t *testing.T) {
	client := upstreamtest.New()
	client.ResearchFn = func(p upstream.CreateResearchParams) upstream.ResearchJob {
		return upstream.ResearchJob{Status: upstream.ResearchStatusFinished, Text: "instant answer"}
	}

	result, err := runDeep(t, client, map[string]any{"instructions": "summarize recent filings"})
	require.NoError(t, err)
	res := result.(research.DeepResult)
	require.Equal(t, upstream.ResearchStatusFinished, res.Status)
	require.Equal(t, "instant answer", res.Result)
}

func TestDeepResearchPollsUntilFinished(t *testing.T) {
	inner := upstreamtest.New()
	inner.ResearchFn = func(p upstream.CreateResearchParams) upstream.ResearchJob {
		return upstream.ResearchJob{Status: upstream.ResearchStatusRunning}
	}
	client := &pollingResearchClient{Client: inner, pollsNeeded: 1}

	result, err := runDeep(t, client, map[string]any{"instructions": "summarize recent filings"})
	require.NoError(t, err)
	res := result.(research.DeepResult)
	require.Equal(t, upstream.ResearchStatusFinished, res.Status)
	require.Equal(t, "final answer", res.Result)
}

func TestDeepResearchRequiresInstructions(t *testing.T) {
	client := upstreamtest.New()
	_, err := runDeep(t, client, map[string]any{})
	require.Error(t, err)
}

func TestDeepResearchPollCadenceIsThreeSeconds(t *testing.T) {
	require.Equal(t, 3*time.Second, research.DefaultResearchPollCadence)
}
