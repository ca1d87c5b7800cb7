// Package research implements the two deep-research workflows:
// research.deep dispatches and polls a single deep-research job;
// research.verifiedCollection attaches a bounded-concurrency research call
// to each of a webset's first N items.
package research

import (
	"context"
	"time"

	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflow"
	"github.com/websets-labs/orchestrator/workflowerr"
)

// DeepName is the registered workflow type name for research.deep.
const DeepName = workflow.Name("research.deep")

// RegisterDeep adds research.deep to reg.
func RegisterDeep(reg *workflow.Registry) {
	reg.Register(DeepName, RunDeep)
}

// DeepResult is research.deep's return value.
type DeepResult struct {
	ResearchID string                `json:"researchId"`
	Status     upstream.ResearchStatus `json:"status"`
	Result     any                   `json:"result,omitempty"`
	Model      string                `json:"model,omitempty"`
	DurationMs int64                 `json:"duration"`
	Steps      []workflow.StepRecord `json:"steps"`
}

// DefaultResearchPollCadence is how often research.deep repolls the job.
const DefaultResearchPollCadence = 3 * time.Second

// RunDeep implements research.deep: validates {instructions}; dispatches an
// upstream deep-research job; polls to finished within the task's timeout
// budget; returns the outcome.
func RunDeep(ctx context.Context, rc *workflow.RunContext) (any, error) {
	instructions, err := workflow.RequireString(rc.Args, "instructions")
	if err != nil {
		return nil, err
	}

	if rc.Cancelled() {
		return nil, nil
	}

	var job upstream.ResearchJob
	if err := rc.Steps.Track("research.create", func() error {
		j, err := rc.Client.CreateResearch(ctx, upstream.CreateResearchParams{Instructions: instructions})
		job = j
		return err
	}); err != nil {
		return nil, err
	}

	start := time.Now()
	deadline := start.Add(rc.Timeout)

	err = rc.Steps.Track("research.poll", func() error {
		ticker := time.NewTicker(DefaultResearchPollCadence)
		defer ticker.Stop()
		for job.Status == upstream.ResearchStatusRunning {
			if rc.Cancelled() {
				return nil
			}
			if time.Now().After(deadline) {
				return nil
			}
			select {
			case <-ctx.Done():
				return workflowerr.Wrap(workflowerr.KindInternal, "research.poll", ctx.Err())
			case <-ticker.C:
				j, pollErr := rc.Client.PollResearch(ctx, job.ID)
				if pollErr != nil {
					return pollErr
				}
				job = j
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rc.Cancelled() {
		return nil, nil
	}

	return DeepResult{
		ResearchID: job.ID,
		Status:     job.Status,
		Result:     researchOutput(job),
		Model:      job.Model,
		DurationMs: time.Since(start).Milliseconds(),
		Steps:      rc.Steps.Records(),
	}, nil
}

func researchOutput(job upstream.ResearchJob) any {
	if job.Output != nil {
		return job.Output
	}
	return job.Text
}
