// Package lifecycle implements the lifecycle.harvest workflow:
// the simplest workflow, used both as a working example and as the
// reference pattern every other workflow in this module follows: validate,
// create, poll to idle, collect, optionally clean up.
package lifecycle

import (
	"context"

	"github.com/websets-labs/orchestrator/projection"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflow"
	"github.com/websets-labs/orchestrator/workflowerr"
)

// Name is the registered workflow type name.
const Name = workflow.Name("lifecycle.harvest")

// Result is the workflow's return value.
type Result struct {
	WebsetID        string                `json:"websetId"`
	Items           []projection.Item     `json:"items"`
	ItemCount       int                   `json:"itemCount"`
	SearchProgress  upstream.SearchProgress `json:"searchProgress"`
	EnrichmentCount int                   `json:"enrichmentCount"`
	DurationMs      int64                 `json:"duration"`
	Steps           []workflow.StepRecord `json:"steps"`
	TimedOut        bool                  `json:"timedOut,omitempty"`
}

// Register adds lifecycle.harvest to reg.
func Register(reg *workflow.Registry) {
	reg.Register(Name, Run)
}

// Run implements lifecycle.harvest: validates {query, entity}; creates one
// webset with search + optional criteria + optional enrichments; polls to
// idle; collects items up to 2*count; optionally deletes the webset;
// returns a summary. Partial-item results on timeout are allowed.
func Run(ctx context.Context, rc *workflow.RunContext) (any, error) {
	query, err := workflow.RequireString(rc.Args, "query")
	if err != nil {
		return nil, err
	}
	entityArg, err := workflow.RequireMap(rc.Args, "entity")
	if err != nil {
		return nil, err
	}
	entityType, _ := entityArg["type"].(string)
	if entityType == "" {
		return nil, workflowerr.New(workflowerr.KindValidation, "validate", "entity.type is required")
	}
	criteria := stringSlice(rc.Args["criteria"])
	enrichments := enrichmentSpecs(rc.Args["enrichments"])
	count := workflow.OptionalCount(rc.Args, 10)
	cleanup := workflow.OptionalBool(rc.Args, "cleanup", false)

	if rc.Cancelled() {
		return nil, nil
	}

	var webset upstream.Webset
	if err := rc.Steps.Track("create", func() error {
		w, err := rc.Client.CreateWebset(ctx, upstream.CreateWebsetParams{
			Query:       query,
			Entity:      upstream.EntitySpec{Type: entityType},
			Criteria:    criteria,
			Count:       count,
			Enrichments: enrichments,
		})
		webset = w
		return err
	}); err != nil {
		return nil, err
	}
	rc.OwnWebset(webset.ID)

	if rc.Cancelled() {
		rc.CancelOwnedWebsets(ctx)
		return nil, nil
	}

	var poll workflow.PollResult
	if err := rc.Steps.Track("poll", func() error {
		p, err := workflow.PollToIdle(ctx, rc, webset.ID)
		poll = p
		return err
	}); err != nil {
		return nil, err
	}
	if poll.Cancelled {
		return nil, nil
	}

	var items []upstream.Item
	if !poll.TimedOut {
		if err := rc.Steps.Track("collect", func() error {
			its, err := workflow.CollectItems(ctx, rc, webset.ID, count)
			items = its
			return err
		}); err != nil {
			return nil, err
		}
	}

	if rc.Cancelled() {
		rc.CancelOwnedWebsets(ctx)
		return nil, nil
	}

	if cleanup {
		_ = rc.Steps.Track("cleanup", func() error {
			return rc.Client.DeleteWebset(ctx, webset.ID)
		})
	}

	projected := make([]projection.Item, 0, len(items))
	for _, it := range items {
		projected = append(projected, projection.ProjectItem(it))
	}

	search, _ := poll.Webset.LatestSearch()

	var total int64
	for _, s := range rc.Steps.Records() {
		total += s.DurationMs
	}

	return Result{
		WebsetID:        webset.ID,
		Items:           projected,
		ItemCount:       len(projected),
		SearchProgress:  search.Progress,
		EnrichmentCount: len(webset.Enrichments),
		DurationMs:      total,
		Steps:           rc.Steps.Records(),
		TimedOut:        poll.TimedOut,
	}, nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func enrichmentSpecs(v any) []upstream.EnrichmentSpec {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]upstream.EnrichmentSpec, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		desc, _ := m["description"].(string)
		format, _ := m["format"].(string)
		out = append(out, upstream.EnrichmentSpec{Description: desc, Format: upstream.EnrichmentFormat(format)})
	}
	return out
}
