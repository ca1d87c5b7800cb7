package research

import (
	"context"
	"strings"

	"github.com/websets-labs/orchestrator/concurrency"
	"github.com/websets-labs/orchestrator/projection"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflow"
)

// VerifiedCollectionName is the registered workflow type name.
const VerifiedCollectionName = workflow.Name("research.verifiedCollection")

// DefaultResearchConcurrency bounds concurrent per-item research calls.
const DefaultResearchConcurrency = 3

// RegisterVerifiedCollection adds research.verifiedCollection to reg.
func RegisterVerifiedCollection(reg *workflow.Registry) {
	reg.Register(VerifiedCollectionName, RunVerifiedCollection)
}

// VerifiedItem is a collected item enriched with its per-item research
// outcome, if one was attempted.
type VerifiedItem struct {
	projection.Item
	Research      *ItemResearch `json:"research,omitempty"`
	ResearchError string        `json:"researchError,omitempty"`
}

// ItemResearch carries the per-item deep-research outcome.
type ItemResearch struct {
	ResearchID string `json:"researchId"`
	Output     any    `json:"output,omitempty"`
	Text       string `json:"text,omitempty"`
}

// VerifiedCollectionResult is research.verifiedCollection's return value.
type VerifiedCollectionResult struct {
	WebsetID string                `json:"websetId"`
	Items    []VerifiedItem        `json:"items"`
	Steps    []workflow.StepRecord `json:"steps"`
	TimedOut bool                  `json:"timedOut,omitempty"`
}

// RunVerifiedCollection implements research.verifiedCollection: create
// webset -> idle -> collect up to N items -> for each of the first
// researchLimit items, issue a per-item research job bounded by a
// semaphore of researchConcurrency concurrent calls (3 by default).
// Research failures are captured per-item,
// never fatal.
func RunVerifiedCollection(ctx context.Context, rc *workflow.RunContext) (any, error) {
	query, err := workflow.RequireString(rc.Args, "query")
	if err != nil {
		return nil, err
	}
	entityArg, err := workflow.RequireMap(rc.Args, "entity")
	if err != nil {
		return nil, err
	}
	entityType, _ := entityArg["type"].(string)
	promptTemplate, err := workflow.RequireString(rc.Args, "promptTemplate")
	if err != nil {
		return nil, err
	}
	count := workflow.OptionalCount(rc.Args, 10)
	researchLimit := workflow.OptionalInt(rc.Args, "researchLimit", count)
	concurrencyLimit := workflow.OptionalInt(rc.Args, "researchConcurrency", DefaultResearchConcurrency)

	if rc.Cancelled() {
		return nil, nil
	}

	var w upstream.Webset
	if err := rc.Steps.Track("create", func() error {
		webset, err := rc.Client.CreateWebset(ctx, upstream.CreateWebsetParams{
			Query:  query,
			Entity: upstream.EntitySpec{Type: entityType},
			Count:  count,
		})
		w = webset
		return err
	}); err != nil {
		return nil, err
	}
	rc.OwnWebset(w.ID)

	if rc.Cancelled() {
		rc.CancelOwnedWebsets(ctx)
		return nil, nil
	}

	var poll workflow.PollResult
	if err := rc.Steps.Track("poll", func() error {
		p, err := workflow.PollToIdle(ctx, rc, w.ID)
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
			its, err := workflow.CollectItems(ctx, rc, w.ID, count)
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

	verified := make([]VerifiedItem, len(items))
	for i, it := range items {
		verified[i] = VerifiedItem{Item: projection.ProjectItem(it)}
	}

	researchN := researchLimit
	if researchN > len(items) {
		researchN = len(items)
	}

	if researchN > 0 {
		sem := concurrency.New(concurrencyLimit)
		fns := make([]func(ctx context.Context) error, researchN)
		for i := 0; i < researchN; i++ {
			i := i
			it := items[i]
			fns[i] = func(ctx context.Context) error {
				if rc.Cancelled() {
					return nil
				}
				job, err := rc.Client.CreateResearch(ctx, upstream.CreateResearchParams{
					Instructions: renderTemplate(promptTemplate, it),
				})
				if err != nil {
					verified[i].ResearchError = err.Error()
					return nil // per-item research failures are never fatal
				}
				verified[i].Research = &ItemResearch{ResearchID: job.ID, Output: job.Output, Text: job.Text}
				return nil
			}
		}
		if err := rc.Steps.Track("research", func() error { return sem.Run(ctx, fns...) }); err != nil {
			return nil, err
		}
	}

	return VerifiedCollectionResult{
		WebsetID: w.ID,
		Items:    verified,
		Steps:    rc.Steps.Records(),
		TimedOut: poll.TimedOut,
	}, nil
}

// renderTemplate substitutes {{name}}, {{url}}, {{description}} in tmpl
// from it.
func renderTemplate(tmpl string, it upstream.Item) string {
	r := strings.NewReplacer(
		"{{name}}", projection.EntityName(it),
		"{{url}}", it.URL,
		"{{description}}", it.Description,
	)
	return r.Replace(tmpl)
}
