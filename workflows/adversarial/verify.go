// Package adversarial implements the adversarial.verify workflow: two
// sequential searches, one for supporting evidence and one for
// disconfirming evidence, with an optional synthesis research call.
package adversarial

import (
	"context"
	"fmt"
	"strings"

	"github.com/websets-labs/orchestrator/projection"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflow"
)

// Name is the registered workflow type name.
const Name = workflow.Name("adversarial.verify")

// Register adds adversarial.verify to reg.
func Register(reg *workflow.Registry) {
	reg.Register(Name, Run)
}

// Result is adversarial.verify's return value.
type Result struct {
	SupportingWebsetID    string                `json:"supportingWebsetId"`
	DisconfirmingWebsetID string                `json:"disconfirmingWebsetId"`
	Supporting            []projection.Item     `json:"supporting"`
	Disconfirming         []projection.Item     `json:"disconfirming"`
	Synthesis             *SynthesisResult      `json:"synthesis,omitempty"`
	Steps                 []workflow.StepRecord `json:"steps"`
}

// SynthesisResult carries the optional deep-research synthesis outcome.
type SynthesisResult struct {
	ResearchID string `json:"researchId"`
	Output     any    `json:"output,omitempty"`
	Text       string `json:"text,omitempty"`
}

// Run implements adversarial.verify.
func Run(ctx context.Context, rc *workflow.RunContext) (any, error) {
	claim, err := workflow.RequireString(rc.Args, "claim")
	if err != nil {
		return nil, err
	}
	entityArg, err := workflow.RequireMap(rc.Args, "entity")
	if err != nil {
		return nil, err
	}
	entityType, _ := entityArg["type"].(string)
	count := workflow.OptionalCount(rc.Args, 10)
	synthesize := workflow.OptionalBool(rc.Args, "synthesize", false)

	supportQuery := workflow.OptionalString(rc.Args, "supportingQuery", "evidence supporting: "+claim)
	disconfirmQuery := workflow.OptionalString(rc.Args, "disconfirmingQuery", "evidence against: "+claim)

	supporting, supportingWebset, cancelled, err := runSearch(ctx, rc, "supporting", supportQuery, entityType, count)
	if err != nil {
		return nil, err
	}
	if cancelled {
		return nil, nil
	}

	disconfirming, disconfirmingWebset, cancelled, err := runSearch(ctx, rc, "disconfirming", disconfirmQuery, entityType, count)
	if err != nil {
		return nil, err
	}
	if cancelled {
		return nil, nil
	}

	res := Result{
		SupportingWebsetID:    supportingWebset.ID,
		DisconfirmingWebsetID: disconfirmingWebset.ID,
		Supporting:            projectAll(supporting),
		Disconfirming:         projectAll(disconfirming),
		Steps:                 rc.Steps.Records(),
	}

	if !synthesize {
		return res, nil
	}

	if rc.Cancelled() {
		rc.CancelOwnedWebsets(ctx)
		return nil, nil
	}

	var job upstream.ResearchJob
	if err := rc.Steps.Track("synthesize", func() error {
		j, err := rc.Client.CreateResearch(ctx, upstream.CreateResearchParams{
			Instructions: buildSynthesisPrompt(claim, supporting, disconfirming),
		})
		job = j
		return err
	}); err != nil {
		return nil, err
	}

	res.Synthesis = &SynthesisResult{ResearchID: job.ID, Output: job.Output, Text: job.Text}
	res.Steps = rc.Steps.Records()
	return res, nil
}

func runSearch(ctx context.Context, rc *workflow.RunContext, step, query, entityType string, count int) ([]upstream.Item, upstream.Webset, bool, error) {
	if rc.Cancelled() {
		return nil, upstream.Webset{}, true, nil
	}

	var w upstream.Webset
	if err := rc.Steps.Track(step+".create", func() error {
		webset, err := rc.Client.CreateWebset(ctx, upstream.CreateWebsetParams{
			Query:  query,
			Entity: upstream.EntitySpec{Type: entityType},
			Count:  count,
		})
		w = webset
		return err
	}); err != nil {
		return nil, upstream.Webset{}, false, err
	}
	rc.OwnWebset(w.ID)

	var poll workflow.PollResult
	if err := rc.Steps.Track(step+".poll", func() error {
		p, err := workflow.PollToIdle(ctx, rc, w.ID)
		poll = p
		return err
	}); err != nil {
		return nil, upstream.Webset{}, false, err
	}
	if poll.Cancelled {
		return nil, upstream.Webset{}, true, nil
	}

	var items []upstream.Item
	if !poll.TimedOut {
		if err := rc.Steps.Track(step+".collect", func() error {
			its, err := workflow.CollectItems(ctx, rc, w.ID, count)
			items = its
			return err
		}); err != nil {
			return nil, upstream.Webset{}, false, err
		}
	}

	return items, w, false, nil
}

func buildSynthesisPrompt(claim string, supporting, disconfirming []upstream.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim under review: %s\n\n", claim)
	b.WriteString("Supporting evidence summaries:\n")
	for _, it := range supporting {
		fmt.Fprintf(&b, "- %s (%s): %s\n", projection.EntityName(it), it.URL, it.Description)
	}
	b.WriteString("\nDisconfirming evidence summaries:\n")
	for _, it := range disconfirming {
		fmt.Fprintf(&b, "- %s (%s): %s\n", projection.EntityName(it), it.URL, it.Description)
	}
	b.WriteString("\nWeigh both sides and issue a structured verdict.")
	return b.String()
}

func projectAll(items []upstream.Item) []projection.Item {
	out := make([]projection.Item, 0, len(items))
	for _, it := range items {
		out = append(out, projection.ProjectItem(it))
	}
	return out
}
