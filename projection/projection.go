// Package projection reduces verbose upstream objects to decision-relevant
// shapes at the agent boundary. Internal workflow code keeps
// using the raw upstream.Item (it carries evaluation metadata needed for
// classification by qd.winnow and semantic.cron); only the exit boundary
// projects.
package projection

import "github.com/websets-labs/orchestrator/upstream"

// Evaluation is the projected form of upstream.Evaluation.
type Evaluation struct {
	Criterion string `json:"criterion"`
	Satisfied string `json:"satisfied"`
}

// Enrichment is the projected form of upstream.EnrichmentResult: it drops
// the enrichment id and status, keeping only what a caller can act on.
type Enrichment struct {
	Description string                    `json:"description"`
	Format      upstream.EnrichmentFormat `json:"format"`
	Result      []string                  `json:"result"`
}

// Item is the projected, agent-facing form of upstream.Item. Content,
// reasoning chains, reference lists, enrichment ids/statuses, and internal
// timestamps are stripped.
type Item struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	EntityType  string       `json:"entityType"`
	Description string       `json:"description"`
	Evaluations []Evaluation `json:"evaluations"`
	Enrichments []Enrichment `json:"enrichments"`
}

// Envelope is the mandatory bulk-items response shape.
type Envelope struct {
	Data     []Item `json:"data"`
	Total    int    `json:"total"`
	Included int    `json:"included"`
	Excluded int    `json:"excluded"`
}

// EntityName extracts a display name from an item's typed properties using
// a fixed precedence order: company.name, then person.name,
// article.title, researchPaper.title, custom.title, description, and
// finally the literal "unknown".
func EntityName(it upstream.Item) string {
	p := it.Properties
	switch {
	case p.Company.Name != "":
		return p.Company.Name
	case p.Person.Name != "":
		return p.Person.Name
	case p.Article.Title != "":
		return p.Article.Title
	case p.ResearchPaper.Title != "":
		return p.ResearchPaper.Title
	case p.Custom.Title != "":
		return p.Custom.Title
	case it.Description != "":
		return it.Description
	default:
		return "unknown"
	}
}

// ProjectItem projects a raw upstream item to its agent-facing form. It is
// a pure function of its input: projecting an item whose fields already
// carry only projection-compatible data yields the same output again.
func ProjectItem(it upstream.Item) Item {
	evals := make([]Evaluation, 0, len(it.Evaluations))
	for _, e := range it.Evaluations {
		evals = append(evals, Evaluation{Criterion: e.Criterion, Satisfied: e.Satisfied})
	}
	enrs := make([]Enrichment, 0, len(it.Enrichments))
	for _, e := range it.Enrichments {
		enrs = append(enrs, Enrichment{Description: e.Description, Format: e.Format, Result: e.Result})
	}
	return Item{
		ID:          it.ID,
		Name:        EntityName(it),
		URL:         it.URL,
		EntityType:  it.Properties.Type,
		Description: it.Description,
		Evaluations: evals,
		Enrichments: enrs,
	}
}

// HasSatisfiedEvaluation reports whether an item passes the permissive
// inclusion pre-filter used both by bulk-item projection and by semantic
// cron's shape evaluation: items with zero evaluations pass;
// items with at least one evaluation must have at least one "yes".
func HasSatisfiedEvaluation(it upstream.Item) bool {
	if len(it.Evaluations) == 0 {
		return true
	}
	for _, e := range it.Evaluations {
		if e.Satisfied == "yes" {
			return true
		}
	}
	return false
}

// ProjectItems projects a slice of raw items into the mandatory bulk
// envelope, filtering out items with no satisfied evaluation.
// Items with zero evaluations pass.
func ProjectItems(items []upstream.Item) Envelope {
	env := Envelope{Total: len(items)}
	for _, it := range items {
		if !HasSatisfiedEvaluation(it) {
			env.Excluded++
			continue
		}
		env.Data = append(env.Data, ProjectItem(it))
		env.Included++
	}
	return env
}
