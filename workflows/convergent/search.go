// Package convergent implements the convergent.search workflow:
// run 2-5 queries as parallel websets, then deduplicate entities across
// them by exact URL match, falling back to fuzzy name match.
package convergent

import (
	"context"

	"github.com/websets-labs/orchestrator/concurrency"
	"github.com/websets-labs/orchestrator/fuzzy"
	"github.com/websets-labs/orchestrator/projection"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflow"
)

// Name is the registered workflow type name.
const Name = workflow.Name("convergent.search")

// Register adds convergent.search to reg.
func Register(reg *workflow.Registry) {
	reg.Register(Name, Run)
}

// Entity is one deduplicated entity surfaced in Intersection or Unique.
type Entity struct {
	Name       string   `json:"name"`
	URL        string   `json:"url"`
	Item       projection.Item `json:"item"`
	FoundIn    []int    `json:"foundIn"`
	Confidence float64  `json:"confidence,omitempty"`
}

// Result is convergent.search's return value.
type Result struct {
	Intersection []Entity              `json:"intersection"`
	Unique       [][]Entity            `json:"unique"`
	OverlapMatrix [][]int              `json:"overlapMatrix"`
	WebsetIDs    []string              `json:"websetIds"`
	Steps        []workflow.StepRecord `json:"steps"`
}

type branch struct {
	query  string
	webset upstream.Webset
	items  []upstream.Item
}

// Run implements convergent.search.
func Run(ctx context.Context, rc *workflow.RunContext) (any, error) {
	queries, err := workflow.RequireStringSlice(rc.Args, "queries", 2, 5)
	if err != nil {
		return nil, err
	}
	entityArg, err := workflow.RequireMap(rc.Args, "entity")
	if err != nil {
		return nil, err
	}
	entityType, _ := entityArg["type"].(string)
	criteria := stringSlice(rc.Args["criteria"])
	count := workflow.OptionalCount(rc.Args, 10)
	threshold := optionalFloat(rc.Args, "nameThreshold", fuzzy.DefaultNameThreshold)

	if rc.Cancelled() {
		return nil, nil
	}

	branches := make([]branch, len(queries))
	sem := concurrency.New(len(queries))

	fns := make([]func(ctx context.Context) error, len(queries))
	for i, q := range queries {
		i, q := i, q
		fns[i] = func(ctx context.Context) error {
			w, err := rc.Client.CreateWebset(ctx, upstream.CreateWebsetParams{
				Query:    q,
				Entity:   upstream.EntitySpec{Type: entityType},
				Criteria: criteria,
				Count:    count,
			})
			if err != nil {
				return err
			}
			rc.OwnWebset(w.ID)
			branches[i] = branch{query: q, webset: w}
			return nil
		}
	}
	if err := rc.Steps.Track("create", func() error { return sem.Run(ctx, fns...) }); err != nil {
		return nil, err
	}

	if rc.Cancelled() {
		rc.CancelOwnedWebsets(ctx)
		return nil, nil
	}

	pollFns := make([]func(ctx context.Context) error, len(branches))
	for i := range branches {
		i := i
		pollFns[i] = func(ctx context.Context) error {
			res, err := workflow.PollToIdle(ctx, rc, branches[i].webset.ID)
			if err != nil {
				return err
			}
			branches[i].webset = res.Webset
			return nil
		}
	}
	if err := rc.Steps.Track("poll", func() error { return sem.Run(ctx, pollFns...) }); err != nil {
		return nil, err
	}

	if rc.Cancelled() {
		rc.CancelOwnedWebsets(ctx)
		return nil, nil
	}

	collectFns := make([]func(ctx context.Context) error, len(branches))
	for i := range branches {
		i := i
		collectFns[i] = func(ctx context.Context) error {
			items, err := workflow.CollectItems(ctx, rc, branches[i].webset.ID, count)
			if err != nil {
				return err
			}
			branches[i].items = items
			return nil
		}
	}
	if err := rc.Steps.Track("collect", func() error { return sem.Run(ctx, collectFns...) }); err != nil {
		return nil, err
	}

	if rc.Cancelled() {
		rc.CancelOwnedWebsets(ctx)
		return nil, nil
	}

	intersection, unique, overlap := dedupe(branches, threshold)

	websetIDs := make([]string, len(branches))
	for i, b := range branches {
		websetIDs[i] = b.webset.ID
	}

	return Result{
		Intersection:  intersection,
		Unique:        unique,
		OverlapMatrix: overlap,
		WebsetIDs:     websetIDs,
		Steps:         rc.Steps.Records(),
	}, nil
}

// occurrence tracks which query indices produced a canonical entity.
type occurrence struct {
	entity  Entity
	foundIn map[int]bool
}

func dedupe(branches []branch, threshold float64) ([]Entity, [][]Entity, [][]int) {
	n := len(branches)
	overlap := make([][]int, n)
	for i := range overlap {
		overlap[i] = make([]int, n)
	}

	var canon []*occurrence
	// byURL/byName index into canon for quick lookup.
	byURL := make(map[string]*occurrence)

	for qi, b := range branches {
		for _, it := range b.items {
			name := projection.EntityName(it)
			url := it.URL

			var match *occurrence
			if url != "" {
				if o, ok := byURL[url]; ok {
					match = o
				}
			}
			// EntityName's "unknown" fallback carries no identity, so it
			// never drives a fuzzy name match.
			if match == nil && name != "" && name != "unknown" {
				for _, o := range canon {
					if fuzzy.Matches(o.entity.Name, name, threshold) {
						match = o
						break
					}
				}
			}

			if match == nil {
				match = &occurrence{
					entity:  Entity{Name: name, URL: url, Item: projection.ProjectItem(it)},
					foundIn: map[int]bool{},
				}
				canon = append(canon, match)
				if url != "" {
					byURL[url] = match
				}
			}
			match.foundIn[qi] = true
		}
	}

	// Compute overlap matrix: entities found in both qi and qj.
	for _, o := range canon {
		for qi := range branches {
			if !o.foundIn[qi] {
				continue
			}
			for qj := range branches {
				if qi == qj || !o.foundIn[qj] {
					continue
				}
				overlap[qi][qj]++
			}
		}
	}

	var intersection []Entity
	unique := make([][]Entity, n)
	for _, o := range canon {
		foundInList := make([]int, 0, len(o.foundIn))
		for qi := range branches {
			if o.foundIn[qi] {
				foundInList = append(foundInList, qi)
			}
		}
		e := o.entity
		e.FoundIn = foundInList
		if len(foundInList) >= 2 {
			// Confidence counts corroborating queries beyond the first
			// sighting, normalized by the total query count.
			e.Confidence = float64(len(foundInList)-1) / float64(n)
			intersection = append(intersection, e)
		} else if len(foundInList) == 1 {
			unique[foundInList[0]] = append(unique[foundInList[0]], e)
		}
	}

	return intersection, unique, overlap
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

func optionalFloat(args map[string]any, key string, def float64) float64 {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}
