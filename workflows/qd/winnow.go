// Package qd implements the qd.winnow (Quality-Diversity Winnowing)
// workflow: niche classification from search criteria,
// per-item fitness scoring from enrichment results, elite selection by
// strategy, aggregate quality metrics, and per-criterion descriptor
// feedback.
package qd

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/websets-labs/orchestrator/projection"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflow"
)

// Name is the registered workflow type name.
const Name = workflow.Name("qd.winnow")

// Register adds qd.winnow to reg.
func Register(reg *workflow.Registry) {
	reg.Register(Name, Run)
}

// Strategy selects which items the workflow surfaces as "elites".
type Strategy string

const (
	StrategyDiverse     Strategy = "diverse"
	StrategyAllCriteria Strategy = "all-criteria"
	StrategyAnyCriteria Strategy = "any-criteria"
)

// DescriptorLabel classifies a criterion's discriminating power.
type DescriptorLabel string

const (
	DescriptorTooStrict         DescriptorLabel = "too-strict"
	DescriptorNotDiscriminating DescriptorLabel = "not-discriminating"
	DescriptorGood              DescriptorLabel = "good-discriminator"
)

// Elite is one selected item paired with its niche and fitness.
type Elite struct {
	projection.Item
	Niche   string  `json:"niche"`
	Fitness float64 `json:"fitness"`
}

// Descriptor is one criterion's quality feedback.
type Descriptor struct {
	Criterion   string          `json:"criterion"`
	SuccessRate float64         `json:"successRate"`
	Label       DescriptorLabel `json:"label"`
}

// QualityMetrics is the aggregate quality summary.
type QualityMetrics struct {
	Coverage   float64 `json:"coverage"`
	AvgFitness float64 `json:"avgFitness"`
	Diversity  float64 `json:"diversity"`
	Stringency float64 `json:"stringency"`
}

// Result is qd.winnow's return value.
type Result struct {
	WebsetID    string                `json:"websetId"`
	Elites      []Elite               `json:"elites"`
	Metrics     QualityMetrics        `json:"metrics"`
	Descriptors []Descriptor          `json:"descriptors"`
	Steps       []workflow.StepRecord `json:"steps"`
	TimedOut    bool                  `json:"timedOut,omitempty"`
}

// Run implements qd.winnow.
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
	criteria, err := workflow.RequireStringSlice(rc.Args, "criteria", 1, 64)
	if err != nil {
		return nil, err
	}
	enrichments := enrichmentSpecs(rc.Args["enrichments"])
	count := workflow.OptionalCount(rc.Args, 20)
	strategy := Strategy(workflow.OptionalString(rc.Args, "selectionStrategy", string(StrategyDiverse)))

	if rc.Cancelled() {
		return nil, nil
	}

	var w upstream.Webset
	if err := rc.Steps.Track("create", func() error {
		webset, err := rc.Client.CreateWebset(ctx, upstream.CreateWebsetParams{
			Query:       query,
			Entity:      upstream.EntitySpec{Type: entityType},
			Criteria:    criteria,
			Count:       count,
			Enrichments: enrichments,
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

	elites, metrics := winnow(items, criteria, strategy)
	metrics.Stringency = stringency(poll.Webset)
	descriptors := descriptorFeedback(poll.Webset)

	return Result{
		WebsetID:    w.ID,
		Elites:      elites,
		Metrics:     metrics,
		Descriptors: descriptors,
		Steps:       rc.Steps.Records(),
		TimedOut:    poll.TimedOut,
	}, nil
}

// Niche builds the comma-separated boolean niche key for an item against
// the declared criteria, in order: position i is "1" iff the item has an
// evaluation for criteria[i] with satisfied == "yes". Items
// missing an evaluation for a criterion contribute "0".
func Niche(it upstream.Item, criteria []string) string {
	bits := make([]string, len(criteria))
	for i, crit := range criteria {
		satisfied := false
		for _, e := range it.Evaluations {
			if e.Criterion == crit && e.Satisfied == "yes" {
				satisfied = true
				break
			}
		}
		if satisfied {
			bits[i] = "1"
		} else {
			bits[i] = "0"
		}
	}
	return strings.Join(bits, ",")
}

// Fitness computes an item's fitness as the arithmetic mean of its
// completed enrichments' sub-scores. 0 if there are no
// completed enrichments.
func Fitness(it upstream.Item) float64 {
	var total float64
	var n int
	for _, e := range it.Enrichments {
		if e.Status != upstream.EnrichmentStatusCompleted {
			continue
		}
		total += subScore(e)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func subScore(e upstream.EnrichmentResult) float64 {
	first := ""
	if len(e.Result) > 0 {
		first = e.Result[0]
	}
	switch e.Format {
	case upstream.FormatNumber:
		v, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
		if err != nil {
			return 0
		}
		return v
	case upstream.FormatOptions:
		for _, r := range e.Result {
			if strings.TrimSpace(r) != "" {
				return 1
			}
		}
		return 0
	case upstream.FormatText:
		if strings.TrimSpace(first) != "" {
			return 1
		}
		return 0
	case upstream.FormatDate, upstream.FormatEmail, upstream.FormatPhone, upstream.FormatURL:
		if strings.TrimSpace(first) != "" {
			return 1
		}
		return 0
	default:
		if strings.TrimSpace(first) != "" {
			return 1
		}
		return 0
	}
}

type nicheEntry struct {
	item    upstream.Item
	fitness float64
}

func winnow(items []upstream.Item, criteria []string, strategy Strategy) ([]Elite, QualityMetrics) {
	niches := make(map[string][]nicheEntry)
	for _, it := range items {
		key := Niche(it, criteria)
		niches[key] = append(niches[key], nicheEntry{item: it, fitness: Fitness(it)})
	}

	totalNiches := int(math.Pow(2, float64(len(criteria))))

	switch strategy {
	case StrategyAllCriteria:
		key := onesKey(len(criteria))
		entries := niches[key]
		elites := eliteSlice(entries, key)
		metrics := computeMetrics(niches, elites, totalNiches)
		return elites, metrics
	case StrategyAnyCriteria:
		zeros := zerosKey(len(criteria))
		var elites []Elite
		for key, entries := range niches {
			if key == zeros {
				continue
			}
			elites = append(elites, eliteSlice(entries, key)...)
		}
		sortByFitnessDesc(elites)
		metrics := computeMetrics(niches, elites, totalNiches)
		return elites, metrics
	default: // diverse
		var elites []Elite
		for key, entries := range niches {
			elites = append(elites, eliteSlice(entries, key)...)
		}
		sortByFitnessDesc(elites)
		metrics := computeMetrics(niches, elites, totalNiches)
		return elites, metrics
	}
}

// eliteSlice returns the single highest-fitness entry for a niche as a
// one-element Elite slice (diverse/any-criteria pick one elite per niche).
func eliteSlice(entries []nicheEntry, key string) []Elite {
	if len(entries) == 0 {
		return nil
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.fitness > best.fitness {
			best = e
		}
	}
	return []Elite{{Item: projection.ProjectItem(best.item), Niche: key, Fitness: best.fitness}}
}

func sortByFitnessDesc(elites []Elite) {
	for i := 1; i < len(elites); i++ {
		for j := i; j > 0 && elites[j].Fitness > elites[j-1].Fitness; j-- {
			elites[j], elites[j-1] = elites[j-1], elites[j]
		}
	}
}

func onesKey(n int) string {
	bits := make([]string, n)
	for i := range bits {
		bits[i] = "1"
	}
	return strings.Join(bits, ",")
}

func zerosKey(n int) string {
	bits := make([]string, n)
	for i := range bits {
		bits[i] = "0"
	}
	return strings.Join(bits, ",")
}

func computeMetrics(niches map[string][]nicheEntry, elites []Elite, totalNiches int) QualityMetrics {
	populated := len(niches)
	coverage := 0.0
	if totalNiches > 0 {
		coverage = float64(populated) / float64(totalNiches)
	}

	var avgFitness float64
	if len(elites) > 0 {
		var sum float64
		for _, e := range elites {
			sum += e.Fitness
		}
		avgFitness = sum / float64(len(elites))
	}

	diversity := shannonDiversity(niches, totalNiches)

	return QualityMetrics{
		Coverage:   coverage,
		AvgFitness: avgFitness,
		Diversity:  diversity,
	}
}

// stringency aggregates found/analyzed across all of a webset's
// searches, a diagnostic for criterion difficulty.
func stringency(w upstream.Webset) float64 {
	var found, analyzed int
	for _, s := range w.Searches {
		found += s.Progress.Found
		analyzed += s.Progress.Analyzed
	}
	if analyzed == 0 {
		return 0
	}
	return float64(found) / float64(analyzed)
}

// shannonDiversity returns the Shannon entropy of the niche item-count
// distribution, normalized by log2(totalNiches) so the result sits in
// [0,1] and equals 1 iff counts are uniform across every niche.
func shannonDiversity(niches map[string][]nicheEntry, totalNiches int) float64 {
	if totalNiches <= 1 || len(niches) == 0 {
		return 0
	}
	var total int
	for _, entries := range niches {
		total += len(entries)
	}
	if total == 0 {
		return 0
	}

	var entropy float64
	for _, entries := range niches {
		p := float64(len(entries)) / float64(total)
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}

	maxEntropy := math.Log2(float64(totalNiches))
	if maxEntropy == 0 {
		return 0
	}
	return entropy / maxEntropy
}

func descriptorFeedback(w upstream.Webset) []Descriptor {
	search, ok := w.LatestSearch()
	if !ok {
		return nil
	}
	out := make([]Descriptor, 0, len(search.Criteria))
	for _, c := range search.Criteria {
		label := DescriptorGood
		switch {
		case c.SuccessRate < 5:
			label = DescriptorTooStrict
		case c.SuccessRate > 95:
			label = DescriptorNotDiscriminating
		}
		out = append(out, Descriptor{Criterion: c.Description, SuccessRate: c.SuccessRate, Label: label})
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
