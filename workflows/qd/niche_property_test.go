package qd_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflows/qd"
)

type classifiedCase struct {
	criteria []string
	item     upstream.Item
}

// genClassifiedCase produces 1-6 distinct criteria together with an item
// carrying one evaluation per criterion with a random verdict.
func genClassifiedCase() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1, 6),
		gen.SliceOfN(6, gen.OneConstOf("yes", "no", "unclear")),
	).Map(func(vals []any) classifiedCase {
		n := vals[0].(int)
		verdicts := vals[1].([]string)
		criteria := make([]string, n)
		evals := make([]upstream.Evaluation, n)
		for i := 0; i < n; i++ {
			criteria[i] = fmt.Sprintf("criterion-%d", i)
			evals[i] = upstream.Evaluation{Criterion: criteria[i], Satisfied: verdicts[i]}
		}
		return classifiedCase{criteria: criteria, item: upstream.Item{ID: "item_x", Evaluations: evals}}
	})
}

func TestNicheKeyShapeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("niche key has one 0/1 bit per criterion", prop.ForAll(
		func(tc classifiedCase) bool {
			bits := strings.Split(qd.Niche(tc.item, tc.criteria), ",")
			if len(bits) != len(tc.criteria) {
				return false
			}
			for _, b := range bits {
				if b != "0" && b != "1" {
					return false
				}
			}
			return true
		},
		genClassifiedCase(),
	))

	properties.Property("a bit is 1 exactly when that criterion's evaluation is yes", prop.ForAll(
		func(tc classifiedCase) bool {
			bits := strings.Split(qd.Niche(tc.item, tc.criteria), ",")
			for i, c := range tc.criteria {
				want := "0"
				for _, e := range tc.item.Evaluations {
					if e.Criterion == c && e.Satisfied == "yes" {
						want = "1"
						break
					}
				}
				if bits[i] != want {
					return false
				}
			}
			return true
		},
		genClassifiedCase(),
	))

	properties.Property("a criterion with no evaluation contributes 0", prop.ForAll(
		func(tc classifiedCase) bool {
			extended := append(append([]string(nil), tc.criteria...), "criterion-unevaluated")
			bits := strings.Split(qd.Niche(tc.item, extended), ",")
			return bits[len(bits)-1] == "0"
		},
		genClassifiedCase(),
	))

	properties.TestingRun(t)
}

func TestFitnessPresenceFormatsBoundedProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	presenceFormats := []upstream.EnrichmentFormat{
		upstream.FormatText, upstream.FormatOptions, upstream.FormatDate,
		upstream.FormatEmail, upstream.FormatPhone, upstream.FormatURL,
	}

	properties.Property("fitness over presence-style enrichments stays in [0,1]", prop.ForAll(
		func(formatIdx []int, results []string) bool {
			enrs := make([]upstream.EnrichmentResult, len(formatIdx))
			for i, fi := range formatIdx {
				var result []string
				if i < len(results) && results[i] != "" {
					result = []string{results[i]}
				}
				enrs[i] = upstream.EnrichmentResult{
					Format: presenceFormats[fi%len(presenceFormats)],
					Status: upstream.EnrichmentStatusCompleted,
					Result: result,
				}
			}
			f := qd.Fitness(upstream.Item{ID: "item_y", Enrichments: enrs})
			return f >= 0 && f <= 1
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("pending and cancelled enrichments never contribute", prop.ForAll(
		func(n int) bool {
			enrs := make([]upstream.EnrichmentResult, n)
			for i := range enrs {
				status := upstream.EnrichmentStatusPending
				if i%2 == 1 {
					status = upstream.EnrichmentStatusCancelled
				}
				enrs[i] = upstream.EnrichmentResult{
					Format: upstream.FormatNumber,
					Status: status,
					Result: []string{"99"},
				}
			}
			return qd.Fitness(upstream.Item{ID: "item_z", Enrichments: enrs}) == 0
		},
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}
