package semanticcron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvalConditionExists(t *testing.T) {
	values := map[string][]string{"headcount": {"42"}}
	require.True(t, evalCondition(Condition{Field: "headcount", Operator: OpExists}, values))
	require.False(t, evalCondition(Condition{Field: "missing", Operator: OpExists}, values))
}

func TestEvalConditionNumeric(t *testing.T) {
	values := map[string][]string{"n": {"10"}}
	require.True(t, evalCondition(Condition{Field: "n", Operator: OpGTE, Value: 10.0}, values))
	require.True(t, evalCondition(Condition{Field: "n", Operator: OpGT, Value: 5.0}, values))
	require.False(t, evalCondition(Condition{Field: "n", Operator: OpLT, Value: 5.0}, values))
	require.True(t, evalCondition(Condition{Field: "n", Operator: OpEQ, Value: 10.0}, values))

	unparseable := map[string][]string{"n": {"not-a-number"}}
	require.False(t, evalCondition(Condition{Field: "n", Operator: OpGTE, Value: 1.0}, unparseable))
}

func TestEvalConditionContainsCaseInsensitive(t *testing.T) {
	values := map[string][]string{"desc": {"A Leading AI Company"}}
	require.True(t, evalCondition(Condition{Field: "desc", Operator: OpContains, Value: "leading ai"}, values))
	require.False(t, evalCondition(Condition{Field: "desc", Operator: OpContains, Value: "robotics"}, values))
}

func TestEvalConditionMatches(t *testing.T) {
	values := map[string][]string{"name": {"Acme-42"}}
	require.True(t, evalCondition(Condition{Field: "name", Operator: OpMatches, Value: `^Acme-\d+$`}, values))
	require.False(t, evalCondition(Condition{Field: "name", Operator: OpMatches, Value: `^Globex`}, values))
}

func TestEvalConditionOneOf(t *testing.T) {
	values := map[string][]string{"status": {"ACTIVE"}}
	require.True(t, evalCondition(Condition{Field: "status", Operator: OpOneOf, Values: []string{"active", "pending"}}, values))
	require.False(t, evalCondition(Condition{Field: "status", Operator: OpOneOf, Values: []string{"closed"}}, values))
}

func TestEvalConditionWithinDays(t *testing.T) {
	recent := time.Now().Add(-2 * 24 * time.Hour).Format(time.RFC3339)
	old := time.Now().Add(-30 * 24 * time.Hour).Format(time.RFC3339)
	values := map[string][]string{"published": {recent}}
	require.True(t, evalCondition(Condition{Field: "published", Operator: OpWithinDays, Value: 7.0}, values))

	values["published"] = []string{old}
	require.False(t, evalCondition(Condition{Field: "published", Operator: OpWithinDays, Value: 7.0}, values))
}

func TestEvalConditionMissingResultFailsExceptExists(t *testing.T) {
	values := map[string][]string{}
	require.False(t, evalCondition(Condition{Field: "x", Operator: OpExists}, values))
	require.False(t, evalCondition(Condition{Field: "x", Operator: OpGTE, Value: 1.0}, values))
	require.False(t, evalCondition(Condition{Field: "x", Operator: OpContains, Value: "a"}, values))
}

func TestEvalShapeAllCombinator(t *testing.T) {
	shape := Shape{
		Combinator: "all",
		Conditions: []Condition{
			{Field: "a", Operator: OpExists},
			{Field: "b", Operator: OpExists},
		},
	}
	ok, err := evalShape(shape, map[string][]string{"a": {"1"}, "b": {"2"}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = evalShape(shape, map[string][]string{"a": {"1"}})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvalShapeAnyCombinator(t *testing.T) {
	shape := Shape{
		Combinator: "any",
		Conditions: []Condition{
			{Field: "a", Operator: OpExists},
			{Field: "b", Operator: OpExists},
		},
	}
	ok, err := evalShape(shape, map[string][]string{"b": {"2"}})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalShapeNoConditionsPasses(t *testing.T) {
	ok, err := evalShape(Shape{}, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func lensResult(id string, items ...ShapedItem) LensResult {
	return LensResult{LensID: id, ShapedItems: items, TotalItems: len(items)}
}

// A combination signal fires when one sufficient set is fully covered.
func TestJoinEntityAndCombinationSignal(t *testing.T) {
	now := time.Now()
	lensA := lensResult("A", ShapedItem{ItemID: "a1", Name: "Acme", URL: "https://acme.example", CreatedAt: now})
	lensB := lensResult("B", ShapedItem{ItemID: "b1", Name: "Acme", URL: "https://acme.example", CreatedAt: now})
	lensC := lensResult("C")

	join := runJoin([]LensResult{lensA, lensB, lensC}, JoinRule{By: JoinByEntity, MinLensOverlap: 2})
	require.Len(t, join.Entities, 1)
	require.Equal(t, "Acme", join.Entities[0].CanonicalName)
	require.ElementsMatch(t, []string{"A", "B"}, join.Entities[0].LensIDs())

	signal := evaluateSignal(SignalRule{
		Type: SignalCombination,
		Combination: &CombinationSpec{Sufficient: [][]string{
			{"A", "B"},
			{"A", "C"},
		}},
	}, []string{"A", "B", "C"}, join)

	require.True(t, signal.Fired)
	require.Equal(t, []string{"A", "B"}, signal.MatchedCombination)
	require.Equal(t, []string{"Acme"}, signal.Entities)
}

func TestJoinEntityFiltersBelowMinOverlap(t *testing.T) {
	now := time.Now()
	lensA := lensResult("A", ShapedItem{ItemID: "a1", Name: "Solo", URL: "https://solo.example", CreatedAt: now})
	join := runJoin([]LensResult{lensA}, JoinRule{By: JoinByEntity, MinLensOverlap: 2})
	require.Empty(t, join.Entities)
}

func TestJoinEntityTemporalRequiresTwoTimestampsWithinWindow(t *testing.T) {
	now := time.Now()
	lensA := lensResult("A", ShapedItem{ItemID: "a1", Name: "Acme", URL: "https://acme.example", CreatedAt: now})
	lensB := lensResult("B", ShapedItem{ItemID: "b1", Name: "Acme", URL: "https://acme.example", CreatedAt: now.Add(40 * 24 * time.Hour)})

	join := runJoin([]LensResult{lensA, lensB}, JoinRule{
		By: JoinByEntityTemporal, MinLensOverlap: 2, Temporal: &TemporalSpec{Days: 7},
	})
	require.Empty(t, join.Entities)

	lensB2 := lensResult("B", ShapedItem{ItemID: "b1", Name: "Acme", URL: "https://acme.example", CreatedAt: now.Add(2 * 24 * time.Hour)})
	join2 := runJoin([]LensResult{lensA, lensB2}, JoinRule{
		By: JoinByEntityTemporal, MinLensOverlap: 2, Temporal: &TemporalSpec{Days: 7},
	})
	require.Len(t, join2.Entities, 1)
}

func TestJoinCooccurrenceEvidenceSet(t *testing.T) {
	lensA := lensResult("A", ShapedItem{ItemID: "a1"})
	lensB := lensResult("B")
	lensC := lensResult("C", ShapedItem{ItemID: "c1"})

	join := runJoin([]LensResult{lensA, lensB, lensC}, JoinRule{By: JoinByCooccurrence})
	require.True(t, join.LensesWithEvidence["A"])
	require.False(t, join.LensesWithEvidence["B"])
	require.True(t, join.LensesWithEvidence["C"])
}

func TestSignalAllRequiresEveryDeclaredLens(t *testing.T) {
	evidence := map[string]bool{"A": true, "B": true}
	sig := evaluateEvidenceSignal(SignalRule{Type: SignalAll}, []string{"A", "B", "C"}, evidence)
	require.False(t, sig.Fired)

	sig = evaluateEvidenceSignal(SignalRule{Type: SignalAll}, []string{"A", "B"}, evidence)
	require.True(t, sig.Fired)
}

func TestSignalThresholdDefault(t *testing.T) {
	evidence := map[string]bool{"A": true}
	sig := evaluateEvidenceSignal(SignalRule{Type: SignalThreshold}, []string{"A", "B"}, evidence)
	require.False(t, sig.Fired)

	evidence["B"] = true
	sig = evaluateEvidenceSignal(SignalRule{Type: SignalThreshold}, []string{"A", "B"}, evidence)
	require.True(t, sig.Fired)
}

// Delta of a newly-fired signal.
func TestDeltaSignalTransitionNewlyFired(t *testing.T) {
	prev := Snapshot{
		EvaluatedAt: time.Now().Add(-time.Hour),
		Lenses:      map[string]LensSummary{"A": {ShapedCount: 1}},
		Signal:      SignalResult{Fired: false, Entities: nil},
	}
	curr := Snapshot{
		EvaluatedAt: time.Now(),
		Lenses:      map[string]LensSummary{"A": {ShapedCount: 1}},
		Signal:      SignalResult{Fired: true, Entities: []string{"Acme"}},
	}

	delta := computeDelta(prev, curr)
	require.Equal(t, SignalTransition{
		Was: false, Now: true, Changed: true,
		NewEntities: []string{"Acme"}, LostEntities: nil,
	}, delta.SignalTransition)
}

// Identical configs with no upstream change must yield no new or lost
// joins between two snapshots.
func TestDeltaNoChangeYieldsNoJoinDrift(t *testing.T) {
	now := time.Now()
	entity := JoinedEntity{CanonicalName: "Acme", CanonicalURL: "https://acme.example", PresentInLenses: map[string]bool{"A": true, "B": true}}
	snap := Snapshot{
		EvaluatedAt: now,
		Lenses:      map[string]LensSummary{"A": {ShapedCount: 1}, "B": {ShapedCount: 1}},
		Join:        JoinResult{Mode: JoinByEntity, Entities: []JoinedEntity{entity}},
		Signal:      SignalResult{Fired: true, Entities: []string{"Acme"}},
	}
	later := snap
	later.EvaluatedAt = now.Add(time.Hour)

	delta := computeDelta(snap, later)
	require.Empty(t, delta.NewJoins)
	require.Empty(t, delta.LostJoins)
	require.Equal(t, "1h", delta.TimeSinceLastEval)
}

func TestHumanDurationFormatting(t *testing.T) {
	require.Equal(t, "0m", humanDuration(0))
	require.Equal(t, "5m", humanDuration(5*time.Minute))
	require.Equal(t, "2h 5m", humanDuration(2*time.Hour+5*time.Minute))
	require.Equal(t, "1d 2h", humanDuration(26*time.Hour))
}

func TestValidateReferencesRejectsUnknownLens(t *testing.T) {
	cfg := Config{
		Lenses: []Lens{{ID: "A"}},
		Shapes: []Shape{{LensID: "B"}},
		Signal: SignalRule{Type: SignalAny},
	}
	require.Error(t, validateReferences(cfg))
}

func TestValidateReferencesRejectsUnknownCombinationLens(t *testing.T) {
	cfg := Config{
		Lenses: []Lens{{ID: "A"}},
		Shapes: []Shape{{LensID: "A"}},
		Signal: SignalRule{Type: SignalCombination, Combination: &CombinationSpec{Sufficient: [][]string{{"A", "Z"}}}},
	}
	require.Error(t, validateReferences(cfg))
}
