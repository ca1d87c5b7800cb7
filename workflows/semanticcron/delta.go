package semanticcron

import (
	"fmt"
	"strings"
	"time"
)

// SignalTransition compares a signal's fired state and matching-entity set
// between two snapshots.
type SignalTransition struct {
	Was          bool     `json:"was"`
	Now          bool     `json:"now"`
	Changed      bool     `json:"changed"`
	NewEntities  []string `json:"newEntities,omitempty"`
	LostEntities []string `json:"lostEntities,omitempty"`
}

// Delta is the structured difference between two snapshots.
type Delta struct {
	NewShapedItems    map[string]int   `json:"newShapedItems"`
	NewJoins          []string         `json:"newJoins"`
	LostJoins         []string         `json:"lostJoins"`
	SignalTransition  SignalTransition `json:"signalTransition"`
	TimeSinceLastEval string           `json:"timeSinceLastEval"`
}

// computeDelta computes the delta between prev (earlier) and curr (later)
// snapshots of the same configuration.
func computeDelta(prev, curr Snapshot) Delta {
	newShaped := make(map[string]int, len(curr.Lenses))
	for lensID, cur := range curr.Lenses {
		prior := prev.Lenses[lensID].ShapedCount
		diff := cur.ShapedCount - prior
		if diff < 0 {
			diff = 0
		}
		newShaped[lensID] = diff
	}

	prevKeys := entityKeySet(prev.Join.Entities)
	currKeys := entityKeySet(curr.Join.Entities)

	var newJoins, lostJoins []string
	for k := range currKeys {
		if !prevKeys[k] {
			newJoins = append(newJoins, k)
		}
	}
	for k := range prevKeys {
		if !currKeys[k] {
			lostJoins = append(lostJoins, k)
		}
	}
	sortStrings(newJoins)
	sortStrings(lostJoins)

	transition := computeSignalTransition(prev.Signal, curr.Signal)

	return Delta{
		NewShapedItems:    newShaped,
		NewJoins:          newJoins,
		LostJoins:         lostJoins,
		SignalTransition:  transition,
		TimeSinceLastEval: humanDuration(curr.EvaluatedAt.Sub(prev.EvaluatedAt)),
	}
}

func entityKeySet(entities []JoinedEntity) map[string]bool {
	out := make(map[string]bool, len(entities))
	for _, e := range entities {
		out[e.Key()] = true
	}
	return out
}

func computeSignalTransition(prev, curr SignalResult) SignalTransition {
	prevNames := stringSet(prev.Entities)
	currNames := stringSet(curr.Entities)

	var newEntities, lostEntities []string
	for n := range currNames {
		if !prevNames[n] {
			newEntities = append(newEntities, n)
		}
	}
	for n := range prevNames {
		if !currNames[n] {
			lostEntities = append(lostEntities, n)
		}
	}
	sortStrings(newEntities)
	sortStrings(lostEntities)

	return SignalTransition{
		Was:          prev.Fired,
		Now:          curr.Fired,
		Changed:      prev.Fired != curr.Fired,
		NewEntities:  newEntities,
		LostEntities: lostEntities,
	}
}

func stringSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}

// humanDuration renders d as "d h m" parts, non-zero ones joined by a
// single space, with m as the minimum unit.
func humanDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	totalMinutes := int(d / time.Minute)
	days := totalMinutes / (24 * 60)
	rem := totalMinutes % (24 * 60)
	hours := rem / 60
	minutes := rem % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}
