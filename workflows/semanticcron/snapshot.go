package semanticcron

import "time"

// LensSummary is one lens's contribution to a snapshot: the
// resolved webset id, total items observed, the count that passed shapes,
// and the shape ids bound to the lens.
type LensSummary struct {
	WebsetID    string   `json:"websetId"`
	TotalItems  int      `json:"totalItems"`
	ShapedCount int      `json:"shapedCount"`
	ShapeIDs    []string `json:"shapeIds,omitempty"`
}

// Snapshot is the durable external state of a semantic cron
// evaluation: evaluation timestamp, per-lens summary, the join result, and
// the signal result. Snapshots are returned to the caller and never stored
// by the system; callers re-supply a prior snapshot to compute a delta.
type Snapshot struct {
	EvaluatedAt time.Time              `json:"evaluatedAt"`
	Lenses      map[string]LensSummary `json:"lenses"`
	Join        JoinResult             `json:"join"`
	Signal      SignalResult           `json:"signal"`
	// ConfigFingerprint is a JCS-canonicalized config hash. It labels
	// which configuration produced this snapshot and lets a caller
	// detect drift before comparing it against a later re-evaluation.
	ConfigFingerprint string `json:"configFingerprint,omitempty"`
}

// buildSnapshot assembles a Snapshot from the per-lens results, the join
// result, and the signal result.
func buildSnapshot(lensResults []LensResult, join JoinResult, signal SignalResult, evaluatedAt time.Time) Snapshot {
	lenses := make(map[string]LensSummary, len(lensResults))
	for _, lr := range lensResults {
		lenses[lr.LensID] = LensSummary{
			WebsetID:    lr.WebsetID,
			TotalItems:  lr.TotalItems,
			ShapedCount: len(lr.ShapedItems),
			ShapeIDs:    lr.ShapeIDs,
		}
	}
	return Snapshot{
		EvaluatedAt: evaluatedAt,
		Lenses:      lenses,
		Join:        join,
		Signal:      signal,
	}
}
