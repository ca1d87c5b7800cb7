package semanticcron

import (
	"time"

	"github.com/websets-labs/orchestrator/fuzzy"
)

// JoinedEntity is one canonical entity surviving the cross-lens join:
// canonical name, canonical URL, the set of lens ids it appeared in,
// and a per-lens enrichment snapshot.
type JoinedEntity struct {
	CanonicalName   string                       `json:"canonicalName"`
	CanonicalURL    string                       `json:"canonicalUrl,omitempty"`
	PresentInLenses map[string]bool              `json:"presentInLenses"`
	Timestamps      map[string]time.Time         `json:"timestamps"`
	Enrichments     map[string]map[string][]string `json:"enrichments"`
}

// Key returns the canonical entity key used for delta set-differences:
// URL preferred over name.
func (e JoinedEntity) Key() string {
	if e.CanonicalURL != "" {
		return "url:" + e.CanonicalURL
	}
	return "name:" + e.CanonicalName
}

// LensIDs returns the entity's present-in lens ids as a sorted slice.
func (e JoinedEntity) LensIDs() []string {
	out := make([]string, 0, len(e.PresentInLenses))
	for id := range e.PresentInLenses {
		out = append(out, id)
	}
	sortStrings(out)
	return out
}

// JoinResult is the cross-lens join output: Mode records
// which of the four engines produced it, which determines whether signal
// evaluation consumes Entities or LensesWithEvidence.
type JoinResult struct {
	Mode               JoinBy          `json:"by"`
	Entities           []JoinedEntity  `json:"entities,omitempty"`
	LensesWithEvidence map[string]bool `json:"lensesWithEvidence,omitempty"`
}

// runJoin dispatches to the join engine named by rule.By.
func runJoin(lensResults []LensResult, rule JoinRule) JoinResult {
	switch rule.By {
	case JoinByEntityTemporal:
		return joinEntity(lensResults, rule, true)
	case JoinByTemporal:
		return joinTemporal(lensResults, rule)
	case JoinByCooccurrence:
		return joinCooccurrence(lensResults, rule)
	default: // entity
		return joinEntity(lensResults, rule, false)
	}
}

func windowMillis(days float64) int64 {
	return int64(days * dayMillis)
}

func withinWindow(a, b time.Time, windowMs int64) bool {
	diff := a.Sub(b).Milliseconds()
	if diff < 0 {
		diff = -diff
	}
	return diff <= windowMs
}

// hasDistinctLensPairWithinWindow reports whether at least two timestamps
// from distinct lenses fall within windowMs of each other.
func hasDistinctLensPairWithinWindow(timestamps map[string]time.Time, windowMs int64) bool {
	lensIDs := make([]string, 0, len(timestamps))
	for id := range timestamps {
		lensIDs = append(lensIDs, id)
	}
	for i := 0; i < len(lensIDs); i++ {
		for j := i + 1; j < len(lensIDs); j++ {
			if withinWindow(timestamps[lensIDs[i]], timestamps[lensIDs[j]], windowMs) {
				return true
			}
		}
	}
	return false
}

// joinEntity implements the entity and entity+temporal join engines: walk
// lens results in declaration order, matching each shaped
// item first by exact URL, then by Dice-bigram name similarity against
// existing entries; fold matches in, create new entries for misses. Filter
// to entries whose lens-count >= minLensOverlap. When requireTemporal is
// set, additionally require at least two timestamps from distinct lenses
// within the configured window; a single-lens entry can never pass.
func joinEntity(lensResults []LensResult, rule JoinRule, requireTemporal bool) JoinResult {
	nameThreshold := rule.NameThreshold
	if nameThreshold <= 0 {
		nameThreshold = fuzzy.DefaultNameThreshold
	}
	minOverlap := rule.MinLensOverlap
	if minOverlap <= 0 {
		minOverlap = DefaultMinLensOverlap
	}

	var entities []*JoinedEntity
	byURL := make(map[string]*JoinedEntity)

	for _, lr := range lensResults {
		for _, item := range lr.ShapedItems {
			var match *JoinedEntity
			if item.URL != "" {
				if e, ok := byURL[item.URL]; ok {
					match = e
				}
			}
			if match == nil && item.Name != "" {
				for _, e := range entities {
					if fuzzy.Matches(e.CanonicalName, item.Name, nameThreshold) {
						match = e
						break
					}
				}
			}
			if match == nil {
				name := item.Name
				if name == "" && item.URL == "" {
					name = item.ItemID
				}
				match = &JoinedEntity{
					CanonicalName:   name,
					CanonicalURL:    item.URL,
					PresentInLenses: make(map[string]bool),
					Timestamps:      make(map[string]time.Time),
					Enrichments:     make(map[string]map[string][]string),
				}
				entities = append(entities, match)
				if item.URL != "" {
					byURL[item.URL] = match
				}
			} else if match.CanonicalURL == "" && item.URL != "" {
				match.CanonicalURL = item.URL
				byURL[item.URL] = match
			}
			match.PresentInLenses[lr.LensID] = true
			match.Timestamps[lr.LensID] = item.CreatedAt
			match.Enrichments[lr.LensID] = item.Enrichments
		}
	}

	windowMs := int64(0)
	if requireTemporal && rule.Temporal != nil {
		windowMs = windowMillis(rule.Temporal.Days)
	}

	var out []JoinedEntity
	for _, e := range entities {
		if len(e.PresentInLenses) < minOverlap {
			continue
		}
		if requireTemporal {
			if len(e.Timestamps) < 2 || !hasDistinctLensPairWithinWindow(e.Timestamps, windowMs) {
				continue
			}
		}
		out = append(out, *e)
	}

	mode := JoinByEntity
	if requireTemporal {
		mode = JoinByEntityTemporal
	}
	return JoinResult{Mode: mode, Entities: out}
}

// joinTemporal implements the temporal join engine: no
// entity identity. A lens contributes to the evidence set if two lenses'
// item timestamps (any item from each) fall within the configured window
// of each other, evaluated pairwise over all lens pairs.
func joinTemporal(lensResults []LensResult, rule JoinRule) JoinResult {
	windowMs := int64(0)
	if rule.Temporal != nil {
		windowMs = windowMillis(rule.Temporal.Days)
	}

	evidence := make(map[string]bool)
	for i := 0; i < len(lensResults); i++ {
		for j := i + 1; j < len(lensResults); j++ {
			if pairHasTimestampsWithinWindow(lensResults[i], lensResults[j], windowMs) {
				evidence[lensResults[i].LensID] = true
				evidence[lensResults[j].LensID] = true
			}
		}
	}
	return JoinResult{Mode: JoinByTemporal, LensesWithEvidence: evidence}
}

func pairHasTimestampsWithinWindow(a, b LensResult, windowMs int64) bool {
	for _, ia := range a.ShapedItems {
		for _, ib := range b.ShapedItems {
			if withinWindow(ia.CreatedAt, ib.CreatedAt, windowMs) {
				return true
			}
		}
	}
	return false
}

// joinCooccurrence implements the cooccurrence join engine:
// the evidence set is every lens with any shaped items; when a temporal
// window is configured, it is further restricted to lenses whose
// timestamps fall within the window of the earliest timestamp observed
// across all lenses.
func joinCooccurrence(lensResults []LensResult, rule JoinRule) JoinResult {
	evidence := make(map[string]bool)
	for _, lr := range lensResults {
		if len(lr.ShapedItems) > 0 {
			evidence[lr.LensID] = true
		}
	}

	if rule.Temporal == nil || rule.Temporal.Days <= 0 {
		return JoinResult{Mode: JoinByCooccurrence, LensesWithEvidence: evidence}
	}

	var earliest time.Time
	for _, lr := range lensResults {
		for _, it := range lr.ShapedItems {
			if earliest.IsZero() || it.CreatedAt.Before(earliest) {
				earliest = it.CreatedAt
			}
		}
	}
	if earliest.IsZero() {
		return JoinResult{Mode: JoinByCooccurrence, LensesWithEvidence: map[string]bool{}}
	}

	windowMs := windowMillis(rule.Temporal.Days)
	restricted := make(map[string]bool)
	for _, lr := range lensResults {
		for _, it := range lr.ShapedItems {
			if withinWindow(it.CreatedAt, earliest, windowMs) {
				restricted[lr.LensID] = true
				break
			}
		}
	}
	return JoinResult{Mode: JoinByCooccurrence, LensesWithEvidence: restricted}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
