package semanticcron

// SignalResult is the composite boolean output of a semantic cron:
// whether it fired, which rule type decided it, the lens ids
// that contributed, the matched combination (if any), and the matching
// entities (entity-mode joins only).
type SignalResult struct {
	Fired              bool       `json:"fired"`
	Type               SignalType `json:"type"`
	ContributingLenses []string   `json:"contributingLenses,omitempty"`
	MatchedCombination []string   `json:"matchedCombination,omitempty"`
	Entities           []string   `json:"entities,omitempty"`
}

// evaluateSignal applies rule to join's output: over
// join.Entities for entity/entity+temporal modes, or over
// join.LensesWithEvidence for temporal/cooccurrence modes.
func evaluateSignal(rule SignalRule, declaredLensIDs []string, join JoinResult) SignalResult {
	switch join.Mode {
	case JoinByEntity, JoinByEntityTemporal:
		return evaluateEntitySignal(rule, declaredLensIDs, join.Entities)
	default:
		return evaluateEvidenceSignal(rule, declaredLensIDs, join.LensesWithEvidence)
	}
}

func evaluateEntitySignal(rule SignalRule, declaredLensIDs []string, entities []JoinedEntity) SignalResult {
	var matched []JoinedEntity
	var matchedCombo []string
	for _, e := range entities {
		ok, combo := setSatisfies(e.PresentInLenses, rule, declaredLensIDs)
		if !ok {
			continue
		}
		matched = append(matched, e)
		if matchedCombo == nil && combo != nil {
			matchedCombo = combo
		}
	}

	satisfiedBy := make(map[string]bool)
	names := make([]string, 0, len(matched))
	for _, e := range matched {
		names = append(names, e.CanonicalName)
		for id := range e.PresentInLenses {
			satisfiedBy[id] = true
		}
	}
	contributing := make([]string, 0, len(satisfiedBy))
	for id := range satisfiedBy {
		contributing = append(contributing, id)
	}
	sortStrings(contributing)
	sortStrings(names)

	return SignalResult{
		Fired:              len(matched) > 0,
		Type:               rule.Type,
		ContributingLenses: contributing,
		MatchedCombination: matchedCombo,
		Entities:           names,
	}
}

func evaluateEvidenceSignal(rule SignalRule, declaredLensIDs []string, evidence map[string]bool) SignalResult {
	fired, combo := setSatisfies(evidence, rule, declaredLensIDs)

	contributing := make([]string, 0, len(evidence))
	for id := range evidence {
		contributing = append(contributing, id)
	}
	sortStrings(contributing)

	return SignalResult{
		Fired:              fired,
		Type:               rule.Type,
		ContributingLenses: contributing,
		MatchedCombination: combo,
		Entities:           nil,
	}
}

// setSatisfies reports whether present (a set of lens ids) satisfies rule,
// given the full set of declared lens ids. For "combination"
// it also returns the first sufficient set fully covered by present.
func setSatisfies(present map[string]bool, rule SignalRule, declared []string) (bool, []string) {
	switch rule.Type {
	case SignalAll:
		for _, id := range declared {
			if !present[id] {
				return false, nil
			}
		}
		return len(declared) > 0, nil
	case SignalThreshold:
		min := rule.Min
		if min <= 0 {
			min = DefaultSignalMin
		}
		return len(present) >= min, nil
	case SignalCombination:
		if rule.Combination == nil {
			return false, nil
		}
		for _, combo := range rule.Combination.Sufficient {
			covered := true
			for _, id := range combo {
				if !present[id] {
					covered = false
					break
				}
			}
			if covered {
				return true, combo
			}
		}
		return false, nil
	default: // any
		return len(present) > 0, nil
	}
}
