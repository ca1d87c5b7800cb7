package semanticcron

import (
	"github.com/websets-labs/orchestrator/upstream"
)

// Name is the registered workflow type name.
const Name = "semantic.cron"

// Config is the four-part semantic-cron configuration:
// lenses, shapes, a join rule, and a signal rule, with an optional monitor
// cadence. Runtime-untyped configuration (arbitrary JSON) becomes this
// tagged, validated structural record; validation is authoritative and all
// downstream stages assume the record is well-formed.
type Config struct {
	Name    string       `json:"name,omitempty"`
	Proxy   any          `json:"proxy,omitempty"`
	Lenses  []Lens       `json:"lenses"`
	Shapes  []Shape      `json:"shapes"`
	Join    JoinRule     `json:"join"`
	Signal  SignalRule   `json:"signal"`
	Monitor *MonitorSpec `json:"monitor,omitempty"`
}

// Lens is a webset used as one independent sensor. Exactly
// one of Source or WebsetID is expected once bound: Source describes a new
// search to create; WebsetID references a pre-existing, externally owned
// webset.
type Lens struct {
	ID       string      `json:"id"`
	Source   *LensSource `json:"source,omitempty"`
	WebsetID string      `json:"websetId,omitempty"`
}

// LensSource describes a new webset/search to create for a lens.
type LensSource struct {
	Query       string                   `json:"query"`
	Entity      upstream.EntitySpec      `json:"entity"`
	Criteria    []string                 `json:"criteria,omitempty"`
	Enrichments []upstream.EnrichmentSpec `json:"enrichments,omitempty"`
	Count       int                      `json:"count,omitempty"`
}

// Shape is an item-level boolean predicate over enrichment values that
// defines what "counts" within a lens.
type Shape struct {
	ID         string      `json:"id,omitempty"`
	LensID     string      `json:"lensId"`
	Combinator string      `json:"combinator"` // "all" or "any"
	Conditions []Condition `json:"conditions"`
}

// ConditionOperator enumerates the condition operators.
type ConditionOperator string

const (
	OpExists     ConditionOperator = "exists"
	OpGTE        ConditionOperator = "gte"
	OpGT         ConditionOperator = "gt"
	OpLTE        ConditionOperator = "lte"
	OpLT         ConditionOperator = "lt"
	OpEQ         ConditionOperator = "eq"
	OpContains   ConditionOperator = "contains"
	OpMatches    ConditionOperator = "matches"
	OpOneOf      ConditionOperator = "oneOf"
	OpWithinDays ConditionOperator = "withinDays"
)

// Condition is one shape predicate evaluated against a single enrichment's
// resolved value. Field names the enrichment by its
// natural-language description, matching the key space produced by
// enrichment resolution.
type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value,omitempty"`
	Values   []string          `json:"values,omitempty"`
}

// TemporalSpec bounds how close together (in days) timestamps from
// distinct lenses must fall to corroborate one another.
type TemporalSpec struct {
	Days float64 `json:"days"`
}

// JoinBy selects one of the four join engines.
type JoinBy string

const (
	JoinByEntity         JoinBy = "entity"
	JoinByEntityTemporal JoinBy = "entity+temporal"
	JoinByTemporal       JoinBy = "temporal"
	JoinByCooccurrence   JoinBy = "cooccurrence"
)

// JoinRule configures the cross-lens join.
type JoinRule struct {
	By             JoinBy        `json:"by"`
	MinLensOverlap int           `json:"minLensOverlap,omitempty"`
	NameThreshold  float64       `json:"nameThreshold,omitempty"`
	Temporal       *TemporalSpec `json:"temporal,omitempty"`
}

// CombinationSpec lists sufficient lens-id sets for the "combination"
// signal rule.
type CombinationSpec struct {
	Sufficient [][]string `json:"sufficient"`
}

// SignalType enumerates the four signal rules.
type SignalType string

const (
	SignalAll         SignalType = "all"
	SignalAny         SignalType = "any"
	SignalThreshold   SignalType = "threshold"
	SignalCombination SignalType = "combination"
)

// SignalRule configures the composite boolean signal.
type SignalRule struct {
	Type        SignalType       `json:"type"`
	Min         int              `json:"min,omitempty"`
	Combination *CombinationSpec `json:"combination,omitempty"`
}

// MonitorSpec is the optional recurring re-evaluation cadence.
type MonitorSpec struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone,omitempty"`
}

// DefaultMinLensOverlap is the default minimum lens-count for a joined
// entity to survive filtering.
const DefaultMinLensOverlap = 2

// DefaultNameThreshold is the default Dice-bigram similarity threshold for
// entity name matching.
const DefaultNameThreshold = 0.85

// DefaultSignalMin is the default "threshold" signal rule minimum.
const DefaultSignalMin = 2
