// Package upstream defines the facade over the external web-search and
// entity-enrichment API ("the upstream"). The facade is intentionally thin:
// it exposes exactly the operations the workflow runtime consumes (create
// dataset, get dataset, cancel dataset, delete dataset, list items, create
// monitor, create research job, poll research job) and leaves transport, credentials, and
// retry policy to the concrete implementation.
package upstream

import (
	"context"
	"time"
)

// WebsetStatus is the composite lifecycle state of a webset.
type WebsetStatus string

const (
	WebsetStatusPending WebsetStatus = "pending"
	WebsetStatusRunning WebsetStatus = "running"
	WebsetStatusIdle    WebsetStatus = "idle"
	WebsetStatusPaused  WebsetStatus = "paused"
)

// EnrichmentFormat names the shape of an enrichment's stringified result.
type EnrichmentFormat string

const (
	FormatText    EnrichmentFormat = "text"
	FormatNumber  EnrichmentFormat = "number"
	FormatDate    EnrichmentFormat = "date"
	FormatOptions EnrichmentFormat = "options"
	FormatEmail   EnrichmentFormat = "email"
	FormatPhone   EnrichmentFormat = "phone"
	FormatURL     EnrichmentFormat = "url"
)

// EnrichmentStatus is the lifecycle state of one enrichment result on one
// item.
type EnrichmentStatus string

const (
	EnrichmentStatusPending   EnrichmentStatus = "pending"
	EnrichmentStatusCompleted EnrichmentStatus = "completed"
	EnrichmentStatusCancelled EnrichmentStatus = "cancelled"
)

// SearchProgress reports counts for one in-flight or finished search.
type SearchProgress struct {
	Found      int     `json:"found"`
	Analyzed   int     `json:"analyzed"`
	Completion float64 `json:"completion"`
	TimeLeft   string  `json:"timeLeft,omitempty"`
}

// Search describes one search attached to a webset.
type Search struct {
	ID       string         `json:"id"`
	Query    string         `json:"query"`
	Progress SearchProgress `json:"progress"`
	// Criteria lists the behavioral dimensions this search evaluates
	// items against, each carrying its own live successRate diagnostic.
	Criteria []Criterion `json:"criteria,omitempty"`
}

// EnrichmentDefinition describes one enrichment attached to a webset.
type EnrichmentDefinition struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Format      EnrichmentFormat `json:"format"`
}

// Monitor describes a recurring re-evaluation attached to a webset.
type Monitor struct {
	ID       string `json:"id"`
	Cron     string `json:"cron"`
	Timezone string `json:"timezone,omitempty"`
}

// Webset is the opaque, externally owned dataset resource.
type Webset struct {
	ID          string                 `json:"id"`
	Status      WebsetStatus           `json:"status"`
	Searches    []Search               `json:"searches"`
	Enrichments []EnrichmentDefinition `json:"enrichments"`
	Monitors    []Monitor              `json:"monitors"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// LatestSearch returns the most recently added search, if any.
func (w Webset) LatestSearch() (Search, bool) {
	if len(w.Searches) == 0 {
		return Search{}, false
	}
	return w.Searches[len(w.Searches)-1], true
}

// Evaluation is one criterion's verdict on an item.
type Evaluation struct {
	Criterion string `json:"criterion"`
	Satisfied string `json:"satisfied"` // "yes", "no", "unclear"
}

// EnrichmentResult is one enrichment's outcome on an item.
type EnrichmentResult struct {
	EnrichmentID string           `json:"enrichmentId"`
	Description  string           `json:"description"`
	Format       EnrichmentFormat `json:"format"`
	Status       EnrichmentStatus `json:"status"`
	Result       []string         `json:"result"`
}

// EntityProperties carries entity-type-specific fields. Only the fields
// relevant to the entity's Type are expected to be populated.
type EntityProperties struct {
	Type string `json:"type"`

	Company struct {
		Name string `json:"name,omitempty"`
	} `json:"company,omitempty"`
	Person struct {
		Name string `json:"name,omitempty"`
	} `json:"person,omitempty"`
	Article struct {
		Title string `json:"title,omitempty"`
	} `json:"article,omitempty"`
	ResearchPaper struct {
		Title string `json:"title,omitempty"`
	} `json:"researchPaper,omitempty"`
	Custom struct {
		Title string `json:"title,omitempty"`
	} `json:"custom,omitempty"`
}

// Item is one raw webset item. Content is intentionally large and must
// never cross the projection boundary (see package projection).
type Item struct {
	ID          string             `json:"id"`
	WebsetID    string             `json:"websetId"`
	URL         string             `json:"url"`
	Description string             `json:"description"`
	Content     string             `json:"content,omitempty"`
	Properties  EntityProperties   `json:"properties"`
	Evaluations []Evaluation       `json:"evaluations"`
	Enrichments []EnrichmentResult `json:"enrichments"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// Criterion describes the search-time behavioral dimensions attached to a
// webset (one evaluation per criterion is produced per item).
type Criterion struct {
	Description string `json:"description"`
	SuccessRate float64 `json:"successRate,omitempty"`
}

// EntitySpec describes the entity type a search targets.
type EntitySpec struct {
	Type string `json:"type"`
}

// EnrichmentSpec requests a new enrichment when creating a webset.
type EnrichmentSpec struct {
	Description string           `json:"description"`
	Format      EnrichmentFormat `json:"format"`
}

// CreateWebsetParams describes a new webset/search request.
type CreateWebsetParams struct {
	Query       string
	Entity      EntitySpec
	Criteria    []string
	Count       int
	Enrichments []EnrichmentSpec
}

// CreateMonitorParams describes a monitor registration request.
type CreateMonitorParams struct {
	WebsetID string
	Cron     string
	Timezone string
}

// ResearchStatus is the lifecycle state of a deep-research job.
type ResearchStatus string

const (
	ResearchStatusRunning   ResearchStatus = "running"
	ResearchStatusFinished  ResearchStatus = "finished"
	ResearchStatusCancelled ResearchStatus = "cancelled"
	ResearchStatusFailed    ResearchStatus = "failed"
)

// ResearchJob is an opaque deep-research job handle and its current state.
type ResearchJob struct {
	ID     string         `json:"id"`
	Status ResearchStatus `json:"status"`
	Model  string         `json:"model,omitempty"`
	// Output carries the structured result when the upstream returns one;
	// Text carries a free-form fallback.
	Output any    `json:"output,omitempty"`
	Text   string `json:"text,omitempty"`
}

// CreateResearchParams describes a deep-research job request.
type CreateResearchParams struct {
	Instructions string
}

// Client is the facade every workflow depends on. Implementations must be
// safe for concurrent use.
type Client interface {
	// CreateWebset starts a new dataset + search. Returns the webset in
	// whatever status the upstream assigns immediately (typically
	// "pending" or "running").
	CreateWebset(ctx context.Context, params CreateWebsetParams) (Webset, error)
	// GetWebset refetches the current state of a webset.
	GetWebset(ctx context.Context, websetID string) (Webset, error)
	// CancelWebset requests the upstream stop processing a webset.
	CancelWebset(ctx context.Context, websetID string) error
	// DeleteWebset removes a webset and its items upstream.
	DeleteWebset(ctx context.Context, websetID string) error
	// ListItems streams a webset's items to the provided callback in
	// order, stopping early if the callback returns false or an error.
	ListItems(ctx context.Context, websetID string, fn func(Item) (bool, error)) error
	// CreateMonitor attaches a recurring re-evaluation to a webset.
	CreateMonitor(ctx context.Context, params CreateMonitorParams) (Monitor, error)
	// CreateResearch starts a deep-research job.
	CreateResearch(ctx context.Context, params CreateResearchParams) (ResearchJob, error)
	// PollResearch refetches the current state of a research job.
	PollResearch(ctx context.Context, researchID string) (ResearchJob, error)
}
