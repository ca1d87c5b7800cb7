// Package upstreamtest provides an in-memory stand-in for upstream.Client,
// intended for workflow unit tests and local tooling: no persistence
// across process restarts, thread-safe via a single mutex, and every
// behavior is scriptable by the test rather than inferred.
package upstreamtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/websets-labs/orchestrator/upstream"
)

// WebsetScript drives how a stubbed webset behaves across successive
// GetWebset calls: the script is invoked once per GetWebset call and may
// mutate the webset (e.g. bump progress, flip to idle) in place.
type WebsetScript func(w *upstream.Webset)

// Client is a scriptable, in-memory upstream.Client.
type Client struct {
	mu sync.Mutex

	websets  map[string]*upstream.Webset
	items    map[string][]upstream.Item
	scripts  map[string]WebsetScript
	monitors map[string][]upstream.Monitor
	research map[string]*upstream.ResearchJob

	cancelled map[string]int
	deleted   map[string]bool

	// ResearchFn, if set, computes the outcome of a CreateResearch call
	// synchronously. The returned job is stored as-is apart from its ID, so
	// a job returned with a running status stays running until polled.
	ResearchFn func(params upstream.CreateResearchParams) upstream.ResearchJob
}

// New constructs an empty stub client.
func New() *Client {
	return &Client{
		websets:   make(map[string]*upstream.Webset),
		items:     make(map[string][]upstream.Item),
		scripts:   make(map[string]WebsetScript),
		monitors:  make(map[string][]upstream.Monitor),
		research:  make(map[string]*upstream.ResearchJob),
		cancelled: make(map[string]int),
		deleted:   make(map[string]bool),
	}
}

// Seed registers a webset and its items directly, bypassing CreateWebset.
// Useful for re-evaluation scenarios (existingWebsets) and for semantic
// cron tests that need specific webset IDs.
func (c *Client) Seed(w upstream.Webset, items []upstream.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := w
	c.websets[w.ID] = &cp
	c.items[w.ID] = items
}

// SetScript installs the per-poll mutation function for a webset.
func (c *Client) SetScript(websetID string, script WebsetScript) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[websetID] = script
}

// CancelCount returns how many times CancelWebset was invoked for id.
func (c *Client) CancelCount(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled[id]
}

// Deleted reports whether DeleteWebset was invoked for id.
func (c *Client) Deleted(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleted[id]
}

func (c *Client) CreateWebset(_ context.Context, params upstream.CreateWebsetParams) (upstream.Webset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := "webset_" + uuid.NewString()
	var enrichments []upstream.EnrichmentDefinition
	for _, e := range params.Enrichments {
		enrichments = append(enrichments, upstream.EnrichmentDefinition{
			ID:          "enr_" + uuid.NewString(),
			Description: e.Description,
			Format:      e.Format,
		})
	}
	var criteria []upstream.Criterion
	for _, desc := range params.Criteria {
		criteria = append(criteria, upstream.Criterion{Description: desc})
	}
	w := upstream.Webset{
		ID:     id,
		Status: upstream.WebsetStatusRunning,
		Searches: []upstream.Search{{
			ID:       "search_" + uuid.NewString(),
			Query:    params.Query,
			Criteria: criteria,
		}},
		Enrichments: enrichments,
	}
	c.websets[id] = &w
	return w, nil
}

func (c *Client) GetWebset(_ context.Context, websetID string) (upstream.Webset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.websets[websetID]
	if !ok {
		return upstream.Webset{}, &upstream.StatusError{Op: "GetWebset", StatusCode: 404, Body: "not found"}
	}
	if script, ok := c.scripts[websetID]; ok {
		script(w)
	}
	return *w, nil
}

func (c *Client) CancelWebset(_ context.Context, websetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled[websetID]++
	if w, ok := c.websets[websetID]; ok {
		w.Status = upstream.WebsetStatusPaused
	}
	return nil
}

func (c *Client) DeleteWebset(_ context.Context, websetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted[websetID] = true
	delete(c.websets, websetID)
	delete(c.items, websetID)
	return nil
}

func (c *Client) ListItems(_ context.Context, websetID string, fn func(upstream.Item) (bool, error)) error {
	c.mu.Lock()
	items := append([]upstream.Item(nil), c.items[websetID]...)
	c.mu.Unlock()

	for _, it := range items {
		cont, err := fn(it)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (c *Client) CreateMonitor(_ context.Context, params upstream.CreateMonitorParams) (upstream.Monitor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.websets[params.WebsetID]; !ok {
		return upstream.Monitor{}, fmt.Errorf("webset %s not found", params.WebsetID)
	}
	m := upstream.Monitor{ID: "monitor_" + uuid.NewString(), Cron: params.Cron, Timezone: params.Timezone}
	c.monitors[params.WebsetID] = append(c.monitors[params.WebsetID], m)
	return m, nil
}

func (c *Client) CreateResearch(_ context.Context, params upstream.CreateResearchParams) (upstream.ResearchJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := "research_" + uuid.NewString()
	job := upstream.ResearchJob{ID: id, Status: upstream.ResearchStatusFinished}
	if c.ResearchFn != nil {
		job = c.ResearchFn(params)
		job.ID = id
	}
	cp := job
	c.research[id] = &cp
	return job, nil
}

func (c *Client) PollResearch(_ context.Context, researchID string) (upstream.ResearchJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.research[researchID]
	if !ok {
		return upstream.ResearchJob{}, &upstream.StatusError{Op: "PollResearch", StatusCode: 404, Body: "not found"}
	}
	return *job, nil
}
