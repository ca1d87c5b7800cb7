// Package httpclient implements upstream.Client over HTTP + JSON for real
// deployments. It carries no retry policy of its own (the orchestrator core
// does not retry upstream failures); it only
// classifies non-2xx responses into upstream.StatusError so callers can
// apply that policy.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/websets-labs/orchestrator/upstream"
)

// Client calls a websets-shaped REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. for custom
// transports or test servers).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outbound requests per second, with the given burst.
// Defaults to 10 req/s, burst 10, matching the conservative per-key budgets
// typical of a hosted search/enrichment API.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// New constructs a Client against baseURL using apiKey for bearer auth.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return &upstream.StatusError{Op: method + " " + path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) CreateWebset(ctx context.Context, params upstream.CreateWebsetParams) (upstream.Webset, error) {
	var w upstream.Webset
	err := c.do(ctx, http.MethodPost, "/v0/websets", params, &w)
	return w, err
}

func (c *Client) GetWebset(ctx context.Context, websetID string) (upstream.Webset, error) {
	var w upstream.Webset
	err := c.do(ctx, http.MethodGet, "/v0/websets/"+url.PathEscape(websetID), nil, &w)
	return w, err
}

func (c *Client) CancelWebset(ctx context.Context, websetID string) error {
	return c.do(ctx, http.MethodPost, "/v0/websets/"+url.PathEscape(websetID)+"/cancel", nil, nil)
}

func (c *Client) DeleteWebset(ctx context.Context, websetID string) error {
	return c.do(ctx, http.MethodDelete, "/v0/websets/"+url.PathEscape(websetID), nil, nil)
}

// ListItems pages through /v0/websets/{id}/items using a cursor query
// parameter until the upstream reports no further cursor or the callback
// asks to stop.
func (c *Client) ListItems(ctx context.Context, websetID string, fn func(upstream.Item) (bool, error)) error {
	cursor := ""
	for {
		var page struct {
			Data       []upstream.Item `json:"data"`
			NextCursor string          `json:"nextCursor"`
		}
		path := "/v0/websets/" + url.PathEscape(websetID) + "/items"
		if cursor != "" {
			path += "?cursor=" + url.QueryEscape(cursor)
		}
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return err
		}
		for _, item := range page.Data {
			cont, err := fn(item)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (c *Client) CreateMonitor(ctx context.Context, params upstream.CreateMonitorParams) (upstream.Monitor, error) {
	var m upstream.Monitor
	err := c.do(ctx, http.MethodPost, "/v0/monitors", params, &m)
	return m, err
}

func (c *Client) CreateResearch(ctx context.Context, params upstream.CreateResearchParams) (upstream.ResearchJob, error) {
	var j upstream.ResearchJob
	err := c.do(ctx, http.MethodPost, "/v0/research", params, &j)
	return j, err
}

func (c *Client) PollResearch(ctx context.Context, researchID string) (upstream.ResearchJob, error) {
	var j upstream.ResearchJob
	err := c.do(ctx, http.MethodGet, "/v0/research/"+url.PathEscape(researchID), nil, &j)
	return j, err
}
