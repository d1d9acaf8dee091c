// Package search adapts the external research capability.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/feedforge/feedforge/internal/core"
)

// Config configures the client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls an HTTP search service for topic research.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a search client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Search returns ranked results for a query. Unreachability and
// server-side failures surface as the recoverable SEARCH_UNAVAILABLE
// error so the agent loop can narrow the query or move on.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]core.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	body, err := json.Marshal(map[string]interface{}{
		"query": query,
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, core.ErrSearchUnavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, core.ErrSearchUnavailable(fmt.Errorf("search endpoint returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.ErrExecution("SEARCH_REQUEST_REJECTED",
			fmt.Sprintf("search endpoint returned %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, core.ErrSearchUnavailable(err)
	}

	var out struct {
		Results []core.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, core.ErrExecution("SEARCH_RESPONSE_MALFORMED", err.Error()).WithCause(err)
	}
	return out.Results, nil
}
