// Package social adapts the downstream posting network. Publishing is
// the engine's only irreversible external effect.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/feedforge/feedforge/internal/core"
)

// Config configures the client.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client publishes content using OAuth credentials held in the token
// store. The access token is refreshed before the publish call, never
// during it.
type Client struct {
	cfg    Config
	tokens core.TokenStore
	http   *http.Client
	now    func() time.Time
}

// NewClient creates a posting client.
func NewClient(cfg Config, tokens core.TokenStore) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		http:   &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Publish posts content to the network and returns the receipt.
func (c *Client) Publish(ctx context.Context, content string) (*core.PostReceipt, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"status": content})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/statuses", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, core.ErrExecution("POST_REQUEST_FAILED", err.Error()).WithCause(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, core.ErrPostAuth(fmt.Errorf("network returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, core.ErrPostRateLimited()
	case resp.StatusCode >= 400:
		return nil, core.ErrExecution("POST_REQUEST_REJECTED",
			fmt.Sprintf("network returned %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.ErrExecution("POST_RESPONSE_READ_FAILED", err.Error()).WithCause(err)
	}

	var out struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, core.ErrExecution("POST_RESPONSE_MALFORMED", err.Error()).WithCause(err)
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = c.now().UTC()
	}
	return &core.PostReceipt{PostID: out.ID, PublishedAt: out.CreatedAt}, nil
}

// ensureToken loads credentials and refreshes the access token if it
// is expired or about to expire.
func (c *Client) ensureToken(ctx context.Context) (*core.OAuthToken, error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, core.ErrPostAuth(fmt.Errorf("posting account is not connected"))
	}
	if !token.Expired(c.now()) {
		return token, nil
	}
	return c.refresh(ctx, token)
}

func (c *Client) refresh(ctx context.Context, token *core.OAuthToken) (*core.OAuthToken, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", token.RefreshToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, core.ErrPostAuth(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, core.ErrPostAuth(fmt.Errorf("token refresh returned %d", resp.StatusCode))
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, core.ErrPostAuth(err)
	}
	if out.AccessToken == "" {
		return nil, core.ErrPostAuth(fmt.Errorf("token refresh returned no access token"))
	}

	refreshed := &core.OAuthToken{
		AccessToken:  out.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    c.now().UTC().Add(time.Duration(out.ExpiresIn) * time.Second),
	}
	if out.RefreshToken != "" {
		refreshed.RefreshToken = out.RefreshToken
	}
	if err := c.tokens.SaveToken(ctx, refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}
