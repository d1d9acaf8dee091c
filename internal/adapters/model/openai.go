// Package model adapts an OpenAI-compatible chat-completions endpoint
// to the engine's model-reasoning port.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/feedforge/feedforge/internal/core"
)

// Config configures the client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client talks to an OpenAI-compatible chat-completions API with tool
// calling.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a model client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireRequest struct {
	Model       string                   `json:"model"`
	Messages    []wireMessage            `json:"messages"`
	Tools       []map[string]interface{} `json:"tools,omitempty"`
	MaxTokens   int                      `json:"max_tokens,omitempty"`
	Temperature float64                  `json:"temperature,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete runs one reasoning turn.
func (c *Client) Complete(ctx context.Context, req core.ModelRequest) (*core.ModelResponse, error) {
	wreq := wireRequest{
		Model:       c.cfg.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if wreq.MaxTokens == 0 {
		wreq.MaxTokens = c.cfg.MaxTokens
	}
	if wreq.Temperature == 0 {
		wreq.Temperature = c.cfg.Temperature
	}

	for _, m := range req.Messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return nil, fmt.Errorf("marshaling tool arguments: %w", err)
			}
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		wreq.Messages = append(wreq.Messages, wm)
	}

	for _, t := range req.Tools {
		wreq.Tools = append(wreq.Tools, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Schema,
			},
		})
	}

	body, err := json.Marshal(wreq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, core.ErrModelTimeout(err)
		}
		return nil, core.ErrExecution("MODEL_REQUEST_FAILED", err.Error()).WithCause(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, core.ErrExecution("MODEL_RESPONSE_READ_FAILED", err.Error()).WithCause(err)
	}

	var wresp wireResponse
	if err := json.Unmarshal(raw, &wresp); err != nil {
		return nil, core.ErrExecution("MODEL_RESPONSE_MALFORMED", err.Error()).WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if wresp.Error != nil {
			msg = wresp.Error.Message
		}
		return nil, core.ErrExecution("MODEL_REQUEST_REJECTED",
			fmt.Sprintf("model endpoint returned %d: %s", resp.StatusCode, msg))
	}
	if len(wresp.Choices) == 0 {
		return nil, core.ErrExecution("MODEL_EMPTY_RESPONSE", "model returned no choices")
	}

	choice := wresp.Choices[0]
	out := &core.ModelResponse{
		Message: core.ModelMessage{
			Role:    choice.Message.Role,
			Content: choice.Message.Content,
		},
		TokensIn:  wresp.Usage.PromptTokens,
		TokensOut: wresp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, core.ErrExecution("MODEL_TOOL_ARGS_MALFORMED",
					fmt.Sprintf("tool %s arguments are not valid JSON", tc.Function.Name)).WithCause(err)
			}
		}
		out.Message.ToolCalls = append(out.Message.ToolCalls, core.ModelToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	out.Done = len(out.Message.ToolCalls) == 0
	return out, nil
}
