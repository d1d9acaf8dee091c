package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feedforge/feedforge/internal/core"
	"github.com/feedforge/feedforge/internal/logging"
)

// LoopConfig bounds one agent-loop invocation.
type LoopConfig struct {
	TopicCount   int
	MaxPosts     int
	MaxTurns     int
	ModelTimeout time.Duration
	ToolTimeout  time.Duration
}

// Callbacks let the orchestrator persist phase transitions and account
// usage at each tool-call boundary. All callbacks are optional.
type Callbacks struct {
	// OnPhase fires after each tool call with the current phase and the
	// audit records so far. The orchestrator persists both immediately,
	// keeping the run store crash-consistent.
	OnPhase func(ctx context.Context, phase core.Phase, calls []core.ToolCallRecord)

	// OnModelUsage fires after each model turn with token counts.
	OnModelUsage func(ctx context.Context, tokensIn, tokensOut int)

	// OnToolUse fires after each successful side-effecting tool call.
	OnToolUse func(ctx context.Context, tool string)
}

// Result summarizes a finished loop.
type Result struct {
	Turns        int
	Topics       int
	Drafts       int
	Posts        int
	ToolCalls    []core.ToolCallRecord
	PartialError string
}

// Artifacts counts content produced by the loop.
func (r *Result) Artifacts() int {
	return r.Drafts + r.Posts
}

// Loop drives a bounded conversation with the model, dispatching tool
// calls sequentially. No two tool calls execute concurrently within
// one invocation; phase ordering and post dedupe depend on that.
type Loop struct {
	model    core.ModelClient
	registry *Registry
	cfg      LoopConfig
	cb       Callbacks
	logger   *logging.Logger
}

// NewLoop creates a loop.
func NewLoop(model core.ModelClient, registry *Registry, cfg LoopConfig, cb Callbacks, logger *logging.Logger) *Loop {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 24
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 2 * time.Minute
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = time.Minute
	}
	return &Loop{model: model, registry: registry, cfg: cfg, cb: cb, logger: logger}
}

// Run executes the loop for a persona. A returned error means the run
// failed; a nil error with a non-empty Result.PartialError means the
// run completed with a recorded, tolerated failure.
func (l *Loop) Run(ctx context.Context, persona *core.Persona) (*Result, error) {
	res := &Result{}
	messages := []core.ModelMessage{
		{Role: "system", Content: l.systemPrompt(persona)},
		{Role: "user", Content: l.kickoffPrompt()},
	}
	specs := l.registry.Specs()

	phase := core.PhaseResearching
	postedHashes := make(map[string]bool)

	for res.Turns < l.cfg.MaxTurns {
		res.Turns++

		resp, err := l.modelTurn(ctx, core.ModelRequest{Messages: messages, Tools: specs})
		if err != nil {
			return nil, err
		}
		if l.cb.OnModelUsage != nil {
			l.cb.OnModelUsage(ctx, resp.TokensIn, resp.TokensOut)
		}
		messages = append(messages, resp.Message)

		if resp.Done {
			l.logger.Debug("model signaled completion", "turns", res.Turns)
			return res, nil
		}

		stop, err := l.dispatchAll(ctx, resp.Message.ToolCalls, persona, res, &phase, postedHashes, &messages)
		if err != nil {
			return nil, err
		}
		if stop {
			return res, nil
		}
	}

	// Turn budget exhausted.
	if res.Artifacts() == 0 {
		return nil, core.ErrTurnBudgetExceeded(l.cfg.MaxTurns)
	}
	res.PartialError = fmt.Sprintf("turn budget of %d reached with partial results", l.cfg.MaxTurns)
	return res, nil
}

// dispatchAll executes one assistant message's tool calls in order.
// It returns stop=true when the loop should finish gracefully.
func (l *Loop) dispatchAll(ctx context.Context, calls []core.ModelToolCall, persona *core.Persona,
	res *Result, phase *core.Phase, postedHashes map[string]bool, messages *[]core.ModelMessage) (bool, error) {

	for _, tc := range calls {
		// Budget boundaries end the run gracefully; they are completion,
		// not failure.
		if tc.Name == "post_now" && res.Posts >= l.cfg.MaxPosts {
			l.logger.Info("post budget reached, stopping", "max_posts", l.cfg.MaxPosts)
			return true, nil
		}
		if tc.Name == "research_topic" && res.Topics >= l.cfg.TopicCount {
			l.logger.Info("topic budget reached, stopping", "topic_count", l.cfg.TopicCount)
			return true, nil
		}

		// post_now dedupe: the same logical draft is never published
		// twice within a run, even if the model asks again.
		if tc.Name == "post_now" {
			if content, ok := tc.Arguments["content"].(string); ok {
				h := contentHash(content)
				if postedHashes[h] {
					l.logger.Warn("duplicate post suppressed")
					rec := core.ToolCallRecord{
						Tool: tc.Name, Input: tc.Arguments, Status: core.ToolCallError,
						Error: "duplicate post suppressed", At: time.Now().UTC(),
					}
					res.ToolCalls = append(res.ToolCalls, rec)
					l.notifyPhase(ctx, *phase, res.ToolCalls)
					*messages = append(*messages, toolResultMessage(tc.ID,
						map[string]interface{}{"error": "this content was already posted in this run"}))
					continue
				}
			}
		}

		rec, output, err := l.dispatchOne(ctx, tc)
		res.ToolCalls = append(res.ToolCalls, rec)

		if err != nil {
			partial, terminalErr := l.classifyToolError(err, res)
			if terminalErr != nil {
				l.notifyPhase(ctx, *phase, res.ToolCalls)
				return false, terminalErr
			}
			if partial != "" {
				res.PartialError = partial
				l.notifyPhase(ctx, *phase, res.ToolCalls)
				return true, nil
			}
			*messages = append(*messages, toolResultMessage(tc.ID,
				map[string]interface{}{"error": err.Error()}))
			l.notifyPhase(ctx, *phase, res.ToolCalls)
			continue
		}

		// Success bookkeeping.
		switch tc.Name {
		case "research_topic":
			res.Topics++
		case "save_draft":
			res.Drafts++
		case "post_now":
			res.Posts++
			if content, ok := tc.Arguments["content"].(string); ok {
				postedHashes[contentHash(content)] = true
			}
		}
		if l.cb.OnToolUse != nil {
			l.cb.OnToolUse(ctx, tc.Name)
		}

		// Phase transitions are monotonic and persisted after the tool
		// call that caused them, so a crash mid-run never understates
		// progress.
		if next := core.PhaseForTool(tc.Name); next != "" && core.PhaseOrder(next) > core.PhaseOrder(*phase) {
			*phase = next
			l.logger.WithPhase(string(next)).Info("phase transition", "persona", persona.ID)
		}
		l.notifyPhase(ctx, *phase, res.ToolCalls)

		*messages = append(*messages, toolResultMessage(tc.ID, output))
	}
	return false, nil
}

// dispatchOne runs a single tool call under the tool timeout.
func (l *Loop) dispatchOne(ctx context.Context, tc core.ModelToolCall) (core.ToolCallRecord, interface{}, error) {
	rec := core.ToolCallRecord{
		Tool:   tc.Name,
		Input:  tc.Arguments,
		Status: core.ToolCallRunning,
		At:     time.Now().UTC(),
	}

	toolCtx, cancel := context.WithTimeout(ctx, l.cfg.ToolTimeout)
	defer cancel()

	output, err := l.registry.Dispatch(toolCtx, tc.Name, tc.Arguments)
	rec.Duration = time.Since(rec.At)
	if err != nil {
		rec.Status = core.ToolCallError
		rec.Error = err.Error()
		return rec, nil, err
	}

	rec.Status = core.ToolCallSuccess
	if out, jsonErr := json.Marshal(output); jsonErr == nil {
		rec.Result = string(out)
	}
	return rec, output, nil
}

// classifyToolError decides how the loop reacts to a failed tool call:
//   - terminalErr non-nil: the run fails with this error.
//   - partial non-empty: the run completes, recording the failure.
//   - both empty: the error is fed back to the model and the loop continues.
func (l *Loop) classifyToolError(err error, res *Result) (partial string, terminalErr error) {
	switch {
	case core.IsCode(err, core.CodePostAuthFailed), core.IsCode(err, core.CodePostRateLimited):
		// Posting rejection fails the run unless a prior post succeeded.
		if res.Posts > 0 {
			return err.Error(), nil
		}
		return "", err
	case core.IsCategory(err, core.ErrCatPersistence):
		return "", err
	default:
		// Everything else, tool timeouts included, is fed back to the
		// model. Only model-turn timeouts fail the run.
		return "", nil
	}
}

func (l *Loop) modelTurn(ctx context.Context, req core.ModelRequest) (*core.ModelResponse, error) {
	turnCtx, cancel := context.WithTimeout(ctx, l.cfg.ModelTimeout)
	defer cancel()

	resp, err := l.model.Complete(turnCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !core.IsCode(err, core.CodeModelTimeout) {
			return nil, core.ErrModelTimeout(err)
		}
		return nil, err
	}
	return resp, nil
}

func (l *Loop) notifyPhase(ctx context.Context, phase core.Phase, calls []core.ToolCallRecord) {
	if l.cb.OnPhase != nil {
		l.cb.OnPhase(ctx, phase, calls)
	}
}

func (l *Loop) systemPrompt(p *core.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the autonomous content manager for the persona %q.\n", p.Name)
	if p.Tone != "" {
		fmt.Fprintf(&b, "Write in a %s tone.\n", p.Tone)
	}
	if p.Style != "" {
		fmt.Fprintf(&b, "Style notes: %s\n", p.Style)
	}
	if len(p.Topics) > 0 {
		fmt.Fprintf(&b, "Preferred topics: %s\n", strings.Join(p.Topics, ", "))
	}
	b.WriteString("Work in order: research topics, draft and save posts, review drafts, then post. " +
		"Use the provided tools for every action. Reply without tool calls when you are done.")
	return b.String()
}

func (l *Loop) kickoffPrompt() string {
	return fmt.Sprintf(
		"Run the content pipeline now. Research up to %d topics and publish at most %d posts.",
		l.cfg.TopicCount, l.cfg.MaxPosts)
}

func toolResultMessage(callID string, payload interface{}) core.ModelMessage {
	content, err := json.Marshal(payload)
	if err != nil {
		content = []byte(`{"error": "result serialization failed"}`)
	}
	return core.ModelMessage{Role: "tool", ToolCallID: callID, Content: string(content)}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}
