package core

import (
	"context"
	"time"
)

// =============================================================================
// Model-reasoning port
// =============================================================================

// ModelMessage is a single message in the agent conversation.
type ModelMessage struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCallID string          // set on role "tool" result messages
	ToolCalls  []ModelToolCall // set on assistant messages requesting tools
}

// ModelToolCall is a tool invocation requested by the model.
type ModelToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ToolSpec advertises one callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{} // JSON-schema-shaped parameter object
}

// ModelRequest is one reasoning turn.
type ModelRequest struct {
	Messages    []ModelMessage
	Tools       []ToolSpec
	MaxTokens   int
	Temperature float64
}

// ModelResponse is the model's answer to one reasoning turn. Done is
// true when the model produced a final answer with no tool requests.
type ModelResponse struct {
	Message   ModelMessage
	Done      bool
	TokensIn  int
	TokensOut int
}

// ModelClient is the opaque model-reasoning capability.
type ModelClient interface {
	// Complete runs one reasoning turn. Implementations must honor ctx
	// cancellation and deadline.
	Complete(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}

// =============================================================================
// Research and posting ports
// =============================================================================

// SearchResult is one ranked source returned by the research capability.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

// SearchClient is the external research capability.
type SearchClient interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// PostReceipt confirms a publish to the downstream network.
type PostReceipt struct {
	PostID      string
	PublishedAt time.Time
}

// SocialClient publishes content to the downstream posting network.
type SocialClient interface {
	Publish(ctx context.Context, content string) (*PostReceipt, error)
}

// =============================================================================
// Persistence ports
// =============================================================================

// RunPatch is a partial update applied to a run row. Nil fields are
// left untouched.
type RunPatch struct {
	Status      *RunStatus
	Phase       *Phase
	Error       *string
	CompletedAt *time.Time
	ToolCalls   []ToolCallRecord
}

// RunStore persists workflow runs. CreateRun is the single enforcement
// point of the at-most-one-running invariant: it must fail atomically
// when an active run exists, not check-then-act.
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id RunID) (*Run, error)
	FindActiveRun(ctx context.Context) (*Run, error)
	UpdateRun(ctx context.Context, id RunID, patch RunPatch) error
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	// ListStuckRuns returns RUNNING runs started before the cutoff.
	ListStuckRuns(ctx context.Context, cutoff time.Time) ([]*Run, error)
}

// CreditLedger is the append-only usage store.
type CreditLedger interface {
	AppendCredit(ctx context.Context, entry CreditEntry) error
	ListCredits(ctx context.Context, since time.Time) ([]CreditEntry, error)
	ListRunCredits(ctx context.Context, runID RunID) ([]CreditEntry, error)
}

// JobStore persists scheduled jobs.
type JobStore interface {
	ListJobs(ctx context.Context) ([]*ScheduledJob, error)
	UpsertJob(ctx context.Context, job *ScheduledJob) error
	RescheduleJob(ctx context.Context, id string, nextRunAt time.Time) error
}

// PersonaStore resolves personas owned by the dashboard.
type PersonaStore interface {
	GetPersona(ctx context.Context, id string) (*Persona, error)
	FindActivePersona(ctx context.Context) (*Persona, error)
	SavePersona(ctx context.Context, p *Persona) error
}

// DraftStore persists generated drafts.
type DraftStore interface {
	SaveDraft(ctx context.Context, d *Draft) error
	ListDrafts(ctx context.Context, personaID string) ([]*Draft, error)
	MarkPosted(ctx context.Context, id string, at time.Time) error
}

// TokenStore holds the posting network OAuth credentials.
type TokenStore interface {
	GetToken(ctx context.Context) (*OAuthToken, error)
	SaveToken(ctx context.Context, t *OAuthToken) error
}
