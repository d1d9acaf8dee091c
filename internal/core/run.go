package core

import (
	"fmt"
	"time"
)

// RunID uniquely identifies a workflow run.
type RunID string

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ValidRunStatus checks if a status string is valid.
func ValidRunStatus(s RunStatus) bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// ToolCallStatus tracks the state of one tool dispatch.
type ToolCallStatus string

const (
	ToolCallRunning ToolCallStatus = "running"
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallError   ToolCallStatus = "error"
)

// ToolCallRecord is the audit record of a single tool dispatch. It is
// produced and consumed within one agent-loop invocation and appended
// to the run row for operator visibility.
type ToolCallRecord struct {
	Tool     string                 `json:"tool"`
	Input    map[string]interface{} `json:"input,omitempty"`
	Status   ToolCallStatus         `json:"status"`
	Result   string                 `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
	At       time.Time              `json:"at"`
	Duration time.Duration          `json:"duration,omitempty"`
}

// Run represents one end-to-end execution of the content pipeline for
// a persona. Rows are never deleted; they form the audit trail.
type Run struct {
	ID          RunID
	Status      RunStatus
	Phase       Phase
	PersonaID   string
	TopicCount  int
	MaxPosts    int
	ToolCalls   []ToolCallRecord
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// NewRun creates a run in its admission state. The run store is
// responsible for enforcing the at-most-one-running invariant when it
// is persisted.
func NewRun(id RunID, personaID string, topicCount, maxPosts int) *Run {
	return &Run{
		ID:         id,
		Status:     RunStatusRunning,
		Phase:      PhaseResearching,
		PersonaID:  personaID,
		TopicCount: topicCount,
		MaxPosts:   maxPosts,
		StartedAt:  time.Now().UTC(),
	}
}

// Active reports whether the run still holds the single-flight slot.
func (r *Run) Active() bool {
	return r.Status == RunStatusRunning
}

// Terminal reports whether the run reached a final state.
func (r *Run) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// TransitionPhase advances the run to the given pipeline phase.
// Transitions never move backwards: an observer reading the store
// mid-run must never see a phase earlier than what was reached.
func (r *Run) TransitionPhase(next Phase) error {
	if r.Terminal() {
		return fmt.Errorf("cannot transition phase of terminal run %s", r.ID)
	}
	if PhaseOrder(next) < PhaseOrder(r.Phase) {
		return fmt.Errorf("phase cannot move backwards: %s -> %s", r.Phase, next)
	}
	r.Phase = next
	return nil
}

// RecordToolCall appends an audit record.
func (r *Run) RecordToolCall(rec ToolCallRecord) {
	r.ToolCalls = append(r.ToolCalls, rec)
}

// Complete transitions the run to its successful terminal state. The
// partialError carries a recorded-but-tolerated failure (e.g. a rate
// limit after at least one successful post).
func (r *Run) Complete(partialError string) error {
	if r.Status != RunStatusRunning {
		return fmt.Errorf("cannot complete run in %s state", r.Status)
	}
	r.Status = RunStatusCompleted
	r.Phase = PhaseCompleted
	r.Error = partialError
	now := time.Now().UTC()
	r.CompletedAt = &now
	return nil
}

// Fail transitions the run to its failed terminal state, recording the
// triggering error verbatim.
func (r *Run) Fail(err error) {
	r.Status = RunStatusFailed
	r.Phase = PhaseFailed
	if err != nil {
		r.Error = err.Error()
	}
	now := time.Now().UTC()
	r.CompletedAt = &now
}

// Age returns how long the run has been alive.
func (r *Run) Age(now time.Time) time.Duration {
	return now.Sub(r.StartedAt)
}

// Stuck reports whether a still-running run has exceeded the liveness
// threshold and is presumed dead.
func (r *Run) Stuck(now time.Time, threshold time.Duration) bool {
	return r.Status == RunStatusRunning && r.Age(now) > threshold
}

// Duration returns the run execution duration.
func (r *Run) Duration() time.Duration {
	end := time.Now().UTC()
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	return end.Sub(r.StartedAt)
}
