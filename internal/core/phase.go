package core

import "fmt"

// Phase represents a stage in the content pipeline.
type Phase string

const (
	// PhaseIdle means no pipeline work is in flight. It is the implicit
	// state when no run exists and the state reaped runs return to.
	PhaseIdle Phase = "idle"

	// PhaseResearching is the first phase where the agent surfaces
	// candidate topics through the research capability.
	PhaseResearching Phase = "researching"

	// PhaseDrafting is the second phase where posts are drafted and
	// saved against the persona's tone and style.
	PhaseDrafting Phase = "drafting"

	// PhaseReviewing is the third phase where saved drafts are read
	// back and the agent selects what is worth publishing.
	PhaseReviewing Phase = "reviewing"

	// PhasePosting is the final active phase where drafts are published
	// to the downstream network.
	PhasePosting Phase = "posting"

	// PhaseCompleted is the terminal phase of a successful run.
	PhaseCompleted Phase = "completed"

	// PhaseFailed is the terminal phase of a failed run.
	PhaseFailed Phase = "failed"
)

// PipelinePhases returns the active phases in execution order.
func PipelinePhases() []Phase {
	return []Phase{PhaseResearching, PhaseDrafting, PhaseReviewing, PhasePosting}
}

// PhaseOrder returns the numeric order of an active phase (0-indexed).
// Terminal and idle phases return -1.
func PhaseOrder(p Phase) int {
	switch p {
	case PhaseResearching:
		return 0
	case PhaseDrafting:
		return 1
	case PhaseReviewing:
		return 2
	case PhasePosting:
		return 3
	default:
		return -1
	}
}

// ValidPhase checks if a phase string is valid.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseIdle, PhaseResearching, PhaseDrafting, PhaseReviewing,
		PhasePosting, PhaseCompleted, PhaseFailed:
		return true
	default:
		return false
	}
}

// ParsePhase converts a string to a Phase with validation.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !ValidPhase(p) {
		return "", fmt.Errorf("invalid phase: %s", s)
	}
	return p, nil
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Terminal reports whether the phase ends the pipeline.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// PhaseForTool maps a tool invocation to the pipeline phase it drives.
// Reading drafts back is the review step. Tools with no phase
// semantics (get_settings) return the empty phase and cause no
// transition.
func PhaseForTool(tool string) Phase {
	switch tool {
	case "research_topic":
		return PhaseResearching
	case "draft_post", "save_draft":
		return PhaseDrafting
	case "get_drafts":
		return PhaseReviewing
	case "post_now":
		return PhasePosting
	default:
		return ""
	}
}
