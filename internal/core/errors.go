package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation  ErrorCategory = "validation"  // Invalid input
	ErrCatExecution   ErrorCategory = "execution"   // Runtime failure
	ErrCatTimeout     ErrorCategory = "timeout"     // Operation timed out
	ErrCatRateLimit   ErrorCategory = "rate_limit"  // Downstream rate limited
	ErrCatAuth        ErrorCategory = "auth"        // Authentication failure
	ErrCatForbidden   ErrorCategory = "forbidden"   // Operation disabled by policy
	ErrCatNetwork     ErrorCategory = "network"     // Network connectivity
	ErrCatNotFound    ErrorCategory = "not_found"   // Resource not found
	ErrCatConflict    ErrorCategory = "conflict"    // Concurrent modification
	ErrCatPersistence ErrorCategory = "persistence" // Storage failure
	ErrCatInternal    ErrorCategory = "internal"    // Unexpected internal error
	ErrCatBudget      ErrorCategory = "budget"      // Turn or post budget exceeded
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Predefined error codes.
const (
	CodeAlreadyRunning     = "ALREADY_RUNNING"
	CodeAutonomyDisabled   = "AUTONOMY_DISABLED"
	CodePersonaNotFound    = "PERSONA_NOT_FOUND"
	CodeRunNotFound        = "RUN_NOT_FOUND"
	CodeUnknownTool        = "UNKNOWN_TOOL"
	CodeInvalidToolInput   = "INVALID_TOOL_INPUT"
	CodeSearchUnavailable  = "SEARCH_UNAVAILABLE"
	CodePersistenceFailed  = "PERSISTENCE_FAILED"
	CodePostRateLimited    = "POST_RATE_LIMITED"
	CodePostAuthFailed     = "POST_AUTH_FAILED"
	CodeTurnBudgetExceeded = "TURN_BUDGET_EXCEEDED"
	CodeModelTimeout       = "MODEL_TIMEOUT"
	CodeRunStuck           = "RUN_STUCK"
	CodeCronSecretInvalid  = "CRON_SECRET_INVALID"
	CodeCronUnconfigured   = "CRON_UNCONFIGURED"
	CodeInvalidCadence     = "INVALID_CADENCE"
)

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrExecution creates a runtime failure error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrAlreadyRunning signals the single-flight admission guard rejected
// a trigger because a run is already active.
func ErrAlreadyRunning(runID RunID) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      CodeAlreadyRunning,
		Message:   fmt.Sprintf("a workflow run is already active: %s", runID),
		Retryable: false,
		Details:   map[string]interface{}{"run_id": string(runID)},
	}
}

// ErrAutonomyDisabled signals the global autonomous-mode flag is off.
func ErrAutonomyDisabled() *DomainError {
	return &DomainError{
		Category:  ErrCatForbidden,
		Code:      CodeAutonomyDisabled,
		Message:   "autonomous mode is disabled",
		Retryable: false,
	}
}

// ErrPersonaNotFound creates a not found error for a persona reference.
func ErrPersonaNotFound(id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodePersonaNotFound,
		Message:   fmt.Sprintf("persona not found: %s", id),
		Retryable: false,
	}
}

// ErrRunNotFound creates a not found error for a run reference.
func ErrRunNotFound(id RunID) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeRunNotFound,
		Message:   fmt.Sprintf("workflow run not found: %s", id),
		Retryable: false,
	}
}

// ErrUnknownTool signals the model requested a tool that is not
// registered.
func ErrUnknownTool(name string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeUnknownTool,
		Message:   fmt.Sprintf("unknown tool: %s", name),
		Retryable: false,
	}
}

// ErrInvalidToolInput signals model-supplied input failed schema
// validation.
func ErrInvalidToolInput(tool, reason string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeInvalidToolInput,
		Message:   fmt.Sprintf("invalid input for tool %s: %s", tool, reason),
		Retryable: false,
	}
}

// ErrSearchUnavailable signals the research capability is unreachable.
// Recoverable: the agent may narrow the query or skip the topic.
func ErrSearchUnavailable(cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      CodeSearchUnavailable,
		Message:   "search capability unavailable",
		Retryable: true,
		Cause:     cause,
	}
}

// ErrPersistence creates a storage failure error.
func ErrPersistence(op string, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatPersistence,
		Code:      CodePersistenceFailed,
		Message:   fmt.Sprintf("persistence failed: %s", op),
		Retryable: false,
		Cause:     cause,
	}
}

// ErrPostRateLimited signals the posting network rejected a publish
// for rate limiting.
func ErrPostRateLimited() *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      CodePostRateLimited,
		Message:   "posting network rate limit exceeded",
		Retryable: true,
	}
}

// ErrPostAuth signals the posting network rejected credentials.
func ErrPostAuth(cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatAuth,
		Code:      CodePostAuthFailed,
		Message:   "posting network authentication failed",
		Retryable: false,
		Cause:     cause,
	}
}

// ErrTurnBudgetExceeded signals the agent loop ran out of turns with
// no artifacts produced.
func ErrTurnBudgetExceeded(maxTurns int) *DomainError {
	return &DomainError{
		Category:  ErrCatBudget,
		Code:      CodeTurnBudgetExceeded,
		Message:   fmt.Sprintf("turn budget of %d exhausted with no artifacts", maxTurns),
		Retryable: false,
	}
}

// ErrModelTimeout signals a model-reasoning turn exceeded its timeout.
// Always fails the run.
func ErrModelTimeout(cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      CodeModelTimeout,
		Message:   "model turn timed out",
		Retryable: false,
		Cause:     cause,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// IsCode checks if an error carries a specific domain code.
func IsCode(err error, code string) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code == code
	}
	return false
}
