package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/feedforge/feedforge/internal/core"
)

// errorBody is the structured error payload every failing endpoint
// returns. Internal errors carry a generic message only.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusBadRequest, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatConflict:
		return http.StatusConflict, true
	case core.ErrCatForbidden:
		return http.StatusForbidden, true
	case core.ErrCatAuth:
		return http.StatusUnauthorized, true
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondDomainError maps a domain error onto a status and structured
// body. Non-domain errors become an opaque 500.
func respondDomainError(w http.ResponseWriter, err error) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	status, _ := httpStatusForDomainError(err)
	respondError(w, status, domErr.Code, domErr.Message, domErr.Details)
}

func respondError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	respondJSON(w, status, errorBody{Error: errorDetail{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
