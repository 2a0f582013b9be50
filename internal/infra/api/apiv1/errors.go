package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"agent-hub/internal/domain"
)

// Stable error codes returned in {"error":{"code":...}}.
const (
	CodeConflict          = "conflict"
	CodeInvalidTransition = "invalid_transition"
	CodeAttemptsExhausted = "attempts_exhausted"
	CodeNotFound          = "not_found"
	CodeInvalidArgument   = "invalid_argument"
	CodeProjectBusy       = "project_busy"
	CodeAlreadyExists     = "already_exists"
	CodeTimeout           = "timeout"
	CodeInternal          = "internal"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// classify maps a domain error to a status code and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, domain.ErrAttemptsExhausted):
		return http.StatusConflict, CodeAttemptsExhausted
	case errors.Is(err, domain.ErrProjectBusy):
		return http.StatusConflict, CodeProjectBusy
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, CodeAlreadyExists
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPolicyMissing):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusUnprocessableEntity, CodeInvalidArgument
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorEnvelope{Error: ErrorBody{Code: code, Message: msg}})
}
