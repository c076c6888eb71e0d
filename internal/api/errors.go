package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/gateway"
	"github.com/kalambet/jobtrack/internal/jobs"
	"github.com/kalambet/jobtrack/internal/profile"
)

// httpError writes {"error":{"message","type"}}.
func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeErrorBody(w, code, errType, "", fmt.Sprintf(format, args...))
}

func writeErrorBody(w http.ResponseWriter, code int, errType, param, msg string) {
	body := map[string]any{
		"message": msg,
		"type":    errType,
	}
	if param != "" {
		body["param"] = param
	}
	writeJSON(w, code, map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

// writeErr maps an error from the gateway, auth or profile layers onto a
// status code.
func writeErr(w http.ResponseWriter, err error) {
	var (
		ve *jobs.ValidationError
		ie *auth.InputError
		se *gateway.StorageError
	)
	switch {
	case errors.As(err, &ve):
		writeErrorBody(w, http.StatusBadRequest, "invalid_request_error", ve.Field, ve.Error())
	case errors.As(err, &ie):
		writeErrorBody(w, http.StatusBadRequest, "invalid_request_error", ie.Field, ie.Error())
	case errors.Is(err, profile.ErrEmptyName):
		writeErrorBody(w, http.StatusBadRequest, "invalid_request_error", "fullName", "fullName is required")
	case errors.Is(err, auth.ErrInvalidCredentials):
		httpError(w, http.StatusUnauthorized, "invalid_credentials", "%v", err)
	case errors.Is(err, gateway.ErrNotAuthenticated), errors.Is(err, auth.ErrInvalidSession):
		httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
	case errors.Is(err, gateway.ErrNotFound), errors.Is(err, profile.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, auth.ErrEmailTaken):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.Is(err, auth.ErrRateLimited):
		httpError(w, http.StatusTooManyRequests, "rate_limited", "%v", err)
	case errors.As(err, &se):
		slog.Error("storage failure", "op", se.Op, "error", se.Err)
		httpError(w, http.StatusBadGateway, "storage_error", "%s failed", se.Op)
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}
