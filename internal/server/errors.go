package server

import (
	"errors"
	"net/http"

	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/goccy/go-json"
)

// ErrorBody is the JSON error envelope returned by every failing endpoint.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// statusFor maps an engine error onto an HTTP status and a stable error code.
//
// Order matters: a stale snapshot is also a remote error, and a local commit failure wraps whatever
// the store returned.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrLocalCommit):
		return http.StatusInternalServerError, "LOCAL_COMMIT_FAILED"
	case errors.Is(err, shared.ErrStaleSnapshot):
		return http.StatusConflict, "STALE_SNAPSHOT"
	case errors.Is(err, shared.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, shared.ErrInvalidLabel):
		return http.StatusUnprocessableEntity, "INVALID_LABEL"
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "INVALID_INPUT"
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrAuthFailed):
		return http.StatusUnauthorized, "NOT_AUTHENTICATED"
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	case errors.Is(err, shared.ErrRemoteRequest):
		return http.StatusBadGateway, "REMOTE_REQUEST_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: err.Error()}})
}
