package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via core.MapError to get a user-friendly message
//     and via statusForError to get an HTTP status
//  4. Technical error + context is logged with request ID for correlation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/SmartMerge/internal/core"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message,
// Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns a JSON envelope
// with a stable support code.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	userMsg := core.MapError(err)
	status := statusForError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeJSONStatus(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusForError maps workflow errors to HTTP status codes.
func statusForError(err error) int {
	var dupErr *core.DuplicateKeyError
	switch {
	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrFileNotFound):
		return http.StatusNotFound
	case errors.As(err, &dupErr),
		errors.Is(err, core.ErrWorkflowHalted),
		errors.Is(err, core.ErrFileAlreadyMerged):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports),
		errors.Is(err, core.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrNoMergedTable),
		errors.Is(err, core.ErrColumnNotFound),
		errors.Is(err, core.ErrFileTooLarge),
		errors.Is(err, core.ErrTooManyFiles):
		return http.StatusBadRequest
	}

	var loadErr *core.LoadError
	if errors.As(err, &loadErr) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}
