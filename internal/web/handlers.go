package web

// handlers.go implements the JSON API for the interactive merge workflow.
//
// The flow mirrors the interactive frontend: create a session, upload the
// files, merge the initial two, fold in the remaining files one at a time,
// pick output columns, download the result. Responses bundle the session
// state with the workflow messages (info/success/warning/error) produced
// by the operation, so the frontend can render them verbatim.

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/JonMunkholm/SmartMerge/internal/core"
	"github.com/JonMunkholm/SmartMerge/internal/logging"
	"github.com/go-chi/chi/v5"
)

// xlsxContentType is the MIME type for .xlsx downloads.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// StateResponse is the common response envelope: the session snapshot plus
// the messages the operation produced.
type StateResponse struct {
	State    *core.SessionState `json:"state"`
	Messages []core.Message     `json:"messages,omitempty"`
}

// FileResult reports the outcome of one uploaded file within a batch.
type FileResult struct {
	Name     string         `json:"name"`
	Messages []core.Message `json:"messages,omitempty"`
}

// UploadResponse is the envelope for a batch upload.
type UploadResponse struct {
	State *core.SessionState `json:"state"`
	Files []FileResult       `json:"files"`
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"sessions": s.service.SessionCount(),
	})
}

// handleCreateSession starts a new merge session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.CreateSession(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("session created", "session_id", state.ID)
	writeJSONStatus(w, http.StatusCreated, StateResponse{State: state})
}

// handleGetSession returns the session snapshot.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, StateResponse{State: state})
}

// handleDeleteSession drops the session and all its tables.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadFiles accepts a multipart batch of CSV/Excel files.
//
// Files are processed independently: a file that fails to load is reported
// in its FileResult and skipped, the rest of the batch continues. Only
// session-level failures abort the request.
func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	logger := logging.FromContext(r.Context())

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize*int64(s.cfg.Session.MaxFiles))

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}

	var (
		state   *core.SessionState
		results []FileResult
	)
	for _, part := range parts {
		msgs, st, err := s.importFile(r, sessionID, part)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		state = st
		results = append(results, FileResult{Name: part.Filename, Messages: msgs})
		logger.Info("file imported", "session_id", sessionID, "file", part.Filename)
	}

	writeJSON(w, UploadResponse{State: state, Files: results})
}

// importFile reads one multipart file and hands it to the service.
func (s *Server) importFile(r *http.Request, sessionID string, part *multipart.FileHeader) ([]core.Message, *core.SessionState, error) {
	f, err := part.Open()
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}

	state, msgs, err := s.service.AddFile(r.Context(), sessionID, part.Filename, part.Size, data)
	if err != nil {
		return nil, nil, err
	}
	return msgs, state, nil
}

// handleMerge applies one merge step.
//
// Duplicate secondary keys halt the workflow: the response carries 409
// plus the halted session state, and every further merge request is
// refused until reset-halt. Recoverable merge failures come back 200 with
// an error-severity message and the unchanged state.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req core.MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid merge request")
		return
	}
	if req.Secondary == "" || req.PrimaryKey == "" || req.SecondaryKey == "" {
		writeError(w, http.StatusBadRequest, "secondary, primary_key and secondary_key are required")
		return
	}

	state, msgs, err := s.service.MergeStep(r.Context(), sessionID, req)
	if err != nil {
		var dupErr *core.DuplicateKeyError
		if errors.As(err, &dupErr) {
			// The halt is part of the payload so the frontend can lock
			// further steps without another round trip.
			logging.FromContext(r.Context()).Warn("workflow halted",
				"session_id", sessionID,
				"key", dupErr.Key,
				"duplicates", len(dupErr.Values),
			)
			writeJSONStatus(w, http.StatusConflict, StateResponse{State: state, Messages: msgs})
			return
		}
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, StateResponse{State: state, Messages: msgs})
}

// handleResetHalt clears a duplicate-key halt.
func (s *Server) handleResetHalt(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.ResetHalt(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, StateResponse{State: state})
}

// handleSelectColumns records the output column selection.
func (s *Server) handleSelectColumns(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Columns []string `json:"columns"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid column selection")
		return
	}

	state, msgs, err := s.service.SelectColumns(r.Context(), chi.URLParam(r, "sessionID"), req.Columns)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, StateResponse{State: state, Messages: msgs})
}

// handleExport streams the merged table as a download.
//
// Query parameters: filename (extension appended when absent) and format
// (csv, the default, or xlsx).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	format := core.ExportFormat(r.URL.Query().Get("format"))

	name, data, err := s.service.Export(r.Context(), sessionID, r.URL.Query().Get("filename"), format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == core.FormatXLSX {
		contentType = xlsxContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Write(data)
}
