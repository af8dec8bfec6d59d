package core

// service.go orchestrates merge sessions.
//
// The Service owns the in-memory session registry and drives the workflow:
// file upload (load + clean), the incremental merge chain, column
// selection, and export. Table operations themselves are pure functions
// over tables (load.go, clean.go, merge.go, export.go); the Service's job
// is threading the evolving state through them under a lock, so each
// session's chain is strictly serialized even when requests arrive
// concurrently.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/SmartMerge/internal/config"
	"github.com/JonMunkholm/SmartMerge/internal/table"
	"github.com/google/uuid"
)

// Service manages merge sessions and applies workflow operations to them.
type Service struct {
	cfg     *config.Config
	limiter *ImportLimiter

	mu       sync.RWMutex
	sessions map[string]*Session

	now func() time.Time // test hook
}

// NewService creates a Service from the application configuration.
func NewService(cfg *config.Config) *Service {
	return &Service{
		cfg:      cfg,
		limiter:  NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// ImportLimiterActive returns the number of imports currently being parsed.
// Used by graceful shutdown to decide whether to wait.
func (s *Service) ImportLimiterActive() int { return s.limiter.ActiveCount() }

// WaitForImports blocks until in-flight imports finish or ctx expires.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// SessionCount returns the number of live sessions, for monitoring.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartJanitor runs the session expiry loop until ctx is cancelled.
// Sessions idle longer than the configured TTL are dropped.
func (s *Service) StartJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Session.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := s.expireSessions(s.now()); expired > 0 {
				slog.Info("expired idle sessions", "count", expired)
			}
		}
	}
}

func (s *Service) expireSessions(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActive) > s.cfg.Session.TTL {
			delete(s.sessions, id)
			expired++
		}
	}
	return expired
}

// CreateSession registers a new empty merge session.
func (s *Service) CreateSession(ctx context.Context) (*SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.cfg.Session.MaxSessions {
		return nil, ErrTooManySessions
	}

	sess := newSession(uuid.NewString(), s.now())
	s.sessions[sess.ID] = sess

	slog.Debug("session created", "session_id", sess.ID)
	return sess.state(), nil
}

// GetSession returns the current state of a session.
func (s *Service) GetSession(ctx context.Context, id string) (*SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.state(), nil
}

// DeleteSession removes a session and all its tables.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// AddFile loads and cleans one uploaded file into the session.
//
// Load failures are recoverable at the batch level: the returned messages
// carry the error (plus the skipped-cleaning warning) while err stays nil,
// so the caller can keep uploading the rest of the batch. A hard err is
// returned only for session-level problems (unknown session, capacity,
// import slot exhaustion).
func (s *Service) AddFile(ctx context.Context, sessionID, fileName string, size int64, data []byte) (*SessionState, []Message, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, nil, err
	}
	defer s.limiter.Release()

	// Parsing happens outside the registry lock; only session mutation
	// is serialized.
	if size > s.cfg.Import.MaxFileSize {
		msgs := []Message{Errorf("Failed to load %s: %v", fileName, ErrFileTooLarge)}
		return s.touchState(sessionID, msgs)
	}

	t, err := Load(FileHandle{Name: fileName, Size: size, Data: data})
	if err != nil {
		msgs := []Message{
			Errorf("%v", err),
			Warningf("Skipping cleaning for %s: file could not be loaded.", fileName),
		}
		return s.touchState(sessionID, msgs)
	}

	cleaned, msgs := Clean(t, fileName)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	if _, exists := sess.files[fileName]; !exists && len(sess.files) >= s.cfg.Session.MaxFiles {
		return nil, nil, fmt.Errorf("%w: limit is %d", ErrTooManyFiles, s.cfg.Session.MaxFiles)
	}
	if err := sess.addFile(fileName, cleaned); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", fileName, err)
	}
	sess.LastActive = s.now()

	msgs = append(msgs, Successf("Loaded %s: %d rows, %d columns.", fileName, cleaned.NumRows(), cleaned.NumCols()))
	return sess.state(), msgs, nil
}

// touchState refreshes a session's activity clock and returns its state
// together with the given messages. Used on recoverable per-file failures.
func (s *Service) touchState(sessionID string, msgs []Message) (*SessionState, []Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	sess.LastActive = s.now()
	return sess.state(), msgs, nil
}

// MergeRequest names one merge step.
//
// The first step of a chain sets Primary and Secondary to two uploaded
// files, keyed by PrimaryKey and SecondaryKey. Every later step leaves
// Primary empty: the session's merged table is the base, PrimaryKey names
// a column of it, and Secondary is the next file to fold in.
type MergeRequest struct {
	Primary      string `json:"primary,omitempty"`
	Secondary    string `json:"secondary"`
	PrimaryKey   string `json:"primary_key"`
	SecondaryKey string `json:"secondary_key"`
}

// MergeStep applies one left-join step to the session's chain.
//
// On duplicate secondary keys the session is halted and the
// *DuplicateKeyError is returned; no further steps are accepted until
// ResetHalt. Recoverable merge failures keep the prior base table and
// surface as an error-severity message with err == nil.
func (s *Service) MergeStep(ctx context.Context, sessionID string, req MergeRequest) (*SessionState, []Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	sess.LastActive = s.now()

	if sess.halted {
		return nil, nil, ErrWorkflowHalted
	}

	secondary, err := sess.file(req.Secondary)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", req.Secondary, err)
	}
	if sess.used[req.Secondary] {
		return nil, nil, fmt.Errorf("%s: %w", req.Secondary, ErrFileAlreadyMerged)
	}

	var (
		base      *table.Table
		baseLabel string
		initial   = sess.merged == nil
	)
	if initial {
		// Initial step: two distinct uploaded files.
		if req.Primary == "" {
			return nil, nil, fmt.Errorf("primary file: %w", ErrFileNotFound)
		}
		if req.Primary == req.Secondary {
			return nil, nil, fmt.Errorf("primary and secondary must differ, got %q twice", req.Primary)
		}
		base, err = sess.file(req.Primary)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", req.Primary, err)
		}
		baseLabel = req.Primary
	} else {
		if req.Primary != "" {
			return nil, nil, fmt.Errorf("chain already started, primary must be empty, got %q", req.Primary)
		}
		base = sess.merged
		baseLabel = "current merged data"
	}

	merged, err := Merge(base, secondary, req.PrimaryKey, req.SecondaryKey)
	if err != nil {
		var dupErr *DuplicateKeyError
		if errors.As(err, &dupErr) {
			// Fatal to this workflow run: refuse all further steps until
			// the user corrects the key selection and resets the halt.
			sess.halted = true
			return sess.state(), []Message{Errorf("%v", dupErr)}, dupErr
		}
		// Recoverable: keep the prior base, workflow continues.
		return sess.state(), []Message{Errorf("%v", err)}, nil
	}

	sess.merged = merged
	if initial {
		sess.used[req.Primary] = true
	}
	sess.used[req.Secondary] = true
	sess.selected = nil // a new shape invalidates the previous selection

	msgs := []Message{Successf("%s merged into %s. Shape: (%d, %d)",
		req.Secondary, baseLabel, merged.NumRows(), merged.NumCols())}
	return sess.state(), msgs, nil
}

// ResetHalt clears the duplicate-key halt so the user can retry the step
// with a corrected key selection.
func (s *Service) ResetHalt(ctx context.Context, sessionID string) (*SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.halted = false
	sess.LastActive = s.now()
	return sess.state(), nil
}

// SelectColumns records the ordered list of output columns to retain.
// An empty selection is legal but produces a warning, matching the
// interactive flow where the user deselected everything.
func (s *Service) SelectColumns(ctx context.Context, sessionID string, columns []string) (*SessionState, []Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	sess.LastActive = s.now()

	if sess.merged == nil {
		return nil, nil, ErrNoMergedTable
	}

	if len(columns) == 0 {
		sess.selected = nil
		msgs := []Message{Warningf("Please select at least one column to include in the final output.")}
		return sess.state(), msgs, nil
	}

	for _, col := range columns {
		if !sess.merged.Has(col) {
			return nil, nil, fmt.Errorf("%q: %w", col, ErrColumnNotFound)
		}
	}
	sess.selected = append([]string(nil), columns...)
	return sess.state(), nil, nil
}

// ExportFormat selects the serialization of the final table.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

// Export serializes the session's merged table, restricted to the selected
// columns, and returns the download file name plus its bytes. The name
// gets the format's extension appended when absent.
func (s *Service) Export(ctx context.Context, sessionID, fileName string, format ExportFormat) (string, []byte, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return "", nil, ErrSessionNotFound
	}
	sess.LastActive = s.now()
	merged := sess.merged
	selected := append([]string(nil), sess.selected...)
	s.mu.Unlock()

	if merged == nil {
		return "", nil, ErrNoMergedTable
	}

	out := merged
	if len(selected) > 0 {
		var err error
		out, err = merged.Select(selected)
		if err != nil {
			return "", nil, fmt.Errorf("%v: %w", err, ErrColumnNotFound)
		}
	}

	switch format {
	case FormatXLSX:
		data, err := ExportXLSX(out)
		if err != nil {
			return "", nil, err
		}
		return EnsureExt(fileName, ".xlsx"), data, nil
	case FormatCSV, "":
		data, err := ExportCSV(out)
		if err != nil {
			return "", nil, err
		}
		return EnsureExt(fileName, ".csv"), data, nil
	default:
		return "", nil, fmt.Errorf("unsupported export format %q", format)
	}
}
