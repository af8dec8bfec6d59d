package core

// session.go holds the state of one interactive merge workflow.
//
// A session accumulates uploaded files, the evolving merged table, and the
// set of files already folded into it. The chain invariants live here:
// each file is merged at most once, the current merged table is always the
// base for the next step, and a duplicate-key halt blocks every further
// step until the user resets it.

import (
	"time"

	"github.com/JonMunkholm/SmartMerge/internal/table"
)

// Session is the in-memory state of one merge workflow. All access is
// serialized by the owning Service; Session itself does no locking.
type Session struct {
	ID         string
	CreatedAt  time.Time
	LastActive time.Time

	files map[string]*table.Table // cleaned tables by file name
	order []string                // upload order

	merged   *table.Table
	used     map[string]bool
	halted   bool
	selected []string // output columns, empty means all
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  now,
		LastActive: now,
		files:      make(map[string]*table.Table),
		used:       make(map[string]bool),
	}
}

// addFile stores a cleaned table under its file name. Re-uploading a file
// that was already merged is rejected; re-uploading an unmerged file
// replaces it.
func (s *Session) addFile(name string, t *table.Table) error {
	if s.used[name] {
		return ErrFileAlreadyMerged
	}
	if _, exists := s.files[name]; !exists {
		s.order = append(s.order, name)
	}
	s.files[name] = t
	return nil
}

// file returns the loaded table for name.
func (s *Session) file(name string) (*table.Table, error) {
	t, ok := s.files[name]
	if !ok {
		return nil, ErrFileNotFound
	}
	return t, nil
}

// remaining returns the files not yet folded into the chain, in upload order.
func (s *Session) remaining() []string {
	var out []string
	for _, name := range s.order {
		if !s.used[name] {
			out = append(out, name)
		}
	}
	return out
}

// FileState describes one uploaded file for API consumers.
type FileState struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Used    bool     `json:"used"`
}

// SessionState is the JSON snapshot of a session.
type SessionState struct {
	ID              string      `json:"id"`
	CreatedAt       time.Time   `json:"created_at"`
	Files           []FileState `json:"files"`
	HasMerged       bool        `json:"has_merged"`
	MergedRows      int         `json:"merged_rows,omitempty"`
	MergedColumns   []string    `json:"merged_columns,omitempty"`
	RemainingFiles  []string    `json:"remaining_files,omitempty"`
	Halted          bool        `json:"halted"`
	SelectedColumns []string    `json:"selected_columns,omitempty"`
}

// state builds a snapshot of the session.
func (s *Session) state() *SessionState {
	st := &SessionState{
		ID:              s.ID,
		CreatedAt:       s.CreatedAt,
		Halted:          s.halted,
		SelectedColumns: append([]string(nil), s.selected...),
		RemainingFiles:  s.remaining(),
	}
	for _, name := range s.order {
		t := s.files[name]
		st.Files = append(st.Files, FileState{
			Name:    name,
			Rows:    t.NumRows(),
			Columns: t.Columns(),
			Used:    s.used[name],
		})
	}
	if s.merged != nil {
		st.HasMerged = true
		st.MergedRows = s.merged.NumRows()
		st.MergedColumns = s.merged.Columns()
	}
	return st
}
