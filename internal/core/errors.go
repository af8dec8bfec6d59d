package core

// errors.go defines the error taxonomy for the merge workflow.
//
// Three classes of failure exist, with different blast radii:
//
//   - LoadError: a single file could not be turned into a table. Always
//     recoverable at the batch level; the caller skips the file and keeps
//     processing the rest of the upload.
//
//   - DuplicateKeyError: the secondary table of a merge step has non-unique
//     key values. Fatal to the current workflow run. The session is halted
//     and no further merge step is accepted until the user corrects the key
//     selection and restarts the step.
//
//   - MergeError: any other merge failure (typically a key column that does
//     not exist on one side). Recoverable; the workflow continues with the
//     prior base table.
//
// Service-level sentinels (session lookup, chain bookkeeping, concurrency
// limits) round out the set. MapError translates all of them into stable
// user-facing codes for the web and CLI layers.

import (
	"errors"
	"fmt"
	"strings"
)

// LoadReason classifies why a file failed to load.
type LoadReason int

const (
	// LoadEmpty: the uploaded file had zero bytes.
	LoadEmpty LoadReason = iota
	// LoadNoData: the file parsed but contained no data rows.
	LoadNoData
	// LoadParseFailure: the underlying CSV or workbook parser failed.
	LoadParseFailure
)

// LoadError reports a failure to load one uploaded file. It always carries
// the file name so the user can tell which file of a batch to fix.
type LoadError struct {
	File   string
	Reason LoadReason
	Err    error // underlying parser error for LoadParseFailure
}

func (e *LoadError) Error() string {
	switch e.Reason {
	case LoadEmpty:
		return fmt.Sprintf("failed to load %s: file is empty", e.File)
	case LoadNoData:
		return fmt.Sprintf("failed to load %s: no data found", e.File)
	default:
		return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

// MaxDuplicateKeyReport caps how many distinct duplicate key values are
// shown to the user. Values beyond the cap are dropped silently.
const MaxDuplicateKeyReport = 10

// DuplicateKeyError reports non-unique key values in the secondary table of
// a merge step. Values holds every distinct offender in first-appearance
// order; Error renders at most MaxDuplicateKeyReport of them.
type DuplicateKeyError struct {
	Key    string   // secondary key column name
	Values []string // distinct duplicated values, first-appearance order
}

func (e *DuplicateKeyError) Error() string {
	shown := e.Values
	if len(shown) > MaxDuplicateKeyReport {
		shown = shown[:MaxDuplicateKeyReport]
	}
	return fmt.Sprintf("duplicate key values found in the secondary file: %s", strings.Join(shown, ", "))
}

// MergeError wraps a recoverable merge failure. The caller keeps the prior
// base table and the workflow continues.
type MergeError struct {
	Err error
}

func (e *MergeError) Error() string { return fmt.Sprintf("merge failed: %v", e.Err) }
func (e *MergeError) Unwrap() error { return e.Err }

// Service-level errors.
var (
	// ErrSessionNotFound: the session ID is unknown or has expired.
	ErrSessionNotFound = errors.New("session not found")

	// ErrWorkflowHalted: a previous merge step hit duplicate keys and the
	// session refuses further steps until the halt is reset.
	ErrWorkflowHalted = errors.New("workflow halted by duplicate keys")

	// ErrFileAlreadyMerged: the file has already been folded into the chain.
	ErrFileAlreadyMerged = errors.New("file already merged")

	// ErrFileNotFound: the named file was never loaded into the session.
	ErrFileNotFound = errors.New("file not found in session")

	// ErrNoMergedTable: an operation needs a merged table but no merge step
	// has run yet.
	ErrNoMergedTable = errors.New("no merged table yet")

	// ErrFileTooLarge: the uploaded file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrTooManyFiles: the session holds the configured maximum of files.
	ErrTooManyFiles = errors.New("too many files in session")

	// ErrTooManySessions: the in-memory registry is at capacity.
	ErrTooManySessions = errors.New("too many active sessions")

	// ErrTooManyImports is returned when all import slots are occupied and
	// the wait timeout expires. Clients should retry after a short delay.
	ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

	// ErrColumnNotFound: a selected output column does not exist.
	ErrColumnNotFound = errors.New("column not found")
)

// UserMessage is a user-friendly error presentation with a stable support
// code. Users can quote the code when asking for help.
type UserMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// MapError translates an internal error into a UserMessage.
//
// Code groups:
//
//	FILE001-FILE099  file loading
//	MRG001-MRG099    merge chain
//	SES001-SES099    sessions
//	COL001-COL099    column selection
//	IMP001-IMP099    import concurrency
func MapError(err error) UserMessage {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		switch loadErr.Reason {
		case LoadEmpty:
			return UserMessage{
				Code:    "FILE001",
				Message: err.Error(),
				Action:  "Upload a file that contains data.",
			}
		case LoadNoData:
			return UserMessage{
				Code:    "FILE002",
				Message: err.Error(),
				Action:  "The file parsed but had no data rows. Check the file contents.",
			}
		default:
			return UserMessage{
				Code:    "FILE003",
				Message: err.Error(),
				Action:  "Check that the file is valid CSV or XLSX and try again.",
			}
		}
	}

	var dupErr *DuplicateKeyError
	if errors.As(err, &dupErr) {
		return UserMessage{
			Code:    "MRG001",
			Message: err.Error(),
			Action:  "Remove or deduplicate these key values, or choose a different key column, then restart the step.",
		}
	}

	var mergeErr *MergeError
	if errors.As(err, &mergeErr) {
		return UserMessage{
			Code:    "MRG002",
			Message: err.Error(),
			Action:  "Check the selected key columns and try again.",
		}
	}

	switch {
	case errors.Is(err, ErrWorkflowHalted):
		return UserMessage{
			Code:    "MRG003",
			Message: err.Error(),
			Action:  "Correct the key selection and reset the halt before merging again.",
		}
	case errors.Is(err, ErrFileAlreadyMerged):
		return UserMessage{
			Code:    "MRG004",
			Message: err.Error(),
			Action:  "Each file can be merged into the chain only once.",
		}
	case errors.Is(err, ErrFileNotFound):
		return UserMessage{
			Code:    "MRG005",
			Message: err.Error(),
			Action:  "Upload the file to this session first.",
		}
	case errors.Is(err, ErrNoMergedTable):
		return UserMessage{
			Code:    "MRG006",
			Message: err.Error(),
			Action:  "Merge the initial two files first.",
		}
	case errors.Is(err, ErrSessionNotFound):
		return UserMessage{
			Code:    "SES001",
			Message: err.Error(),
			Action:  "The session may have expired. Create a new session.",
		}
	case errors.Is(err, ErrTooManySessions):
		return UserMessage{
			Code:    "SES002",
			Message: err.Error(),
			Action:  "Try again in a few minutes.",
		}
	case errors.Is(err, ErrColumnNotFound):
		return UserMessage{
			Code:    "COL002",
			Message: err.Error(),
			Action:  "Pick columns from the merged table.",
		}
	case errors.Is(err, ErrTooManyImports):
		return UserMessage{
			Code:    "IMP001",
			Message: err.Error(),
			Action:  "Wait a moment and retry the upload.",
		}
	case errors.Is(err, ErrFileTooLarge):
		return UserMessage{
			Code:    "FILE005",
			Message: err.Error(),
			Action:  "Split the file or raise IMPORT_MAX_FILE_SIZE.",
		}
	case errors.Is(err, ErrTooManyFiles):
		return UserMessage{
			Code:    "FILE006",
			Message: err.Error(),
			Action:  "Delete the session and start over with fewer files.",
		}
	}

	return UserMessage{
		Code:    "GEN001",
		Message: err.Error(),
	}
}
