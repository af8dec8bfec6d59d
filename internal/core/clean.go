package core

// clean.go removes rows that lack a completion value.
//
// Uploaded progress trackers carry a "completion %" column where an empty
// cell means the row was never filled in. Cleaning strips those rows right
// after load, before the file enters the merge chain.

import "github.com/JonMunkholm/SmartMerge/internal/table"

// CompletionColumn is the well-known column checked by Clean, in its
// post-load normalized form.
const CompletionColumn = "completion %"

// Clean removes every row whose CompletionColumn value is missing and
// reports the removed count as an info message. Tables without the column
// pass through untouched with no messages. Clean never fails and is
// idempotent.
//
// The caller is expected to handle the "file never loaded" case itself by
// emitting a warning and substituting an empty table; Clean only sees real
// tables.
func Clean(t *table.Table, label string) (*table.Table, []Message) {
	col, ok := t.Column(CompletionColumn)
	if !ok {
		return t, nil
	}

	cleaned := t.Filter(func(row int) bool {
		return !col.Values[row].IsMissing()
	})

	removed := t.NumRows() - cleaned.NumRows()
	msg := Infof("Cleaned %s: removed %d rows with missing %q", label, removed, CompletionColumn)
	return cleaned, []Message{msg}
}
