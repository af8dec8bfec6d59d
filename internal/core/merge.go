package core

// merge.go implements the left-join at the heart of the merge chain.
//
// Each step folds one secondary table into the evolving base. Keys are
// normalized (string cast + trim) in place on both inputs before
// comparison, secondary rows without a key are dropped, and a secondary
// table with duplicate keys stops the whole workflow: proceeding would
// silently multiply base rows in every later step.

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/SmartMerge/internal/table"
)

// Merge left-joins secondary into base on the given key columns and
// returns the combined table.
//
// Every base row is preserved. A base row with several key matches is
// duplicated once per match, in secondary row order; a row with no match
// gets missing values for the secondary columns. Non-key secondary columns
// whose name collides with a base column are renamed with a
// "_<secondaryKey>_merge" suffix; the key columns themselves are never
// renamed, so equal key names yield two columns with the same name.
//
// Failure modes:
//   - *DuplicateKeyError (nil table): the secondary key column holds
//     duplicate values. Fatal; the caller must halt the workflow.
//   - *MergeError (base table returned unchanged): anything else, e.g. a
//     key column that does not exist. Recoverable; the caller continues
//     with the returned base.
//
// Key normalization mutates the key columns of both inputs in place, even
// when the merge subsequently fails. This matches the interactive
// workflow, where a corrected retry operates on the already-normalized
// tables.
func Merge(base, secondary *table.Table, baseKey, secondaryKey string) (*table.Table, error) {
	baseCol, ok := base.Column(baseKey)
	if !ok {
		return base, &MergeError{Err: fmt.Errorf("key column %q not found in base table", baseKey)}
	}
	secCol, ok := secondary.Column(secondaryKey)
	if !ok {
		return base, &MergeError{Err: fmt.Errorf("key column %q not found in secondary table", secondaryKey)}
	}

	normalizeKeys(baseCol)
	normalizeKeys(secCol)

	// Drop secondary rows with a missing key, then re-resolve the key
	// column in the filtered copy.
	sec := secondary.Filter(func(row int) bool {
		return !secCol.Values[row].IsMissing()
	})
	secKeyCol, _ := sec.Column(secondaryKey)

	if dups := duplicateKeys(secKeyCol); len(dups) > 0 {
		return nil, &DuplicateKeyError{Key: secondaryKey, Values: dups}
	}

	// Secondary key -> row, unique after the duplicate check.
	secIndex := make(map[string]int, sec.NumRows())
	for r := 0; r < sec.NumRows(); r++ {
		secIndex[secKeyCol.Values[r].Str] = r
	}

	// Row pairing for the joined output: one entry per output row, with
	// secRows[i] == -1 for unmatched base rows. With unique secondary keys
	// there is no fan-out, but the pairing stays general.
	var baseRows, secRows []int
	for r := 0; r < base.NumRows(); r++ {
		key := baseCol.Values[r]
		if key.IsMissing() {
			baseRows = append(baseRows, r)
			secRows = append(secRows, -1)
			continue
		}
		m, ok := secIndex[key.Str]
		if !ok {
			m = -1
		}
		baseRows = append(baseRows, r)
		secRows = append(secRows, m)
	}

	// Position of the key column within sec; the suffix rule exempts it.
	keyIdx := -1
	for i := 0; i < sec.NumCols(); i++ {
		if sec.ColumnAt(i).Name == secondaryKey {
			keyIdx = i
			break
		}
	}

	cols := make([]*table.Column, 0, base.NumCols()+sec.NumCols())
	for i := 0; i < base.NumCols(); i++ {
		src := base.ColumnAt(i)
		cols = append(cols, gatherColumn(src.Name, src, baseRows))
	}
	for i := 0; i < sec.NumCols(); i++ {
		src := sec.ColumnAt(i)
		name := src.Name
		if base.Has(name) && i != keyIdx {
			name = name + "_" + secondaryKey + "_merge"
		}
		// When both keys share a name the output holds two columns with
		// that literal name; lookups resolve to the base one. Column
		// selection still sees both.
		cols = append(cols, gatherColumn(name, src, secRows))
	}

	return table.New(cols...), nil
}

// normalizeKeys casts every present key value to its trimmed string form,
// in place. Missing values stay missing.
func normalizeKeys(col *table.Column) {
	for i, v := range col.Values {
		if v.IsMissing() {
			continue
		}
		col.Values[i] = table.StringVal(strings.TrimSpace(v.String()))
	}
}

// duplicateKeys returns the distinct key values that appear more than
// once, in order of first duplicate appearance.
func duplicateKeys(col *table.Column) []string {
	counts := make(map[string]int, len(col.Values))
	var dups []string
	for _, v := range col.Values {
		counts[v.Str]++
		if counts[v.Str] == 2 {
			dups = append(dups, v.Str)
		}
	}
	return dups
}

// gatherColumn builds an output column by picking src values at the given
// row indices; index -1 yields a missing cell.
func gatherColumn(name string, src *table.Column, rows []int) *table.Column {
	out := &table.Column{Name: name, Values: make([]table.Value, len(rows))}
	for i, r := range rows {
		if r < 0 {
			out.Values[i] = table.Missing
			continue
		}
		out.Values[i] = src.Values[r]
	}
	return out
}
