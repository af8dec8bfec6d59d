// Package table provides the in-memory columnar table used throughout the
// merge pipeline.
//
// A Table is an ordered collection of named columns whose cells are tagged
// Values (string, number, date, or missing). Column names are normalized
// (lower-cased, trimmed) by the loader and stay that way for the lifetime
// of the table. Row order is insertion order from the source file, or from
// the base table after a merge.
package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the semantic type of a cell value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindString
	KindNumber
	KindDate
)

// Value is a single cell. The zero Value is missing.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Time time.Time
}

// Missing is the sentinel for an absent cell.
var Missing = Value{}

// StringVal wraps s as a string-kinded Value.
func StringVal(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberVal wraps n as a number-kinded Value.
func NumberVal(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// DateVal wraps t as a date-kinded Value.
func DateVal(t time.Time) Value { return Value{Kind: KindDate, Time: t} }

// IsMissing reports whether the value is the missing sentinel.
func (v Value) IsMissing() bool { return v.Kind == KindMissing }

// String renders the value in its canonical text form: missing cells render
// as the empty string, numbers in their shortest decimal form, dates as
// YYYY-MM-DD. This rendering is what key normalization and CSV export use.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindDate:
		return v.Time.Format("2006-01-02")
	default:
		return ""
	}
}

// Equal reports whether two values are equal, comparing kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindDate:
		return v.Time.Equal(o.Time)
	default:
		return true
	}
}

// Column holds one named column of row-aligned values.
type Column struct {
	Name   string
	Values []Value
}

// Table is an ordered set of columns. All columns hold the same number of
// values. Duplicate names are tolerated (the loader's normalization can
// collide); name lookups resolve to the first occurrence in column order.
type Table struct {
	cols  []*Column
	index map[string]int // name -> first column position
}

// New creates a table from the given columns. Columns must be row-aligned;
// New panics on mismatched lengths since that is always a programming error.
func New(cols ...*Column) *Table {
	t := &Table{cols: cols, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if len(c.Values) != len(cols[0].Values) {
			panic(fmt.Sprintf("table: column %q has %d values, want %d", c.Name, len(c.Values), len(cols[0].Values)))
		}
		if _, ok := t.index[c.Name]; !ok {
			t.index[c.Name] = i
		}
	}
	return t
}

// Empty returns a table with no columns and no rows.
func Empty() *Table {
	return &Table{index: make(map[string]int)}
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0].Values)
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Columns returns the column names in order, including duplicates.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the first column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Has reports whether a column with the given name exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnAt returns the column at position i.
func (t *Table) ColumnAt(i int) *Column { return t.cols[i] }

// Row returns the values of row i in column order.
func (t *Table) Row(i int) []Value {
	row := make([]Value, len(t.cols))
	for j, c := range t.cols {
		row[j] = c.Values[i]
	}
	return row
}

// Append adds a column to the end of the table. The column must match the
// table's row count unless the table has no columns yet.
func (t *Table) Append(c *Column) error {
	if len(t.cols) > 0 && len(c.Values) != t.NumRows() {
		return fmt.Errorf("table: column %q has %d values, want %d", c.Name, len(c.Values), t.NumRows())
	}
	if _, ok := t.index[c.Name]; !ok {
		t.index[c.Name] = len(t.cols)
	}
	t.cols = append(t.cols, c)
	return nil
}

// Filter returns a new table containing only the rows for which keep
// returns true. Column order is preserved; the input is not modified.
func (t *Table) Filter(keep func(row int) bool) *Table {
	out := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		out[i] = &Column{Name: c.Name, Values: make([]Value, 0, len(c.Values))}
	}
	for r := 0; r < t.NumRows(); r++ {
		if !keep(r) {
			continue
		}
		for i, c := range t.cols {
			out[i].Values = append(out[i].Values, c.Values[r])
		}
	}
	return New(out...)
}

// Select returns a new table holding the named columns in the given order.
// The returned columns share value slices with the input; selection does
// not copy cell data. An unknown name yields an error naming the column.
func (t *Table) Select(names []string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("column not found: %q", name)
		}
		cols = append(cols, c)
	}
	return New(cols...), nil
}

// NormalizeName lower-cases and trims a column name. Applied once at load
// time; every later lookup assumes names are already in this form.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
