package core

// export.go serializes the final table for download.
//
// CSV is the primary format: UTF-8, comma-delimited, a header row of the
// selected column names, no index column. XLSX export goes through
// excelize's stream writer so large results do not balloon memory.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/JonMunkholm/SmartMerge/internal/table"
	"github.com/xuri/excelize/v2"
)

// DefaultExportName is used when the user does not name the output file.
const DefaultExportName = "Merged_File"

// ExportCSV serializes the table as CSV bytes. Missing cells render as
// empty fields, numbers in their shortest decimal form, dates as
// YYYY-MM-DD.
func ExportCSV(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	record := make([]string, t.NumCols())
	for r := 0; r < t.NumRows(); r++ {
		for c, v := range t.Row(r) {
			record[c] = v.String()
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write row %d: %w", r+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportXLSX serializes the table as a single-sheet workbook. Cell types
// follow the value kinds: numbers and dates are written natively, missing
// cells are left empty.
func ExportXLSX(t *table.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return nil, fmt.Errorf("create stream writer: %w", err)
	}

	header := make([]interface{}, t.NumCols())
	for i, name := range t.Columns() {
		header[i] = name
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for r := 0; r < t.NumRows(); r++ {
		row := make([]interface{}, t.NumCols())
		for c, v := range t.Row(r) {
			switch v.Kind {
			case table.KindNumber:
				row[c] = v.Num
			case table.KindDate:
				row[c] = v.Time
			case table.KindString:
				row[c] = v.Str
			default:
				row[c] = nil
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", r+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flush stream writer: %w", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EnsureExt appends ext (".csv", ".xlsx") to name unless it already ends
// with it, case-insensitively. An empty name falls back to
// DefaultExportName.
func EnsureExt(name, ext string) string {
	if strings.TrimSpace(name) == "" {
		name = DefaultExportName
	}
	if !strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		name += ext
	}
	return name
}
