package core

// load.go turns an uploaded file into a normalized table.
//
// The format is picked by file extension: .csv goes through encoding/csv,
// everything else is treated as a workbook and opened with excelize. Column
// names are lower-cased and trimmed once here; the rest of the pipeline
// relies on that normalization being permanent.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/SmartMerge/internal/table"
	"github.com/xuri/excelize/v2"
)

// FileHandle identifies one uploaded source file. It is consumed exactly
// once by Load and discarded afterwards.
type FileHandle struct {
	Name string
	Size int64
	Data []byte
}

// Load parses a file handle into a table.
//
// Error conditions, all reported as *LoadError carrying the file name:
// an empty file (zero bytes), a parse failure from the underlying format
// reader, or a file that parses but yields zero data rows. All of them are
// recoverable at the batch level; the caller skips the file and continues.
func Load(h FileHandle) (*table.Table, error) {
	if h.Size == 0 || len(h.Data) == 0 {
		return nil, &LoadError{File: h.Name, Reason: LoadEmpty}
	}

	var (
		header []string
		rows   [][]string
		err    error
	)
	if strings.EqualFold(filepath.Ext(h.Name), ".csv") {
		header, rows, err = parseCSV(h.Data)
	} else {
		header, rows, err = parseWorkbook(h.Name, h.Data)
	}
	if err != nil {
		return nil, &LoadError{File: h.Name, Reason: LoadParseFailure, Err: err}
	}
	if len(rows) == 0 {
		return nil, &LoadError{File: h.Name, Reason: LoadNoData}
	}

	return buildTable(header, rows), nil
}

// parseCSV reads the whole file as comma-separated records. Ragged rows are
// rejected by encoding/csv's field count check.
func parseCSV(data []byte) (header []string, rows [][]string, err error) {
	r := csv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

// parseWorkbook opens the first sheet of an Excel workbook. Legacy binary
// .xls files have no reader in this stack; they fail here with a message
// telling the user to re-save as .xlsx.
func parseWorkbook(name string, data []byte) (header []string, rows [][]string, err error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		if strings.EqualFold(filepath.Ext(name), ".xls") {
			return nil, nil, fmt.Errorf("legacy .xls workbooks are not supported, save the file as .xlsx: %w", err)
		}
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, nil
	}

	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

// buildTable assembles a columnar table from a header and raw rows.
// Header names are normalized permanently. Rows narrower than the table are
// padded with missing cells (workbook readers drop trailing empties); rows
// wider than the header grow extra "unnamed: N" columns.
func buildTable(header []string, rows [][]string) *table.Table {
	width := len(header)
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}

	names := make([]string, width)
	for i := 0; i < width; i++ {
		if i < len(header) {
			names[i] = table.NormalizeName(header[i])
		} else {
			names[i] = fmt.Sprintf("unnamed: %d", i)
		}
	}

	cols := make([]*table.Column, width)
	for i := range cols {
		cols[i] = &table.Column{Name: names[i], Values: make([]table.Value, len(rows))}
	}
	for r, row := range rows {
		for c := 0; c < width; c++ {
			if c < len(row) {
				cols[c].Values[r] = table.ParseValue(row[c])
			} else {
				cols[c].Values[r] = table.Missing
			}
		}
	}

	return table.New(cols...)
}
