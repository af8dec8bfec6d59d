package table

// parse.go converts raw cell text into tagged Values.
//
// Uploaded files contain the messy reality of user-maintained spreadsheets:
// currency symbols and thousands separators in numbers, accounting-format
// negatives, half a dozen date layouts, and stray whitespace. Parsing is
// best-effort: anything that is not recognizably a number or a date stays
// a string, and empty cells become the missing sentinel.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a valid numeric format after
// cleanup. Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted. Years that
// would land more than this many years in the future are assumed to be in
// the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// ParseValue converts a raw cell into a Value. Empty or whitespace-only
// cells are missing; recognizable numbers and dates get their semantic
// kind; everything else is kept verbatim as a string (leading/trailing
// whitespace trimmed).
func ParseValue(raw string) Value {
	s := CleanCell(raw)
	if s == "" {
		return Missing
	}
	if n, ok := parseNumber(s); ok {
		return NumberVal(n)
	}
	if d, ok := parseDate(s); ok {
		return DateVal(d)
	}
	return StringVal(s)
}

// CleanCell strips the artifacts CSV exports like to leave behind: UTF-8
// BOM, Excel formula prefixes (="value"), and surrounding whitespace.
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

// parseNumber recognizes plain decimals plus the common spreadsheet
// decorations: currency symbols, thousands separators, and the accounting
// convention of parentheses for negatives.
func parseNumber(s string) (float64, bool) {
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseDate tries 4-digit year layouts first (unambiguous), then 2-digit
// year layouts with the pivot adjustment.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}
