package credential

// convert.go turns spreadsheet cell text into typed values.
//
// Cells arrive as whatever the sheet author typed or Excel rendered:
//   - dates in ISO layouts (year first), slash or hyphen layouts (month
//     first, as US Excel renders them) and dotted layouts (day first,
//     25.12.2020), with 2- or 4-digit years
//   - dates left as raw Excel serial numbers (45306 = 2024-01-15)
//   - numbers with stray whitespace
//   - Excel formula prefixes (="value") and stray quotes

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// numericRegex accepts plain decimals: "3", "3.5", ".5", "+3.50".
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are moved
// to the previous century.
var TwoDigitYearPivot = 20

// Excel serial dates accepted as dates: 1900-01-01 through 9999-12-31.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// Layouts are tried in order; the first match wins. The separator decides
// field order: "/" and "-" are month first, "." is day first.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06",
		"2.1.06", "02.01.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006",
		"2.1.2006", "02.01.2006",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006",
		"20060102",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
)

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, a UTF-8 BOM, an Excel formula prefix (="...")
// and surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// ParseDate parses a cell as a calendar date (UTC midnight).
// Returns false if the cell is empty or matches no known layout.
func ParseDate(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return dateOnly(t), true
		}
	}

	// Unformatted date cells come through as serial day numbers.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= minExcelSerial && serial <= maxExcelSerial {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return dateOnly(t), true
		}
	}

	return time.Time{}, false
}

// ParseScore parses a cell as a plain decimal number.
func ParseScore(s string) (float64, bool) {
	s = CleanCell(s)
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
