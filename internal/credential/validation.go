package credential

// validation.go checks decoded rows before anything reaches the store.
//
// Validation happens at two levels:
//  1. Batch structure: required columns must be in the header and filled in
//     the first data row (MissingFields).
//  2. Row values: every row is checked for presence, type, range, date order
//     and catalog membership (Validator.ValidateRow).
//
// Row validation collects every problem in a row into one RowError and keeps
// going through the whole batch.

import (
	"fmt"
	"strings"
	"time"
)

// Score bounds, inclusive.
const (
	MinScore = 2.0
	MaxScore = 4.0
)

// Validator checks decoded rows against the column contract and a catalog.
type Validator struct {
	catalog Catalog
	asset   func(gender string) string
}

// NewValidator creates a validator for the given catalog.
func NewValidator(catalog Catalog) *Validator {
	return &Validator{
		catalog: catalog,
		asset:   DefaultDisplayAsset,
	}
}

// MissingFields returns the required columns that are absent from the header
// or blank in the first data row, in contract order.
func MissingFields(t Table) []string {
	var first RawRow
	if len(t.Rows) > 0 {
		first = t.Rows[0]
	}

	var missing []string
	for _, col := range RequiredColumns() {
		if !t.HasColumn(col) || CleanCell(first.Get(col)) == "" {
			missing = append(missing, col)
		}
	}
	return missing
}

// ValidateRows validates every row in order. It returns the records when all
// rows pass, or every row error when any row fails; never both.
func (v *Validator) ValidateRows(rows []RawRow) ([]Record, []RowError) {
	records := make([]Record, 0, len(rows))
	var errs []RowError

	for _, row := range rows {
		res := v.ValidateRow(row)
		if !res.OK() {
			errs = append(errs, *res.Err)
			continue
		}
		records = append(records, res.Record)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return records, nil
}

// ValidateRow validates and normalizes one row.
func (v *Validator) ValidateRow(row RawRow) RowResult {
	rc := rowCheck{row: row}

	rec := Record{
		Identifier: CleanCell(row.Get(ColIdentifier)),
		FirstName:  CleanCell(row.Get(ColFirstName)),
		MiddleName: CleanCell(row.Get(ColMiddleName)),
		LastName:   CleanCell(row.Get(ColLastName)),
	}

	if rec.Identifier == "" {
		rc.fail("certificateID cannot be empty")
	}
	rc.required("firstName", rec.FirstName)
	rc.required("middleName", rec.MiddleName)
	rc.required("lastName", rec.LastName)

	rec.Gender = rc.enum("gender", ColGender, v.catalog.Genders)
	rec.College = rc.enum("college", ColCollege, v.catalog.Colleges)
	rec.Department = rc.enum("department", ColDepartment, v.catalog.Departments)
	rec.Program = rc.enum("program", ColProgram, v.catalog.Programs)
	rec.ProgramType = rc.enum("programType", ColProgramType, v.catalog.ProgramTypes)
	rec.Status = rc.enum("status", ColStatus, v.catalog.Statuses)

	start, startOK := rc.date("start date", ColStartDate)
	end, endOK := rc.date("end date", ColEndDate)
	if startOK && endOK && start.After(end) {
		rc.fail("start date must not be after end date")
	}
	rec.PeriodStart, rec.PeriodEnd = start, end

	rec.Score = rc.score()

	if len(rc.problems) > 0 {
		return RowResult{Err: &RowError{
			Row:     row.Line,
			Message: strings.Join(rc.problems, "; "),
		}}
	}

	rec.DisplayAsset = CleanCell(row.Get(ColPhoto))
	if rec.DisplayAsset == "" {
		rec.DisplayAsset = v.asset(rec.Gender)
	}
	return RowResult{Record: rec}
}

// rowCheck accumulates the problems found in one row.
type rowCheck struct {
	row      RawRow
	problems []string
}

func (c *rowCheck) fail(format string, args ...any) {
	c.problems = append(c.problems, fmt.Sprintf(format, args...))
}

func (c *rowCheck) required(label, value string) {
	if value == "" {
		c.fail("%s is required", label)
	}
}

func (c *rowCheck) enum(label, column string, domain []string) string {
	raw := CleanCell(c.row.Get(column))
	if raw == "" {
		c.fail("%s is required", label)
		return ""
	}
	v, ok := lookup(domain, raw)
	if !ok {
		c.fail("invalid %s %q", label, raw)
		return ""
	}
	return v
}

func (c *rowCheck) date(label, column string) (time.Time, bool) {
	raw := CleanCell(c.row.Get(column))
	if raw == "" {
		c.fail("%s is required", label)
		return time.Time{}, false
	}
	t, ok := ParseDate(raw)
	if !ok {
		c.fail("invalid %s %q", label, raw)
		return time.Time{}, false
	}
	return t, true
}

func (c *rowCheck) score() float64 {
	raw := CleanCell(c.row.Get(ColScore))
	if raw == "" {
		c.fail("score is required")
		return 0
	}
	s, ok := ParseScore(raw)
	if !ok {
		c.fail("score must be a number")
		return 0
	}
	if s < MinScore || s > MaxScore {
		c.fail("score must be between 2.0 and 4.0")
		return 0
	}
	return s
}
