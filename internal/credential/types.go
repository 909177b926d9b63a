package credential

import (
	"fmt"
	"time"
)

// Record is a validated credential row ready for persistence.
type Record struct {
	Identifier   string    `json:"certificateID"`
	FirstName    string    `json:"firstName"`
	MiddleName   string    `json:"middleName"`
	LastName     string    `json:"lastName"`
	Gender       string    `json:"gender"`
	College      string    `json:"college"`
	Department   string    `json:"department"`
	Program      string    `json:"program"`
	ProgramType  string    `json:"programType"`
	Status       string    `json:"gstatus"`
	Score        float64   `json:"cgpa"`
	PeriodStart  time.Time `json:"startDate"`
	PeriodEnd    time.Time `json:"endDate"`
	DisplayAsset string    `json:"photo"`

	// Set by the store on insert.
	UploadID  string    `json:"uploadId,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// RawRow is one decoded data row. Values are keyed by canonical column name;
// the column order lives in the owning Table's Header.
type RawRow struct {
	Line   int // 1-based spreadsheet line number
	Values map[string]string
}

// Get returns the raw cell for a canonical column, or "" if absent.
func (r RawRow) Get(column string) string {
	return r.Values[column]
}

// Table is a decoded upload: canonical header columns in file order plus the
// non-blank data rows beneath them.
type Table struct {
	Header []string
	Rows   []RawRow
}

// HasColumn reports whether the header carries the canonical column.
func (t Table) HasColumn(column string) bool {
	for _, h := range t.Header {
		if h == column {
			return true
		}
	}
	return false
}

// RowError is a validation failure for one spreadsheet row.
type RowError struct {
	Row     int    // spreadsheet line number
	Message string // all failures for the row, joined with "; "
}

func (e RowError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Message)
}

// RowResult is the validation result of a single row: exactly one of Record
// or Err is meaningful.
type RowResult struct {
	Record Record
	Err    *RowError
}

// OK reports whether the row produced a record.
func (r RowResult) OK() bool {
	return r.Err == nil
}

// UploadEntry is one line of upload history.
type UploadEntry struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	Outcome    string    `json:"outcome"`
	Type       string    `json:"type,omitempty"`
	Inserted   int       `json:"rowsInserted"`
	Failed     int       `json:"rowsFailed"`
	UploadedAt time.Time `json:"uploadedAt"`
}
