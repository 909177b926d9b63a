package credential

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoDataRows is returned when an upload has a header but no data rows.
var ErrNoDataRows = errors.New("no data rows found")

// BulkWriteError reports an insert-many that hit identifier conflicts while
// writing. Inserted records are durable; Conflicts were not written.
type BulkWriteError struct {
	Inserted  int
	Conflicts []string
	Err       error // underlying store error, if any
}

func (e *BulkWriteError) Error() string {
	msg := fmt.Sprintf("bulk write: %d inserted, %d conflicting identifiers", e.Inserted, len(e.Conflicts))
	if len(e.Conflicts) > 0 {
		msg += " (" + strings.Join(e.Conflicts, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BulkWriteError) Unwrap() error {
	return e.Err
}
