package ingest

import (
	"github.com/JonMunkholm/certimport/internal/credential"
)

// Kind is the terminal state of a batch.
type Kind string

const (
	KindCommitted     Kind = "committed"
	KindPartialCommit Kind = "partial_commit"
	KindRejected      Kind = "rejected"
	KindServerError   Kind = "server_error"
)

// Rejection says why a batch was rejected before anything was written.
type Rejection string

const (
	RejectValidation       Rejection = "validation"
	RejectDuplicateInFile  Rejection = "duplicate_in_file"
	RejectDuplicateInStore Rejection = "duplicate_in_store"
)

// Failure classifies a server-side error.
type Failure string

const (
	FailDatabase Failure = "database"
	FailServer   Failure = "server"
)

// Wire error types.
const (
	TypeValidation = "validation"
	TypeDuplicate  = "duplicate"
	TypeDatabase   = "database"
	TypeServer     = "server"
)

// Outcome is the result of one pipeline run. Kind selects which of the
// remaining fields are meaningful:
//
//	KindCommitted      Inserted
//	KindPartialCommit  Inserted, Identifiers (conflicting ids, not written)
//	KindRejected       Rejection, plus Message, RowErrors or Identifiers
//	KindServerError    Failure, Err
type Outcome struct {
	Kind      Kind
	Rejection Rejection
	Failure   Failure

	Message     string                // batch-level validation message
	RowErrors   []credential.RowError // per-row validation failures
	Identifiers []string              // duplicate or conflicting identifiers
	Inserted    int                   // records durably written
	Err         error
}

func Committed(inserted int) Outcome {
	return Outcome{Kind: KindCommitted, Inserted: inserted}
}

func PartialCommit(inserted int, conflicts []string) Outcome {
	return Outcome{Kind: KindPartialCommit, Inserted: inserted, Identifiers: conflicts}
}

// RejectedBatch rejects the batch as a whole, for example on missing columns.
func RejectedBatch(message string) Outcome {
	return Outcome{Kind: KindRejected, Rejection: RejectValidation, Message: message}
}

// RejectedRows rejects the batch because one or more rows failed validation.
func RejectedRows(errs []credential.RowError) Outcome {
	return Outcome{Kind: KindRejected, Rejection: RejectValidation, RowErrors: errs}
}

func DuplicateInFile(ids []string) Outcome {
	return Outcome{Kind: KindRejected, Rejection: RejectDuplicateInFile, Identifiers: ids}
}

func DuplicateInStore(ids []string) Outcome {
	return Outcome{Kind: KindRejected, Rejection: RejectDuplicateInStore, Identifiers: ids}
}

func ServerError(failure Failure, err error) Outcome {
	return Outcome{Kind: KindServerError, Failure: failure, Err: err}
}

// Type returns the wire error type, or "" for a full commit.
func (o Outcome) Type() string {
	switch o.Kind {
	case KindPartialCommit:
		return TypeDuplicate
	case KindRejected:
		if o.Rejection == RejectValidation {
			return TypeValidation
		}
		return TypeDuplicate
	case KindServerError:
		if o.Failure == FailDatabase {
			return TypeDatabase
		}
		return TypeServer
	}
	return ""
}

// Failed returns how many rows or identifiers the outcome reports as failing.
func (o Outcome) Failed() int {
	if len(o.RowErrors) > 0 {
		return len(o.RowErrors)
	}
	return len(o.Identifiers)
}
