package ingest

import (
	"net/http"
	"strings"
)

// Response is the JSON body returned for an upload.
type Response struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	Type             string   `json:"type,omitempty"`
	Errors           []string `json:"errors,omitempty"`
	DuplicateIDs     []string `json:"duplicateIds,omitempty"`
	RecordsProcessed *int     `json:"recordsProcessed,omitempty"`
}

// User-facing messages.
const (
	MsgProcessed        = "File processed successfully"
	MsgValidationFailed = "Validation errors found"
	MsgNoData           = "No valid data found in the file"
	MsgUnsupportedFile  = "Unsupported file format. Upload an .xlsx or .csv file"
	MsgDatabaseError    = "Database error occurred"
	MsgServerError      = "Internal server error"
)

// Report renders an outcome as an HTTP status and response body. It is the
// only place outcomes are turned into wire responses.
func Report(out Outcome) (int, Response) {
	switch out.Kind {
	case KindCommitted:
		n := out.Inserted
		return http.StatusCreated, Response{
			Success:          true,
			Message:          MsgProcessed,
			RecordsProcessed: &n,
		}

	case KindPartialCommit:
		n := out.Inserted
		return http.StatusBadRequest, Response{
			Message:          "Duplicate certificateIDs detected: " + strings.Join(out.Identifiers, ", "),
			Type:             TypeDuplicate,
			DuplicateIDs:     out.Identifiers,
			RecordsProcessed: &n,
		}

	case KindRejected:
		return http.StatusBadRequest, rejection(out)

	case KindServerError:
		if out.Failure == FailDatabase {
			return http.StatusInternalServerError, Response{Message: MsgDatabaseError, Type: TypeDatabase}
		}
	}
	return http.StatusInternalServerError, Response{Message: MsgServerError, Type: TypeServer}
}

func rejection(out Outcome) Response {
	switch out.Rejection {
	case RejectDuplicateInFile:
		return Response{
			Message:      "Duplicate certificateIDs in file: " + strings.Join(out.Identifiers, ", "),
			Type:         TypeDuplicate,
			DuplicateIDs: out.Identifiers,
		}
	case RejectDuplicateInStore:
		return Response{
			Message:      "CertificateIDs already exist: " + strings.Join(out.Identifiers, ", "),
			Type:         TypeDuplicate,
			DuplicateIDs: out.Identifiers,
		}
	}

	if len(out.RowErrors) == 0 {
		return Response{Message: out.Message, Type: TypeValidation}
	}
	errs := make([]string, len(out.RowErrors))
	for i, e := range out.RowErrors {
		errs[i] = e.Error()
	}
	return Response{Message: MsgValidationFailed, Type: TypeValidation, Errors: errs}
}
