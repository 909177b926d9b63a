package web

// errors.go maps transport failures to coded error responses.
//
// Batch outcomes never come through here: the pipeline's Report builds those.
// This file covers what can go wrong before a batch exists (bad form, missing
// or oversized file, no free pipeline slot) and around lookups.
//
// Codes, for support reference:
//
//	FILE001  file exceeds the configured size limit
//	FILE004  no file in the "file" form field
//	FILE005  file is empty
//	FILE006  request is not a readable multipart form
//	UPL002   every pipeline slot stayed busy for the whole wait
//	UPL003   uploaded file could not be staged on disk
//	UPL004   client went away before the batch started
//	UPL005   request timed out before the batch started
//	REQ001   bad query parameter
//	REQ002   request body is not a flat JSON object
//	REQ003   verification is missing a required attribute
//	CERT001  certificate not found
//	ERR000   anything else; see the server log for the request id
//
// RATE001 and AUTH00x are written by the middleware package.

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/certimport/internal/ingest"
	"github.com/JonMunkholm/certimport/internal/logging"
	"github.com/JonMunkholm/certimport/internal/store"
)

// ErrorResponse is the JSON body of every non-batch error.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Action  string `json:"action,omitempty"`
}

var (
	errFileTooLarge = errors.New("file too large")
	errNoFile       = errors.New("no file provided")
	errEmptyFile    = errors.New("empty file")
	errInvalidForm  = errors.New("invalid multipart form")
	errStageUpload  = errors.New("stage upload")
	errBadQuery     = errors.New("invalid query parameter")
	errInvalidBody  = errors.New("invalid request body")
	errVerifyFields = errors.New("verification attributes missing")
)

// UserMessage is what a client sees for a transport error.
type UserMessage struct {
	Status  int
	Type    string
	Code    string
	Message string
	Action  string
}

// errorMessages is checked in order with errors.Is; the first match wins.
var errorMessages = []struct {
	target error
	msg    UserMessage
}{
	{errFileTooLarge, UserMessage{http.StatusRequestEntityTooLarge, ingest.TypeValidation, "FILE001",
		"File exceeds the maximum upload size", "Split the file into smaller files"}},
	{errNoFile, UserMessage{http.StatusBadRequest, ingest.TypeValidation, "FILE004",
		"No file was uploaded", "Attach an .xlsx or .csv file in the \"file\" field"}},
	{errEmptyFile, UserMessage{http.StatusBadRequest, ingest.TypeValidation, "FILE005",
		"The uploaded file is empty", "Upload a file with a header row and data rows"}},
	{errInvalidForm, UserMessage{http.StatusBadRequest, ingest.TypeValidation, "FILE006",
		"The request is not a valid file upload", "Send the file as multipart/form-data"}},
	{ingest.ErrTooManyUploads, UserMessage{http.StatusServiceUnavailable, ingest.TypeServer, "UPL002",
		"System is busy processing other uploads", "Please wait a moment and try again"}},
	{errStageUpload, UserMessage{http.StatusInternalServerError, ingest.TypeServer, "UPL003",
		"The upload could not be saved for processing", "Please try again"}},
	{context.Canceled, UserMessage{http.StatusRequestTimeout, ingest.TypeServer, "UPL004",
		"Request was cancelled", "Please try again"}},
	{context.DeadlineExceeded, UserMessage{http.StatusGatewayTimeout, ingest.TypeServer, "UPL005",
		"Request timed out", "Try a smaller file or try again later"}},
	{errBadQuery, UserMessage{http.StatusBadRequest, ingest.TypeValidation, "REQ001",
		"Invalid query parameter", "limit must be positive, offset not negative, cgpa a number and endDate a year"}},
	{errInvalidBody, UserMessage{http.StatusBadRequest, ingest.TypeValidation, "REQ002",
		"The request body is not a valid certificate", "Send a JSON object keyed by the upload column names"}},
	{errVerifyFields, UserMessage{http.StatusBadRequest, ingest.TypeValidation, "REQ003",
		"All fields are required, please fill and try again",
		"Provide firstName, middleName, lastName, cgpa, department, endDate and gender"}},
	{store.ErrNotFound, UserMessage{http.StatusNotFound, "not_found", "CERT001",
		"Certificate not found", "Check the certificate ID"}},
}

var unknownError = UserMessage{http.StatusInternalServerError, ingest.TypeServer, "ERR000",
	ingest.MsgServerError, "Please try again or contact support"}

// MapError returns the user message for err.
func MapError(err error) UserMessage {
	for _, m := range errorMessages {
		if errors.Is(err, m.target) {
			return m.msg
		}
	}
	return unknownError
}

// respondError logs the technical error with the request id and writes the
// mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", msg.Status,
		"code", msg.Code,
		"error", err.Error(),
	}
	if msg.Status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Info("request rejected", attrs...)
	}

	writeJSON(w, msg.Status, ErrorResponse{
		Message: msg.Message,
		Type:    msg.Type,
		Code:    msg.Code,
		Action:  msg.Action,
	})
}

// wrapErr tags err with a sentinel so MapError can classify it while the log
// keeps the cause.
func wrapErr(sentinel, err error) error {
	if err == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
