package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/certimport/internal/credential"
	"github.com/JonMunkholm/certimport/internal/ingest"
	"github.com/JonMunkholm/certimport/internal/logging"
	"github.com/JonMunkholm/certimport/internal/store"
	"github.com/JonMunkholm/certimport/internal/web/middleware"
)

// Lookups wrap their payload in "data"; upload and add responses use the
// batch report format instead.
type certificateResponse struct {
	Success bool              `json:"success"`
	Data    credential.Record `json:"data"`
}

type certificatesResponse struct {
	Success bool                `json:"success"`
	Count   int                 `json:"count"`
	Data    []credential.Record `json:"data"`
}

type uploadsResponse struct {
	Success bool                     `json:"success"`
	Uploads []credential.UploadEntry `json:"uploads"`
}

// maxEntryBody caps the JSON body of a single-record add.
const maxEntryBody = 64 << 10

// handleGetCertificate returns one stored certificate by identifier.
func (s *Server) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, certificateResponse{Success: true, Data: rec})
}

// handleAddCertificate adds one certificate from a JSON object keyed by the
// upload column names. It goes through the same validation, duplicate check
// and commit as a file and answers in the same report format.
func (s *Server) handleAddCertificate(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(http.MaxBytesReader(w, r.Body, maxEntryBody))
	if err != nil {
		s.respondError(w, r, wrapErr(errInvalidBody, err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Upload.Timeout)
	defer cancel()

	status, resp := ingest.Report(s.pipeline.Add(ctx, fields))
	writeJSON(w, status, resp)
}

// decodeFields reads a flat JSON object into field values. Numbers keep
// their literal text and null is treated as blank.
func decodeFields(body io.Reader) (map[string]string, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("body is not an object")
	}

	fields := make(map[string]string, len(raw))
	for name, v := range raw {
		switch v := v.(type) {
		case string:
			fields[name] = v
		case json.Number:
			fields[name] = v.String()
		case bool:
			fields[name] = strconv.FormatBool(v)
		case nil:
			fields[name] = ""
		default:
			return nil, fmt.Errorf("field %q must be a string or number", name)
		}
	}
	return fields, nil
}

// handleListCertificates lists stored certificates, newest first. Attribute
// parameters narrow the result; ?limit and ?offset page through it.
func (s *Server) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	filter, err := certificateFilter(r.URL.Query())
	if err != nil {
		s.respondError(w, r, wrapErr(errBadQuery, err))
		return
	}

	records, err := s.store.ListCertificates(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if records == nil {
		records = []credential.Record{}
	}
	writeJSON(w, http.StatusOK, certificatesResponse{Success: true, Count: len(records), Data: records})
}

// verifyParams must all be present to verify a certificate by attributes.
var verifyParams = []string{"firstName", "middleName", "lastName", "cgpa", "department", "endDate", "gender"}

// handleVerifyCertificate confirms that a certificate with the given holder
// attributes exists. Names match whole values ignoring case; endDate is the
// graduation year. program and programType narrow the match when given.
func (s *Server) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var missing []string
	for _, name := range verifyParams {
		if strings.TrimSpace(q.Get(name)) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		s.respondError(w, r, fmt.Errorf("%w: missing %s", errVerifyFields, strings.Join(missing, ", ")))
		return
	}

	filter, err := certificateFilter(q)
	if err != nil {
		s.respondError(w, r, wrapErr(errBadQuery, err))
		return
	}
	if filter.Score < credential.MinScore || filter.Score > credential.MaxScore {
		s.respondError(w, r, fmt.Errorf("%w: cgpa %v out of range", errBadQuery, filter.Score))
		return
	}
	filter.Limit, filter.Offset = 1, 0

	records, err := s.store.ListCertificates(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	log := logging.FromContext(r.Context())
	if len(records) == 0 {
		log.Info("certificate verification failed", "client", middleware.ClientIP(r))
		s.respondError(w, r, fmt.Errorf("verify: %w", store.ErrNotFound))
		return
	}
	log.Info("certificate verified", "certificate_id", records[0].Identifier, "client", middleware.ClientIP(r))
	writeJSON(w, http.StatusOK, certificateResponse{Success: true, Data: records[0]})
}

// certificateFilter reads the list and verify query parameters. endYear and
// endDate are both accepted for the graduation year.
func certificateFilter(q url.Values) (store.CertificateFilter, error) {
	f := store.CertificateFilter{
		FirstName:   q.Get("firstName"),
		MiddleName:  q.Get("middleName"),
		LastName:    q.Get("lastName"),
		Gender:      q.Get("gender"),
		Department:  q.Get("department"),
		Program:     q.Get("program"),
		ProgramType: q.Get("programType"),
		Limit:       store.DefaultListLimit,
	}

	if raw := strings.TrimSpace(q.Get("cgpa")); raw != "" {
		score, ok := credential.ParseScore(raw)
		if !ok {
			return f, fmt.Errorf("cgpa %q is not a number", raw)
		}
		f.Score = score
	}

	year := strings.TrimSpace(q.Get("endYear"))
	if year == "" {
		year = strings.TrimSpace(q.Get("endDate"))
	}
	if year != "" {
		n, err := strconv.Atoi(year)
		if err != nil || n < 1000 || n > 9999 {
			return f, fmt.Errorf("graduation year %q is invalid", year)
		}
		f.EndYear = n
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("limit %q must be a positive integer", raw)
		}
		f.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, fmt.Errorf("offset %q must not be negative", raw)
		}
		f.Offset = n
	}
	return f, nil
}

// handleListUploads lists recent uploads, newest first. ?limit=N caps the
// number returned.
func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, r, wrapErr(errBadQuery, err))
			return
		}
		limit = n
	}

	entries, err := s.store.ListUploads(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []credential.UploadEntry{}
	}
	writeJSON(w, http.StatusOK, uploadsResponse{Success: true, Uploads: entries})
}

// handleHealth reports whether the store is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{
		"status":         "ok",
		"activeUploads":  s.limiter.Active(),
		"uploadCapacity": s.limiter.Capacity(),
	}
	if err := s.store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
		body["error"] = "store unreachable"
	}
	writeJSON(w, status, body)
}
