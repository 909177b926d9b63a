package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/certimport/internal/config"
	"github.com/JonMunkholm/certimport/internal/credential"
	"github.com/JonMunkholm/certimport/internal/ingest"
	"github.com/JonMunkholm/certimport/internal/store"
)

var header = []string{
	"certificateID", "firstName", "middleName", "lastName", "department", "college",
	"gender", "cgpa", "program", "programType", "gstatus", "startDate", "endDate",
}

func row(id, score string) []string {
	return []string{
		id, "Hana", "Girma", "Alemu", "Computer Science", "Engineering and Technology",
		"female", score, "MSc", "weekend", "verified", "2021-02-01", "2023-06-30",
	}
}

func csvFile(rows ...[]string) []byte {
	var b strings.Builder
	for _, r := range append([][]string{header}, rows...) {
		b.WriteString(strings.Join(r, ","))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func xlsxFile(t *testing.T, rows ...[]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for i, r := range append([][]string{header}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

type testEnv struct {
	srv     *Server
	store   *store.Memory
	tempDir string
}

func newTestEnv(t *testing.T, vars map[string]string) *testEnv {
	t.Helper()
	tempDir := t.TempDir()
	env := map[string]string{
		"STORE_DRIVER":       "memory",
		"UPLOAD_TEMP_DIR":    tempDir,
		"RATE_LIMIT_ENABLED": "false",
	}
	for k, v := range vars {
		env[k] = v
	}
	cfg, err := config.LoadFrom(func(key string) string { return env[key] })
	require.NoError(t, err)

	mem := store.NewMemory()
	reg := prometheus.NewRegistry()
	pipeline := ingest.NewPipeline(mem, credential.DefaultCatalog(), ingest.NewMetrics(reg))
	limiter := ingest.NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)

	return &testEnv{
		srv:     NewServer(cfg, mem, pipeline, limiter, reg),
		store:   mem,
		tempDir: tempDir,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, fileName, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(uploadRequest(t, "file", fileName, contentType, content))
}

func uploadRequest(t *testing.T, field, fileName, contentType string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fileName))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/certificates/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged uploads must be removed")
}

func TestUpload_CommitsAndLooksUp(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.upload(t, "grads.csv", "text/csv", csvFile(row("CS-001", "3.5"), row("CS-002", "3.9")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[ingest.Response](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, ingest.MsgProcessed, resp.Message)
	require.NotNil(t, resp.RecordsProcessed)
	assert.Equal(t, 2, *resp.RecordsProcessed)
	assertTempDirEmpty(t, env.tempDir)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/certificates/CS-001", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[certificateResponse](t, rec)
	assert.True(t, got.Success)
	assert.Equal(t, "CS-001", got.Data.Identifier)
	assert.InDelta(t, 3.5, got.Data.Score, 1e-9)
	assert.Equal(t, "2021-02-01", got.Data.PeriodStart.Format("2006-01-02"))
	assert.NotEmpty(t, got.Data.DisplayAsset)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "data")
	assert.NotContains(t, raw, "certificate")
}

func TestUpload_XLSX(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.upload(t, "grads.xlsx", "", xlsxFile(t, row("EE-100", "3.2")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.store.Count())
	assertTempDirEmpty(t, env.tempDir)
}

func TestUpload_Resubmission(t *testing.T) {
	env := newTestEnv(t, nil)
	content := csvFile(row("CS-001", "3.5"), row("CS-002", "3.9"))

	require.Equal(t, http.StatusCreated, env.upload(t, "grads.csv", "", content).Code)

	rec := env.upload(t, "grads.csv", "", content)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ingest.Response](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, ingest.TypeDuplicate, resp.Type)
	assert.Equal(t, []string{"CS-001", "CS-002"}, resp.DuplicateIDs)
	assert.Nil(t, resp.RecordsProcessed)
	assert.Equal(t, 2, env.store.Count())
}

func TestUpload_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.upload(t, "grads.csv", "", csvFile(row("CS-001", "4.5"), row("CS-002", "3.0")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[ingest.Response](t, rec)
	assert.Equal(t, ingest.TypeValidation, resp.Type)
	assert.Equal(t, ingest.MsgValidationFailed, resp.Message)
	require.Len(t, resp.Errors, 1)
	assert.True(t, strings.HasPrefix(resp.Errors[0], "Row 2: "), resp.Errors[0])
	assert.Zero(t, env.store.Count())
	assertTempDirEmpty(t, env.tempDir)
}

func TestUpload_UnsupportedFormat(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.upload(t, "notes.txt", "text/plain", []byte("hello"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[ingest.Response](t, rec)
	assert.Equal(t, ingest.TypeValidation, resp.Type)
	assert.Equal(t, ingest.MsgUnsupportedFile, resp.Message)
	assertTempDirEmpty(t, env.tempDir)
}

func TestUpload_TransportErrors(t *testing.T) {
	tests := []struct {
		name     string
		vars     map[string]string
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name: "wrong field",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "document", "grads.csv", "", csvFile(row("A", "3")))
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE004",
		},
		{
			name: "empty file",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "grads.csv", "", nil)
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE005",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/certificates/upload", strings.NewReader("{}"))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE006",
		},
		{
			name: "too large",
			vars: map[string]string{"UPLOAD_MAX_FILE_SIZE": "64"},
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "grads.csv", "", csvFile(row("A", "3")))
			},
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  "FILE001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.vars)
			rec := env.do(tt.req(t))

			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantErr, resp.Code)
			assert.NotEmpty(t, resp.Message)
			assertTempDirEmpty(t, env.tempDir)
		})
	}
}

func TestUpload_AllSlotsBusy(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"UPLOAD_MAX_CONCURRENT": "1",
		"UPLOAD_MAX_WAIT_TIME":  "10ms",
	})
	require.NoError(t, env.srv.limiter.Acquire(context.Background()))
	defer env.srv.limiter.Release()

	rec := env.upload(t, "grads.csv", "", csvFile(row("CS-001", "3.5")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "UPL002", decode[ErrorResponse](t, rec).Code)
	assert.Zero(t, env.store.Count())
}

func TestGetCertificate_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/certificates/NOPE", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "not_found", resp.Type)
	assert.Equal(t, "CERT001", resp.Code)
}

func TestListUploads(t *testing.T) {
	env := newTestEnv(t, nil)

	env.upload(t, "first.csv", "", csvFile(row("CS-001", "3.5")))
	env.upload(t, "second.csv", "", csvFile(row("CS-001", "3.5")))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[uploadsResponse](t, rec)
	require.Len(t, resp.Uploads, 2)

	outcomes := map[string]string{}
	for _, u := range resp.Uploads {
		outcomes[u.FileName] = u.Outcome
	}
	assert.Equal(t, string(ingest.KindCommitted), outcomes["first.csv"])
	assert.Equal(t, string(ingest.KindRejected), outcomes["second.csv"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/uploads?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[uploadsResponse](t, rec).Uploads, 1)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/uploads?limit=1000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[uploadsResponse](t, rec).Uploads, 2)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/uploads?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ001", decode[ErrorResponse](t, rec).Code)
}

func TestListUploads_Empty(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"uploads":[]}`, rec.Body.String())
}

func addRequest(t *testing.T, fields map[string]any) *http.Request {
	t.Helper()
	body, err := json.Marshal(fields)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/certificates", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func entry(id string, score float64) map[string]any {
	fields := map[string]any{}
	for i, v := range row(id, "") {
		fields[header[i]] = v
	}
	fields["cgpa"] = score
	return fields
}

func TestAddCertificate(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(addRequest(t, entry("ADD-001", 3.25)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[ingest.Response](t, rec)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.RecordsProcessed)
	assert.Equal(t, 1, *resp.RecordsProcessed)

	got, err := env.store.Get(context.Background(), "ADD-001")
	require.NoError(t, err)
	assert.InDelta(t, 3.25, got.Score, 1e-9)

	// The same identifier again is a store duplicate, as for a file.
	rec = env.do(addRequest(t, entry("ADD-001", 3.5)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp = decode[ingest.Response](t, rec)
	assert.Equal(t, ingest.TypeDuplicate, resp.Type)
	assert.Equal(t, []string{"ADD-001"}, resp.DuplicateIDs)

	// An identifier already taken by an upload is rejected too.
	env.upload(t, "grads.csv", "", csvFile(row("CS-010", "3.1")))
	rec = env.do(addRequest(t, entry("CS-010", 3.1)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 2, env.store.Count())
}

func TestAddCertificate_Rejected(t *testing.T) {
	env := newTestEnv(t, nil)

	bad := entry("ADD-002", 4.7)
	bad["gender"] = "unknown"
	rec := env.do(addRequest(t, bad))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ingest.Response](t, rec)
	assert.Equal(t, ingest.TypeValidation, resp.Type)
	assert.Contains(t, resp.Message, "score must be between 2.0 and 4.0")
	assert.Contains(t, resp.Message, `invalid gender "unknown"`)
	assert.Equal(t, 0, env.store.Count())

	for name, body := range map[string]string{
		"not json":      "certificateID=ADD-003",
		"array":         `[{"certificateID":"ADD-003"}]`,
		"nested object": `{"certificateID":{"id":"ADD-003"}}`,
		"null":          `null`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/certificates", strings.NewReader(body))
			rec := env.do(req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "REQ002", decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestListCertificates(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/certificates", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"count":0,"data":[]}`, rec.Body.String())

	other := row("CS-003", "2.8")
	other[1] = "Dawit"
	rec = env.upload(t, "grads.csv", "", csvFile(row("CS-001", "3.5"), row("CS-002", "3.9"), other))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tests := map[string]struct {
		query string
		want  []string
	}{
		"all":          {"", []string{"CS-001", "CS-002", "CS-003"}},
		"by name":      {"?firstName=hana&lastName=ALEMU", []string{"CS-001", "CS-002"}},
		"by score":     {"?cgpa=3.90", []string{"CS-002"}},
		"by year":      {"?endYear=2023", []string{"CS-001", "CS-002", "CS-003"}},
		"other year":   {"?endDate=2020", []string{}},
		"paged":        {"?limit=1&offset=2", []string{"CS-003"}},
		"capped limit": {"?limit=100000", []string{"CS-001", "CS-002", "CS-003"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, "/api/certificates"+tt.query, nil))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			resp := decode[certificatesResponse](t, rec)
			ids := []string{}
			for _, c := range resp.Data {
				ids = append(ids, c.Identifier)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, len(tt.want), resp.Count)
		})
	}

	for _, q := range []string{"?limit=0", "?offset=-1", "?cgpa=high", "?endYear=23"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/certificates"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "REQ001", decode[ErrorResponse](t, rec).Code, q)
	}
}

func TestVerifyCertificate(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.upload(t, "grads.csv", "", csvFile(row("CS-001", "3.5")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	const match = "firstName=HANA&middleName=girma&lastName=Alemu&cgpa=3.50" +
		"&department=computer%20science&endDate=2023&gender=Female"

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/certificates/verify?"+match, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CS-001", decode[certificateResponse](t, rec).Data.Identifier)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/certificates/verify?"+match+"&program=MSc&programType=weekend", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	tests := map[string]struct {
		query  string
		status int
		code   string
	}{
		"wrong year":         {strings.Replace(match, "2023", "2022", 1), http.StatusNotFound, "CERT001"},
		"wrong score":        {strings.Replace(match, "3.50", "3.4", 1), http.StatusNotFound, "CERT001"},
		"wrong program":      {match + "&program=BSc", http.StatusNotFound, "CERT001"},
		"missing attribute":  {strings.Replace(match, "&gender=Female", "", 1), http.StatusBadRequest, "REQ003"},
		"score out of range": {strings.Replace(match, "3.50", "4.5", 1), http.StatusBadRequest, "REQ001"},
		"bad year":           {strings.Replace(match, "2023", "soon", 1), http.StatusBadRequest, "REQ001"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, "/api/certificates/verify?"+tt.query, nil))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"REQUIRE_API_KEY": "true",
		"API_KEYS":        "k1,k2",
	})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/uploads", nil)
	req.Header.Set("X-API-Key", "k2")
	assert.Equal(t, http.StatusOK, env.do(req).Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health checks are not authenticated")
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"RATE_LIMIT_ENABLED":             "true",
		"RATE_LIMIT_REQUESTS_PER_MINUTE": "2",
	})

	for range 2 {
		require.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/api/uploads", nil)).Code)
	}
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", health["status"])

	env.upload(t, "grads.csv", "", csvFile(row("CS-001", "3.5")))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "certimport_batches_total")
	assert.Contains(t, string(body), `kind="committed"`)
	assert.Contains(t, string(body), "certimport_records_inserted_total 1")
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/certificates/upload", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		return env.do(req)
	}

	rec := preflight("http://localhost:5173")
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = preflight("https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: 11MB", errFileTooLarge), "FILE001"},
		{ingest.ErrTooManyUploads, "UPL002"},
		{fmt.Errorf("acquire: %w", context.Canceled), "UPL004"},
		{context.DeadlineExceeded, "UPL005"},
		{fmt.Errorf("get: %w", store.ErrNotFound), "CERT001"},
		{wrapErr(errStageUpload, context.Canceled), "UPL003"},
		{wrapErr(errBadQuery, nil), "REQ001"},
		{wrapErr(errInvalidBody, io.EOF), "REQ002"},
		{fmt.Errorf("%w: missing gender", errVerifyFields), "REQ003"},
		{io.ErrUnexpectedEOF, "ERR000"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}
}
