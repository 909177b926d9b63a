package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/certimport/internal/credential"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// uniqueKeyDetail extracts the key value from a unique_violation detail such
// as: Key (certificate_id)=(CS-001) already exists.
var uniqueKeyDetail = regexp.MustCompile(`Key \(certificate_id\)=\((.*)\) already exists`)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const existingIdentifiersSQL = `
SELECT certificate_id
FROM certificates
WHERE certificate_id = ANY($1::text[])`

// ExistingIdentifiers returns the ids already present, in no particular order.
func (s *Postgres) ExistingIdentifiers(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, existingIdentifiersSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("query existing identifiers: %w", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan existing identifiers: %w", err)
	}
	return existing, nil
}

// insertManySQL writes the whole batch in one statement. Rows whose
// identifier already exists are skipped rather than aborting the statement,
// so the returned ids are exactly the records written.
const insertManySQL = `
INSERT INTO certificates (
    certificate_id, first_name, middle_name, last_name, gender, college,
    department, program, program_type, status, cgpa, start_date, end_date,
    photo, upload_id
)
SELECT u.*, $15::uuid
FROM unnest(
    $1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[],
    $7::text[], $8::text[], $9::text[], $10::text[], $11::float8[],
    $12::date[], $13::date[], $14::text[]
) AS u
ON CONFLICT (certificate_id) DO NOTHING
RETURNING certificate_id`

// InsertMany writes records, skipping identifiers that already exist. When
// any record is skipped the error is a *credential.BulkWriteError carrying
// the inserted count and the skipped identifiers.
func (s *Postgres) InsertMany(ctx context.Context, uploadID string, records []credential.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	cols := newInsertColumns(len(records))
	for _, r := range records {
		cols.add(r)
	}

	rows, err := s.pool.Query(ctx, insertManySQL,
		cols.ids, cols.firstNames, cols.middleNames, cols.lastNames, cols.genders,
		cols.colleges, cols.departments, cols.programs, cols.programTypes, cols.statuses,
		cols.scores, cols.starts, cols.ends, cols.photos, uploadID,
	)
	if err != nil {
		return 0, insertError(err)
	}
	inserted, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, insertError(err)
	}

	conflicts := missingFrom(cols.ids, inserted)
	if len(conflicts) > 0 {
		return len(inserted), &credential.BulkWriteError{
			Inserted:  len(inserted),
			Conflicts: conflicts,
		}
	}
	return len(inserted), nil
}

// insertError maps a stray unique violation onto a BulkWriteError so the
// caller reports it as a duplicate rather than a database failure.
func insertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		var conflicts []string
		if m := uniqueKeyDetail.FindStringSubmatch(pgErr.Detail); m != nil {
			conflicts = []string{m[1]}
		}
		return &credential.BulkWriteError{Conflicts: conflicts, Err: err}
	}
	return fmt.Errorf("insert certificates: %w", err)
}

const certificateColumns = `
certificate_id, first_name, middle_name, last_name, gender, college,
department, program, program_type, status, cgpa::float8, start_date,
end_date, photo, upload_id::text, created_at`

const getCertificateSQL = `SELECT` + certificateColumns + `
FROM certificates
WHERE certificate_id = $1`

// Get returns the certificate with the given identifier.
func (s *Postgres) Get(ctx context.Context, id string) (credential.Record, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx, getCertificateSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return credential.Record{}, ErrNotFound
	}
	if err != nil {
		return credential.Record{}, fmt.Errorf("get certificate %q: %w", id, err)
	}
	return r, nil
}

// listCertificatesSQL treats a NULL parameter as "any".
const listCertificatesSQL = `SELECT` + certificateColumns + `
FROM certificates
WHERE ($1::text IS NULL OR lower(first_name) = lower($1))
  AND ($2::text IS NULL OR lower(middle_name) = lower($2))
  AND ($3::text IS NULL OR lower(last_name) = lower($3))
  AND ($4::text IS NULL OR lower(gender) = lower($4))
  AND ($5::text IS NULL OR lower(department) = lower($5))
  AND ($6::text IS NULL OR lower(program) = lower($6))
  AND ($7::text IS NULL OR lower(program_type) = lower($7))
  AND ($8::float8 IS NULL OR cgpa = round($8::numeric, 2))
  AND ($9::int IS NULL OR extract(year FROM end_date) = $9)
ORDER BY created_at DESC, certificate_id
LIMIT $10 OFFSET $11`

// ListCertificates returns the certificates matching f, newest first.
func (s *Postgres) ListCertificates(ctx context.Context, f CertificateFilter) ([]credential.Record, error) {
	rows, err := s.pool.Query(ctx, listCertificatesSQL,
		optText(f.FirstName), optText(f.MiddleName), optText(f.LastName),
		optText(f.Gender), optText(f.Department), optText(f.Program), optText(f.ProgramType),
		pgtype.Float8{Float64: f.Score, Valid: f.Score != 0},
		pgtype.Int4{Int32: int32(f.EndYear), Valid: f.EndYear != 0},
		clampLimit(f.Limit), max(f.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	records := []credential.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return records, nil
}

// scanRecord reads one row selected with certificateColumns.
func scanRecord(row pgx.Row) (credential.Record, error) {
	var (
		r         credential.Record
		uploadID  pgtype.Text
		createdAt pgtype.Timestamptz
	)
	err := row.Scan(
		&r.Identifier, &r.FirstName, &r.MiddleName, &r.LastName, &r.Gender, &r.College,
		&r.Department, &r.Program, &r.ProgramType, &r.Status, &r.Score, &r.PeriodStart,
		&r.PeriodEnd, &r.DisplayAsset, &uploadID, &createdAt,
	)
	if err != nil {
		return credential.Record{}, err
	}
	r.UploadID = uploadID.String
	r.CreatedAt = createdAt.Time
	return r, nil
}

func optText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	return pgtype.Text{String: s, Valid: s != ""}
}

const recordUploadSQL = `
INSERT INTO certificate_uploads (id, file_name, outcome, type, rows_inserted, rows_failed, uploaded_at)
VALUES ($1::uuid, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, now()))`

// RecordUpload appends an upload history entry.
func (s *Postgres) RecordUpload(ctx context.Context, e credential.UploadEntry) error {
	_, err := s.pool.Exec(ctx, recordUploadSQL,
		e.ID,
		e.FileName,
		e.Outcome,
		pgtype.Text{String: e.Type, Valid: e.Type != ""},
		e.Inserted,
		e.Failed,
		pgtype.Timestamptz{Time: e.UploadedAt, Valid: !e.UploadedAt.IsZero()},
	)
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

const listUploadsSQL = `
SELECT id::text, file_name, outcome, type, rows_inserted, rows_failed, uploaded_at
FROM certificate_uploads
ORDER BY uploaded_at DESC
LIMIT $1`

// ListUploads returns the most recent upload history entries, newest first.
func (s *Postgres) ListUploads(ctx context.Context, limit int) ([]credential.UploadEntry, error) {
	rows, err := s.pool.Query(ctx, listUploadsSQL, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	entries := []credential.UploadEntry{}
	for rows.Next() {
		var (
			e          credential.UploadEntry
			typ        pgtype.Text
			uploadedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&e.ID, &e.FileName, &e.Outcome, &typ, &e.Inserted, &e.Failed, &uploadedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		e.Type = typ.String
		e.UploadedAt = uploadedAt.Time
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return entries, nil
}

// Ping checks database connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// insertColumns holds a batch pivoted into one slice per column for unnest.
type insertColumns struct {
	ids, firstNames, middleNames, lastNames, genders, colleges []string
	departments, programs, programTypes, statuses, photos      []string
	scores                                                     []float64
	starts, ends                                               []time.Time
}

func newInsertColumns(n int) *insertColumns {
	return &insertColumns{
		ids:          make([]string, 0, n),
		firstNames:   make([]string, 0, n),
		middleNames:  make([]string, 0, n),
		lastNames:    make([]string, 0, n),
		genders:      make([]string, 0, n),
		colleges:     make([]string, 0, n),
		departments:  make([]string, 0, n),
		programs:     make([]string, 0, n),
		programTypes: make([]string, 0, n),
		statuses:     make([]string, 0, n),
		photos:       make([]string, 0, n),
		scores:       make([]float64, 0, n),
		starts:       make([]time.Time, 0, n),
		ends:         make([]time.Time, 0, n),
	}
}

func (c *insertColumns) add(r credential.Record) {
	c.ids = append(c.ids, r.Identifier)
	c.firstNames = append(c.firstNames, r.FirstName)
	c.middleNames = append(c.middleNames, r.MiddleName)
	c.lastNames = append(c.lastNames, r.LastName)
	c.genders = append(c.genders, r.Gender)
	c.colleges = append(c.colleges, r.College)
	c.departments = append(c.departments, r.Department)
	c.programs = append(c.programs, r.Program)
	c.programTypes = append(c.programTypes, r.ProgramType)
	c.statuses = append(c.statuses, r.Status)
	c.scores = append(c.scores, r.Score)
	c.starts = append(c.starts, r.PeriodStart)
	c.ends = append(c.ends, r.PeriodEnd)
	c.photos = append(c.photos, r.DisplayAsset)
}

// missingFrom returns the members of ids not present in got, in ids order,
// each listed once.
func missingFrom(ids, got []string) []string {
	present := make(map[string]bool, len(got))
	for _, id := range got {
		present[id] = true
	}

	var missing []string
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
			present[id] = true
		}
	}
	return missing
}
