package ingest

// pipeline.go runs one uploaded file through the import stages:
//
//	read -> header check -> row validation -> in-file duplicates
//	     -> store duplicates -> commit
//
// Each stage either hands its result to the next or stops the batch with an
// Outcome. Nothing is written to the store unless every earlier stage passed.
// The uploaded temp file belongs to the pipeline from the moment Run is
// called and is removed exactly once on every path out of Run, including
// panics.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/certimport/internal/credential"
	"github.com/JonMunkholm/certimport/internal/logging"
)

// Store is the persistence the pipeline needs.
type Store interface {
	// ExistingIdentifiers returns the subset of ids already stored.
	ExistingIdentifiers(ctx context.Context, ids []string) ([]string, error)

	// InsertMany writes records without stopping at the first conflict.
	// Identifier conflicts are reported as *credential.BulkWriteError.
	InsertMany(ctx context.Context, uploadID string, records []credential.Record) (int, error)

	// RecordUpload appends an entry to the upload history.
	RecordUpload(ctx context.Context, entry credential.UploadEntry) error
}

// Upload describes an uploaded file handed to the pipeline.
type Upload struct {
	Path      string // temp file; removed by Run
	FileName  string // client file name, for logs and history
	MediaType string
	Size      int64
}

// Pipeline validates and commits uploaded credential batches.
type Pipeline struct {
	store     Store
	adapter   *Adapter
	validator *credential.Validator
	metrics   *Metrics

	remove func(string) error
	now    func() time.Time
}

// NewPipeline creates a pipeline over store. metrics may be nil.
func NewPipeline(store Store, catalog credential.Catalog, metrics *Metrics) *Pipeline {
	return &Pipeline{
		store:     store,
		adapter:   NewAdapter(),
		validator: credential.NewValidator(catalog),
		metrics:   metrics,
		remove:    os.Remove,
		now:       time.Now,
	}
}

// Adapter returns the adapter used to read uploads.
func (p *Pipeline) Adapter() *Adapter {
	return p.adapter
}

// Run processes one upload and returns its outcome. The file at up.Path is
// removed before Run returns, whatever the outcome.
func (p *Pipeline) Run(ctx context.Context, up Upload) (out Outcome) {
	uploadID := uuid.NewString()
	log := logging.ForBatch(ctx, uploadID, up.FileName)
	start := p.now()

	// Registered first so it runs after the outcome is settled.
	defer p.removeTempFile(log, up.Path)
	defer p.settle(ctx, log, uploadID, up.FileName, start, &out)

	log.Debug("batch received", "size", up.Size, "media_type", up.MediaType)
	return p.process(ctx, log, uploadID, up)
}

// Add validates and commits a single record given as field name to value,
// with the same row checks, store duplicate check and insert a file gets.
// Names take any spelling accepted in an upload header; unknown names are
// ignored. The add is recorded in history under ManualEntryName.
func (p *Pipeline) Add(ctx context.Context, fields map[string]string) (out Outcome) {
	uploadID := uuid.NewString()
	log := logging.ForBatch(ctx, uploadID, ManualEntryName)
	defer p.settle(ctx, log, uploadID, ManualEntryName, p.now(), &out)

	row := credential.RawRow{Line: 1, Values: make(map[string]string, len(fields))}
	for name, value := range fields {
		if col, ok := credential.CanonicalColumn(name); ok {
			row.Values[col] = value
		}
	}

	res := p.validator.ValidateRow(row)
	if !res.OK() {
		return RejectedBatch(res.Err.Message)
	}

	existing, err := p.checkStore(ctx, []string{res.Record.Identifier})
	if err != nil {
		return ServerError(FailDatabase, err)
	}
	if len(existing) > 0 {
		return DuplicateInStore(existing)
	}
	return commit(ctx, p.store, uploadID, []credential.Record{res.Record})
}

// ManualEntryName is the history file name of records added one at a time.
const ManualEntryName = "manual entry"

// settle is deferred by Run and Add. It turns a panic into a server error
// and then finishes the batch.
func (p *Pipeline) settle(ctx context.Context, log *slog.Logger, uploadID, fileName string, start time.Time, out *Outcome) {
	if r := recover(); r != nil {
		log.Error("pipeline panic", "panic", r, "stack", string(debug.Stack()))
		*out = ServerError(FailServer, fmt.Errorf("pipeline panic: %v", r))
	}
	p.finish(ctx, log, uploadID, fileName, *out, p.now().Sub(start))
}

func (p *Pipeline) process(ctx context.Context, log *slog.Logger, uploadID string, up Upload) Outcome {
	table, err := p.adapter.Read(up.Path, up.MediaType)
	switch {
	case errors.Is(err, credential.ErrNoDataRows):
		return RejectedBatch(MsgNoData)
	case errors.Is(err, ErrUnsupportedFormat):
		return RejectedBatch(MsgUnsupportedFile)
	case err != nil:
		return ServerError(FailServer, fmt.Errorf("read upload: %w", err))
	}
	log.Debug("file decoded", "rows", len(table.Rows), "columns", len(table.Header))

	if missing := credential.MissingFields(table); len(missing) > 0 {
		return RejectedBatch("Missing required fields: " + strings.Join(missing, ", "))
	}

	records, rowErrs := p.validator.ValidateRows(table.Rows)
	if len(rowErrs) > 0 {
		return RejectedRows(rowErrs)
	}
	log.Debug("rows validated", "records", len(records))

	if dups := credential.FindDuplicates(records); len(dups) > 0 {
		return DuplicateInFile(dups)
	}

	ids := credential.Identifiers(records)
	existing, err := p.checkStore(ctx, ids)
	if err != nil {
		return ServerError(FailDatabase, err)
	}
	if len(existing) > 0 {
		return DuplicateInStore(existing)
	}

	log.Debug("committing batch", "records", len(records))
	return commit(ctx, p.store, uploadID, records)
}

// checkStore returns the batch identifiers already present in the store, in
// batch order.
func (p *Pipeline) checkStore(ctx context.Context, ids []string) ([]string, error) {
	existing, err := p.store.ExistingIdentifiers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("check existing identifiers: %w", err)
	}
	return credential.KeepOrder(ids, existing), nil
}

// finish logs the outcome, records metrics and appends the upload history.
func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, uploadID, fileName string, out Outcome, elapsed time.Duration) {
	attrs := []any{
		"kind", out.Kind,
		"inserted", out.Inserted,
		"failed", out.Failed(),
		"duration_ms", elapsed.Milliseconds(),
	}
	switch out.Kind {
	case KindServerError:
		log.Error("batch failed", append(attrs, "failure", out.Failure, "error", out.Err)...)
	case KindRejected:
		log.Info("batch rejected", append(attrs, "rejection", out.Rejection)...)
	default:
		log.Info("batch finished", attrs...)
	}

	p.metrics.observe(out, elapsed)

	entry := credential.UploadEntry{
		ID:         uploadID,
		FileName:   fileName,
		Outcome:    string(out.Kind),
		Type:       out.Type(),
		Inserted:   out.Inserted,
		Failed:     out.Failed(),
		UploadedAt: p.now().UTC(),
	}
	// History is written even if the request was cancelled mid-batch.
	if err := p.store.RecordUpload(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("failed to record upload history", "error", err)
	}
}
