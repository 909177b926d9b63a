// Package store persists credential records and upload history.
//
// Two implementations exist: Postgres for production and Memory for tests
// and local runs. Both enforce identifier uniqueness themselves; callers
// treat the store as the final arbiter when concurrent batches race for the
// same identifier.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/certimport/internal/config"
	"github.com/JonMunkholm/certimport/internal/credential"
)

// ErrNotFound is returned when a certificate does not exist.
var ErrNotFound = errors.New("certificate not found")

// List limits. DefaultListLimit applies when no limit is given; larger
// requests are capped at MaxListLimit.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// CertificateFilter selects certificates for listing. Empty text fields and
// zero numbers match everything. Text fields match whole values, ignoring
// case and surrounding space.
type CertificateFilter struct {
	FirstName   string
	MiddleName  string
	LastName    string
	Gender      string
	Department  string
	Program     string
	ProgramType string
	Score       float64 // exact match to two decimals when non-zero
	EndYear     int     // year of PeriodEnd when non-zero

	Limit  int
	Offset int
}

// Store is the full persistence surface used by the service.
type Store interface {
	ExistingIdentifiers(ctx context.Context, ids []string) ([]string, error)
	InsertMany(ctx context.Context, uploadID string, records []credential.Record) (int, error)
	RecordUpload(ctx context.Context, entry credential.UploadEntry) error

	Get(ctx context.Context, id string) (credential.Record, error)
	ListCertificates(ctx context.Context, filter CertificateFilter) ([]credential.Record, error)
	ListUploads(ctx context.Context, limit int) ([]credential.UploadEntry, error)
	Ping(ctx context.Context) error
	Close()
}

// Open returns the store selected by cfg.Driver. For postgres it connects a
// pool and, when cfg.AutoMigrate is set, applies pending migrations first.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory store; data is lost on restart")
		return NewMemory(), nil

	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := Migrate(cfg.URL); err != nil {
				return nil, err
			}
		}
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgres(pool), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
