package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/certimport/internal/credential"
)

// Memory is an in-process Store. It applies the same uniqueness rule as the
// database: one record per identifier, conflicts skipped and reported.
type Memory struct {
	mu      sync.RWMutex
	records map[string]credential.Record
	uploads []credential.UploadEntry
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]credential.Record),
		now:     time.Now,
	}
}

func (m *Memory) ExistingIdentifiers(_ context.Context, ids []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var existing []string
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

func (m *Memory) InsertMany(_ context.Context, uploadID string, records []credential.Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	inserted := 0
	var conflicts []string
	for _, r := range records {
		if _, ok := m.records[r.Identifier]; ok {
			conflicts = append(conflicts, r.Identifier)
			continue
		}
		r.UploadID = uploadID
		r.CreatedAt = now
		m.records[r.Identifier] = r
		inserted++
	}

	if len(conflicts) > 0 {
		return inserted, &credential.BulkWriteError{Inserted: inserted, Conflicts: conflicts}
	}
	return inserted, nil
}

func (m *Memory) RecordUpload(_ context.Context, entry credential.UploadEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.UploadedAt.IsZero() {
		entry.UploadedAt = m.now().UTC()
	}
	m.uploads = append(m.uploads, entry)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (credential.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return credential.Record{}, ErrNotFound
	}
	return r, nil
}

// ListCertificates returns the certificates matching f, newest first and by
// identifier within the same insert time.
func (m *Memory) ListCertificates(_ context.Context, f CertificateFilter) ([]credential.Record, error) {
	m.mu.RLock()
	var matched []credential.Record
	for _, r := range m.records {
		if f.matches(r) {
			matched = append(matched, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Identifier < b.Identifier
	})

	if f.Offset >= len(matched) {
		return []credential.Record{}, nil
	}
	if f.Offset > 0 {
		matched = matched[f.Offset:]
	}
	if limit := clampLimit(f.Limit); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f CertificateFilter) matches(r credential.Record) bool {
	text := []struct{ want, got string }{
		{f.FirstName, r.FirstName},
		{f.MiddleName, r.MiddleName},
		{f.LastName, r.LastName},
		{f.Gender, r.Gender},
		{f.Department, r.Department},
		{f.Program, r.Program},
		{f.ProgramType, r.ProgramType},
	}
	for _, t := range text {
		if want := strings.TrimSpace(t.want); want != "" && !strings.EqualFold(want, t.got) {
			return false
		}
	}
	if f.Score != 0 && math.Round(f.Score*100) != math.Round(r.Score*100) {
		return false
	}
	if f.EndYear != 0 && r.PeriodEnd.Year() != f.EndYear {
		return false
	}
	return true
}

// ListUploads returns history entries newest first.
func (m *Memory) ListUploads(_ context.Context, limit int) ([]credential.UploadEntry, error) {
	m.mu.RLock()
	entries := make([]credential.UploadEntry, len(m.uploads))
	copy(entries, m.uploads)
	m.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UploadedAt.After(entries[j].UploadedAt)
	})
	if limit = clampLimit(limit); len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Count returns the number of stored records.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}
