package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/certimport/internal/credential"
	"github.com/JonMunkholm/certimport/internal/store"
)

var testHeader = []string{
	"certificateID", "firstName", "middleName", "lastName", "department", "college",
	"gender", "cgpa", "program", "programType", "gstatus", "startDate", "endDate",
}

// dataRow returns a valid row for testHeader.
func dataRow(id, score string) []string {
	return []string{
		id, "Abebe", "Kebede", "Tesfaye", "Computer Science", "Engineering and Technology",
		"male", score, "BSc", "regular", "verified", "2019-09-15", "2023-07-01",
	}
}

func sheet(rows ...[]string) [][]string {
	return append([][]string{testHeader}, rows...)
}

// writeXLSX saves rows to a new workbook in a temp dir and returns its path.
func writeXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	cells := make([][]any, len(rows))
	for i, row := range rows {
		cells[i] = make([]any, len(row))
		for j, v := range row {
			cells[i][j] = v
		}
	}
	return writeXLSXCells(t, cells)
}

func writeXLSXCells(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	name := f.GetSheetName(0)
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(name, cell, &r))
	}

	path := filepath.Join(t.TempDir(), "upload.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func writeCSV(t *testing.T, rows [][]string) string {
	t.Helper()
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\n")
	}
	return writeFile(t, "upload.csv", b.String())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func upload(path string) Upload {
	return Upload{Path: path, FileName: filepath.Base(path)}
}

// faultStore wraps a memory store with injectable failures.
type faultStore struct {
	*store.Memory

	existingErr  error
	insertErr    error
	recordErr    error
	hideExisting bool // simulate a concurrent writer landing after the store check
	panicMsg     string
}

func newFaultStore() *faultStore {
	return &faultStore{Memory: store.NewMemory()}
}

func (f *faultStore) ExistingIdentifiers(ctx context.Context, ids []string) ([]string, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.existingErr != nil {
		return nil, f.existingErr
	}
	if f.hideExisting {
		return nil, nil
	}
	return f.Memory.ExistingIdentifiers(ctx, ids)
}

func (f *faultStore) InsertMany(ctx context.Context, uploadID string, records []credential.Record) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	return f.Memory.InsertMany(ctx, uploadID, records)
}

func (f *faultStore) RecordUpload(ctx context.Context, entry credential.UploadEntry) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	return f.Memory.RecordUpload(ctx, entry)
}

// seed stores records directly, bypassing the pipeline.
func seed(t *testing.T, s *store.Memory, ids ...string) {
	t.Helper()
	records := make([]credential.Record, len(ids))
	for i, id := range ids {
		records[i] = credential.Record{Identifier: id}
	}
	_, err := s.InsertMany(context.Background(), "seed", records)
	require.NoError(t, err)
}
