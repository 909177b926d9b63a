package ingest

// adapter.go turns an uploaded spreadsheet into a credential.Table.
//
// The adapter picks a decoder by media type (falling back to the file
// extension), takes the first non-blank row as the header, maps header cells
// to canonical column names and keeps every non-blank row beneath it. Each
// row remembers its spreadsheet line so validation errors point at the line
// the user sees.

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/certimport/internal/credential"
)

// ErrUnsupportedFormat is returned for files that are neither xlsx nor csv.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Accepted formats, keyed by file extension.
const (
	FormatXLSX = ".xlsx"
	FormatCSV  = ".csv"
)

// mediaTypes maps unambiguous upload media types to a format. Anything else
// (application/octet-stream, application/vnd.ms-excel, ...) is resolved by
// extension.
var mediaTypes = map[string]string{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": FormatXLSX,
	"text/csv":        FormatCSV,
	"application/csv": FormatCSV,
}

// Decoder reads every row of the first sheet of a file as raw cell text.
type Decoder interface {
	Decode(path string) ([][]string, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(path string) ([][]string, error)

func (f DecoderFunc) Decode(path string) ([][]string, error) {
	return f(path)
}

// Adapter reads uploaded files into tables.
type Adapter struct {
	decoders map[string]Decoder
}

// NewAdapter returns an adapter for the xlsx and csv formats.
func NewAdapter() *Adapter {
	return &Adapter{
		decoders: map[string]Decoder{
			FormatXLSX: xlsxDecoder{},
			FormatCSV:  csvDecoder{},
		},
	}
}

// Formats returns the accepted file extensions.
func (a *Adapter) Formats() []string {
	return []string{FormatXLSX, FormatCSV}
}

// Supports reports whether a file with this name or media type can be read.
func (a *Adapter) Supports(fileName, mediaType string) bool {
	_, ok := a.decoders[formatOf(fileName, mediaType)]
	return ok
}

// Read decodes the file at path into a table. It returns
// credential.ErrNoDataRows when the file has no data rows under the header
// and ErrUnsupportedFormat when no decoder matches.
func (a *Adapter) Read(path, mediaType string) (credential.Table, error) {
	format := formatOf(path, mediaType)
	dec, ok := a.decoders[format]
	if !ok {
		return credential.Table{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	rows, err := dec.Decode(path)
	if err != nil {
		return credential.Table{}, fmt.Errorf("decode %s: %w", format, err)
	}
	return BuildTable(rows)
}

// BuildTable converts decoded rows into a table. The first non-blank row is
// the header; blank rows are skipped. Row i of rows is spreadsheet line i+1.
func BuildTable(rows [][]string) (credential.Table, error) {
	headerIdx := -1
	for i, row := range rows {
		if !isBlankRow(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return credential.Table{}, credential.ErrNoDataRows
	}

	columns := canonicalHeader(rows[headerIdx])
	table := credential.Table{}
	for _, col := range columns {
		if col != "" {
			table.Header = append(table.Header, col)
		}
	}

	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}

		values := make(map[string]string, len(table.Header))
		for pos, col := range columns {
			if col == "" || pos >= len(row) {
				continue
			}
			values[col] = row[pos]
		}
		table.Rows = append(table.Rows, credential.RawRow{Line: i + 1, Values: values})
	}

	if len(table.Rows) == 0 {
		return credential.Table{}, credential.ErrNoDataRows
	}
	return table, nil
}

// canonicalHeader returns the canonical column name for every header
// position. Unknown columns and repeats of an already-seen column map to "".
func canonicalHeader(header []string) []string {
	seen := make(map[string]bool, len(header))
	columns := make([]string, len(header))
	for i, cell := range header {
		name, ok := credential.CanonicalColumn(cell)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		columns[i] = name
	}
	return columns
}

func formatOf(path, mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if format, ok := mediaTypes[mt]; ok {
		return format
	}
	return strings.ToLower(filepath.Ext(path))
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if credential.CleanCell(v) != "" {
			return false
		}
	}
	return true
}
