package ingest

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// xlsxDecoder reads the first worksheet of an Office Open XML workbook.
// Cells are read unformatted, so numbers and dates arrive as stored.
type xlsxDecoder struct{}

func (xlsxDecoder) Decode(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	// Raw values keep date cells as serial numbers whatever their display
	// format; credential.ParseDate converts those.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows from %q: %w", sheets[0], err)
	}
	return rows, nil
}
