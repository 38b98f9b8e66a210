package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ragline/ragline/internal/domain"
)

// XLSX extracts one flattened text block per sheet plus the structured
// table (headers, rows) for tabular rendering.
type XLSX struct{}

// NewXLSX creates an XLSX extractor.
func NewXLSX() *XLSX { return &XLSX{} }

// FileType implements Extractor.
func (e *XLSX) FileType() domain.FileType { return domain.FileXLSX }

// Extract parses the buffer as a workbook. Empty sheets are skipped.
// Column count is the maximum header-row width across sheets; row count is
// the sum of data rows across sheets.
func (e *XLSX) Extract(_ context.Context, data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewExtractionError(domain.FileXLSX, err)
	}
	defer f.Close()

	var (
		blocks   []string
		sheets   []domain.SheetTable
		rowTotal int
		colMax   int
	)

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, domain.NewExtractionError(domain.FileXLSX, fmt.Errorf("sheet %s: %w", name, err))
		}
		if len(rows) == 0 {
			continue
		}

		headers := rows[0]
		dataRows := rows[1:]

		table := domain.SheetTable{Name: name, Headers: headers, Rows: dataRows}
		sheets = append(sheets, table)
		rowTotal += len(dataRows)
		if len(headers) > colMax {
			colMax = len(headers)
		}

		blocks = append(blocks, flattenSheet(table))
	}

	meta := domain.DocumentMetadata{
		SheetCount:  len(sheets),
		RowCount:    rowTotal,
		ColumnCount: colMax,
	}

	return &Result{
		Text:     strings.Join(blocks, "\n\n"),
		Sheets:   sheets,
		Metadata: meta,
	}, nil
}

// flattenSheet renders one sheet as "Sheet: X\nHeaders: ...\nRow n: ...".
func flattenSheet(t domain.SheetTable) string {
	var sb strings.Builder
	sb.WriteString("Sheet: ")
	sb.WriteString(t.Name)
	sb.WriteString("\nHeaders: ")
	sb.WriteString(strings.Join(t.Headers, ", "))
	for i, row := range t.Rows {
		sb.WriteString(fmt.Sprintf("\nRow %d: ", i+1))
		sb.WriteString(strings.Join(row, " | "))
	}
	return sb.String()
}
