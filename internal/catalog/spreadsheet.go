package catalog

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	ExportSheet    = "Menu"
	ExportFilename = "menu-backup.xlsx"
)

var exportHeaders = []string{"name", "price", "category", "description"}

// ErrEmptySheet is returned when a workbook has no data rows.
var ErrEmptySheet = fmt.Errorf("%w: spreadsheet has no data rows", ErrValidation)

// ReadSheet parses the first sheet of an xlsx workbook. The first row holds
// the headers.
func ReadSheet(r io.Reader) ([]RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrValidation, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet: %v", ErrValidation, err)
	}
	if len(rows) < 2 {
		return nil, ErrEmptySheet
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = NormalizeHeader(h)
	}
	out := make([]RawRow, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		row := RawRow{Line: i + 2, Cells: make(map[string]string, len(headers))}
		for j, v := range cells {
			if j < len(headers) && headers[j] != "" {
				row.Cells[headers[j]] = v
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// WriteSheet renders products as an importable workbook.
func WriteSheet(w io.Writer, products []Product) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return err
	}
	header := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &header); err != nil {
		return err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(ExportSheet, 1, 1, style)
	}

	for i, p := range products {
		var price any = FormatPrice(p)
		if len(p.Variants) == 0 {
			price = p.Price.InexactFloat64()
		}
		row := []any{p.Name, price, p.CategoryName, p.Description}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(ExportSheet, "A", "D", 24)

	return f.Write(w)
}
