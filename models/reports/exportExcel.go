package reports

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

// writeSheet fills one sheet with a heading row and one row per exporter.
// Columns run A.. in heading order; every row type in this package keeps
// GetCellValues aligned with the headings its sheet is written with.
func writeSheet(f *excelize.File, sheetName string, headings []string, rows []ExcelExporter) {

	// Add headers
	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	// Add data
	rowNo := 2
	for _, d := range rows {
		col := 'A'
		for _, value := range d.GetCellValues() {
			f.SetCellValue(sheetName, string(col)+fmt.Sprint(rowNo), value)
			col++
		}
		rowNo++
	}
}
