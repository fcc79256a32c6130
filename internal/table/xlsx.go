package table

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// loadXLSX reads the first sheet of an XLSX workbook. The first row is always
// treated as the header unless the same headerless heuristics as CSV apply.
func loadXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("table: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	var records [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		if !emptyRow(cells) {
			records = append(records, cells)
		}
	}
	if len(records) == 0 {
		return nil, eris.Errorf("table: %s is empty", path)
	}

	return fromRecords(records), nil
}

func emptyRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
