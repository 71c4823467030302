package excel

import (
	"fmt"
	"strings"
)

// Reserved headers of an observation sheet. Every other header names a measured
// variable; "<name> corrected" holds the corrected value of that variable.
const (
	HeaderPlotID  = "plot_id"
	HeaderRow     = "row"
	HeaderDate    = "date"
	HeaderEndDate = "end_date"
	HeaderIndex   = "index"
	HeaderNotes   = "notes"

	CorrectedSuffix = " corrected"
)

var reservedHeaders = map[string]bool{
	HeaderPlotID:  true,
	HeaderRow:     true,
	HeaderDate:    true,
	HeaderEndDate: true,
	HeaderIndex:   true,
	HeaderNotes:   true,
}

// VariableColumns are the raw and corrected columns of one variable. Either header
// may be empty.
type VariableColumns struct {
	Name      string
	Raw       string
	Corrected string
}

// ObservationSheet is a sheet laid out as one plot row per line
type ObservationSheet struct {
	*SheetData
	Variables []VariableColumns
}

// ParseObservationSheet checks the reserved headers and groups the variable columns
// in header order
func ParseObservationSheet(data *SheetData) (*ObservationSheet, error) {
	present := make(map[string]bool, len(data.Headers))
	for _, h := range data.Headers {
		present[strings.ToLower(h)] = true
	}
	for _, required := range []string{HeaderPlotID, HeaderRow} {
		if !present[required] {
			return nil, fmt.Errorf("%s: missing %q column", data.Sheet, required)
		}
	}

	sheet := &ObservationSheet{SheetData: data}
	byName := make(map[string]int)
	for _, h := range data.Headers {
		if h == "" || reservedHeaders[strings.ToLower(h)] {
			continue
		}
		name, corrected := h, false
		if lower := strings.ToLower(h); strings.HasSuffix(lower, CorrectedSuffix) {
			name, corrected = strings.TrimSpace(h[:len(h)-len(CorrectedSuffix)]), true
		}
		i, ok := byName[name]
		if !ok {
			i = len(sheet.Variables)
			byName[name] = i
			sheet.Variables = append(sheet.Variables, VariableColumns{Name: name})
		}
		if corrected {
			sheet.Variables[i].Corrected = h
		} else {
			sheet.Variables[i].Raw = h
		}
	}
	if len(sheet.Variables) == 0 {
		return nil, fmt.Errorf("%s: no variable columns", data.Sheet)
	}
	return sheet, nil
}

// Value returns a reserved column of a row, matching the header case-insensitively
func (s *ObservationSheet) Value(row SheetRow, header string) string {
	if v, ok := row.Cells[header]; ok {
		return v
	}
	for h, v := range row.Cells {
		if strings.EqualFold(h, header) {
			return v
		}
	}
	return ""
}
