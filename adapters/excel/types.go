package excel

// RawRowData represents a row of raw spreadsheet data as header/value pairs
type RawRowData map[string]string

// SheetRow is a data row with its 1-based line number on the sheet
type SheetRow struct {
	Line  int
	Cells RawRowData
}

// SheetData is a read sheet
type SheetData struct {
	Sheet   string
	Headers []string
	Rows    []SheetRow
}
