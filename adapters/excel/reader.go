package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fieldtrial/internal/logging"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	logger   *logging.Logger
}

// NewDataReader creates a data reader for an .xlsx or .csv file. For workbooks the
// first sheet is read unless WithSheet names another.
func NewDataReader(filePath string, logger *logging.Logger) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &DataReader{filePath: filePath, fileType: fileType, logger: logger}
}

// WithSheet selects the worksheet to read
func (r *DataReader) WithSheet(name string) *DataReader {
	r.sheet = name
	return r
}

// ReadData reads the file into headers and rows
func (r *DataReader) ReadData(ctx context.Context) (*SheetData, error) {
	r.logger.Debug("reading spreadsheet", "type", r.fileType, "path", r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

func (r *DataReader) readExcelData() (*SheetData, error) {
	start := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheet, err)
	}
	r.logger.Debug("sheet read", "sheet", sheet, "rows", len(rows), "elapsed", time.Since(start))

	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %s must have at least a header row and one data row", sheet)
	}
	return processRows(sheet, rows), nil
}

func (r *DataReader) readCSVData() (*SheetData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least a header row and one data row")
	}
	return processRows(filepath.Base(r.filePath), rows), nil
}

// processRows converts raw string rows into SheetData, skipping blank lines
func processRows(sheet string, rows [][]string) *SheetData {
	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		headers[i] = strings.TrimSpace(header)
	}

	data := &SheetData{Sheet: sheet, Headers: headers}
	for i := 1; i < len(rows); i++ {
		cells := make(RawRowData)
		blank := true
		for j, cell := range rows[i] {
			if j < len(headers) && headers[j] != "" {
				v := strings.TrimSpace(cell)
				cells[headers[j]] = v
				if v != "" {
					blank = false
				}
			}
		}
		if blank {
			continue
		}
		data.Rows = append(data.Rows, SheetRow{Line: i + 1, Cells: cells})
	}
	return data
}

// Cell returns the A1 reference of a header on a sheet line
func (d *SheetData) Cell(header string, line int) string {
	for i, h := range d.Headers {
		if h == header {
			name, err := excelize.CoordinatesToCellName(i+1, line)
			if err == nil {
				return d.Sheet + "!" + name
			}
		}
	}
	return fmt.Sprintf("%s!%d", d.Sheet, line)
}
