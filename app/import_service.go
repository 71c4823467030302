package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fieldtrial/adapters/excel"
	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"
	"fieldtrial/domain/phenotype"
	"fieldtrial/domain/study"
	apperrors "fieldtrial/internal/errors"
	"fieldtrial/internal/logging"
	"fieldtrial/internal/metrics"
	"fieldtrial/ports"
)

// ImportService stores observations read from spreadsheets
type ImportService struct {
	plots     ports.PlotRepository
	variables ports.VariableRepository
	cache     *phenotype.Cache
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// ImportResult summarises one spreadsheet import
type ImportResult struct {
	Status      core.OperationStatus      `json:"status"`
	Rows        int                       `json:"rows"`
	Stored      int                       `json:"stored"`
	Replaced    int                       `json:"replaced"`
	Failed      int                       `json:"failed"`
	Plots       int                       `json:"plots"`
	FieldErrors []*observation.FieldError `json:"field_errors,omitempty"`
}

// NewImportService creates an import service. Variables are shared through cache.
func NewImportService(plots ports.PlotRepository, variables ports.VariableRepository, cache *phenotype.Cache, m *metrics.Metrics, logger *logging.Logger) *ImportService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ImportService{plots: plots, variables: variables, cache: cache, metrics: m, logger: logger}
}

// ImportFile reads an .xlsx or .csv file and imports it
func (s *ImportService) ImportFile(ctx context.Context, path, sheet string, sink observation.ErrorSink) (*ImportResult, error) {
	data, err := excel.NewDataReader(path, s.logger).WithSheet(sheet).ReadData(ctx)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeInvalidInput, err)
	}
	return s.Import(ctx, data, sink)
}

// Import stores every value cell of the sheet as an observation on the addressed plot
// row. Cells that cannot be stored are reported with their sheet location and counted
// as failed; the rest of the sheet is still imported. Touched plots are saved at the end.
func (s *ImportService) Import(ctx context.Context, data *excel.SheetData, sink observation.ErrorSink) (*ImportResult, error) {
	start := time.Now()
	sheet, err := excel.ParseObservationSheet(data)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeInvalidInput, err)
	}

	result := &ImportResult{}
	report := func(fe *observation.FieldError) {
		result.FieldErrors = append(result.FieldErrors, fe)
		s.metrics.FieldError(fe.Field)
		if sink != nil {
			sink.Report(fe)
		}
	}

	columns := s.resolveColumns(ctx, sheet, report)
	plots := make(map[core.ID]*loadedPlot)
	missing := make(map[core.ID]error)
	defer func() {
		for _, p := range plots {
			p.Release()
		}
	}()

	for _, line := range sheet.Rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Rows++
		plot, row, err := s.locateRow(ctx, sheet, line, plots, missing)
		if err != nil {
			result.Failed++
			report(&observation.FieldError{
				Severity: observation.SeverityError,
				Location: sheet.Cell(excel.HeaderPlotID, line.Line),
				Field:    excel.HeaderPlotID,
				Value:    sheet.Value(line, excel.HeaderPlotID),
				Err:      err,
			})
			continue
		}
		md, notes, err := rowMetadata(sheet, line)
		if err != nil {
			result.Failed++
			report(&observation.FieldError{Severity: observation.SeverityError, Location: sheet.Cell(excel.HeaderDate, line.Line), Field: "metadata", Err: err})
			continue
		}
		for _, col := range columns {
			raw, corrected := cellValue(line, col.Raw), cellValue(line, col.Corrected)
			if raw == nil && corrected == nil {
				continue
			}
			replaced, err := s.store(ctx, sheet, line, col, row, md, notes, raw, corrected, report)
			if err != nil {
				result.Failed++
				continue
			}
			result.Stored++
			if replaced {
				result.Replaced++
			}
			plot.touched = true
		}
	}

	for id, p := range plots {
		if !p.touched {
			continue
		}
		if err := s.plots.Save(ctx, p.Plot); err != nil {
			result.Status = core.StatusFailed
			return result, apperrors.Wrapf(err, "save plot %s", id)
		}
		result.Plots++
	}

	result.Status = core.StatusFromTally(result.Stored, result.Failed)
	s.logger.Info("spreadsheet imported",
		"sheet", data.Sheet,
		"rows", result.Rows,
		"stored", result.Stored,
		"failed", result.Failed,
		"elapsed", time.Since(start))
	return result, nil
}

type importColumn struct {
	excel.VariableColumns
	variable *phenotype.MeasuredVariable
}

// resolveColumns looks the variable of every column group up by name; unknown names
// are reported once and their columns ignored
func (s *ImportService) resolveColumns(ctx context.Context, sheet *excel.ObservationSheet, report func(*observation.FieldError)) []importColumn {
	var columns []importColumn
	for _, vc := range sheet.Variables {
		mv, err := s.variables.FindByName(ctx, vc.Name)
		if err != nil {
			header := vc.Raw
			if header == "" {
				header = vc.Corrected
			}
			report(&observation.FieldError{
				Severity: observation.SeverityWarning,
				Location: sheet.Cell(header, 1),
				Field:    "variable",
				Value:    vc.Name,
				Err:      err,
			})
			continue
		}
		columns = append(columns, importColumn{VariableColumns: vc, variable: mv})
	}
	return columns
}

type loadedPlot struct {
	*study.Plot
	touched bool
}

func (s *ImportService) locateRow(ctx context.Context, sheet *excel.ObservationSheet, line excel.SheetRow, plots map[core.ID]*loadedPlot, missing map[core.ID]error) (*loadedPlot, *study.Row, error) {
	id, err := core.ParseID(sheet.Value(line, excel.HeaderPlotID))
	if err != nil {
		return nil, nil, core.NewValidationError(excel.HeaderPlotID, err.Error())
	}
	index, err := strconv.Atoi(sheet.Value(line, excel.HeaderRow))
	if err != nil || index < 1 {
		return nil, nil, core.NewValidationError(excel.HeaderRow, fmt.Sprintf("%q is not a row number", sheet.Value(line, excel.HeaderRow)))
	}
	if err, ok := missing[id]; ok {
		return nil, nil, err
	}
	p, ok := plots[id]
	if !ok {
		loaded, err := s.plots.GetByID(ctx, id, nil)
		if err != nil {
			missing[id] = err
			return nil, nil, err
		}
		p = &loadedPlot{Plot: loaded}
		plots[id] = p
	}
	return p, p.EnsureRow(index), nil
}

func rowMetadata(sheet *excel.ObservationSheet, line excel.SheetRow) (observation.Metadata, string, error) {
	md := observation.Metadata{Index: observation.DefaultIndex}
	for _, f := range []struct {
		header string
		target **time.Time
	}{{excel.HeaderDate, &md.StartDate}, {excel.HeaderEndDate, &md.EndDate}} {
		text := sheet.Value(line, f.header)
		if text == "" {
			continue
		}
		t, err := core.ParseTimestamp(text)
		if err != nil {
			return md, "", fmt.Errorf("%s: %w", f.header, err)
		}
		*f.target = &t
	}
	if text := sheet.Value(line, excel.HeaderIndex); text != "" {
		i, err := strconv.ParseUint(text, 10, 32)
		if err != nil || i == 0 {
			return md, "", fmt.Errorf("index: %q is not a positive integer", text)
		}
		md.Index = uint32(i)
	}
	return md, sheet.Value(line, excel.HeaderNotes), nil
}

func cellValue(line excel.SheetRow, header string) any {
	if header == "" {
		return nil
	}
	if v := line.Cells[header]; v != "" {
		return v
	}
	return nil
}

// store builds the observation of one cell group and upserts it into row. Field
// failures are reported with the cell they came from.
func (s *ImportService) store(
	ctx context.Context,
	sheet *excel.ObservationSheet,
	line excel.SheetRow,
	col importColumn,
	row *study.Row,
	md observation.Metadata,
	notes string,
	raw, corrected any,
	report func(*observation.FieldError),
) (bool, error) {
	cell := func(field string) string {
		if field == observation.FieldCorrected {
			return sheet.Cell(col.Corrected, line.Line)
		}
		return sheet.Cell(col.Raw, line.Line)
	}
	sink := observation.SinkFunc(func(fe *observation.FieldError) {
		fe.Location = cell(fe.Field)
		report(fe)
	})

	h, err := s.cache.Acquire(ctx, col.variable.ID)
	if err != nil {
		sink.Report(&observation.FieldError{Severity: observation.SeverityError, Field: observation.FieldRaw, Value: col.Name, Err: err})
		return false, err
	}
	obs, _, err := observation.New(observation.Params{
		Phenotype: observation.Share(h),
		Metadata:  md,
		Notes:     notes,
		Raw:       raw,
		Corrected: corrected,
	}, sink)
	if err != nil {
		return false, err
	}
	replaced, err := row.Upsert(obs)
	if err != nil {
		obs.Release()
		sink.Report(&observation.FieldError{Severity: observation.SeverityError, Field: excel.HeaderRow, Value: row.Index, Err: err})
		return false, err
	}
	return replaced, nil
}
