package study

import (
	"context"
	"fmt"

	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"
)

// Plot keys
const (
	KeyParentStudyID = "parent_study_id"
	KeyRows          = "rows"
	KeyObservations  = "observations"
)

// Plot is a field plot belonging to a study
type Plot struct {
	ID      core.ID
	StudyID core.ID
	Name    string
	Rows    []*Row
}

// Row returns the row with the given index, or nil
func (p *Plot) Row(index int) *Row {
	for _, r := range p.Rows {
		if r.Index == index {
			return r
		}
	}
	return nil
}

// EnsureRow returns the row with the given index, adding a standard row when missing
func (p *Plot) EnsureRow(index int) *Row {
	if r := p.Row(index); r != nil {
		return r
	}
	r := &Row{ID: core.NewID(), Index: index, Kind: RowStandard}
	p.Rows = append(p.Rows, r)
	return r
}

// Release releases the observations of every row
func (p *Plot) Release() {
	for _, r := range p.Rows {
		r.Release()
	}
}

func (p *Plot) ToJSON(format core.ViewFormat) core.Document {
	doc := core.Document{}
	if format == core.ViewStorage {
		doc[core.KeyID] = p.ID.String()
		doc[KeyParentStudyID] = p.StudyID.String()
	} else {
		doc["id"] = p.ID.String()
	}
	core.SetNonEmpty(doc, "name", p.Name)

	rows := make([]any, 0, len(p.Rows))
	for _, r := range p.Rows {
		rd := core.Document{
			"index": r.Index,
			"kind":  r.Kind.String(),
		}
		if format == core.ViewStorage && !r.ID.IsEmpty() {
			rd[core.KeyID] = r.ID.String()
		}
		obs := make([]any, 0, len(r.Observations))
		for _, o := range r.Observations {
			obs = append(obs, o.ToJSON(format))
		}
		rd[KeyObservations] = obs
		rows = append(rows, rd)
	}
	doc[KeyRows] = rows
	return doc
}

// PlotFromJSON reads a stored plot. An observation that cannot be built is reported to
// sink and left out; structural problems with the plot or its rows are returned.
func PlotFromJSON(ctx context.Context, doc core.Document, resolver observation.Resolver, sink observation.ErrorSink) (*Plot, error) {
	id, ok := core.IDFromValue(doc[core.KeyID])
	if !ok {
		return nil, core.NewValidationError("plot._id", "missing")
	}
	p := &Plot{ID: id}
	p.StudyID, _ = core.IDFromValue(doc[KeyParentStudyID])
	p.Name, _ = core.GetString(doc, "name")

	rows, _ := core.GetArray(doc, KeyRows)
	for i, raw := range rows {
		rd, ok := raw.(core.Document)
		if !ok {
			p.Release()
			return nil, core.NewValidationError(fmt.Sprintf("plot %s rows[%d]", id, i), "not an object")
		}
		row, err := rowFromJSON(ctx, rd, i, p.ID, resolver, sink)
		if err != nil {
			p.Release()
			return nil, err
		}
		p.Rows = append(p.Rows, row)
	}
	return p, nil
}

func rowFromJSON(ctx context.Context, rd core.Document, pos int, plotID core.ID, resolver observation.Resolver, sink observation.ErrorSink) (*Row, error) {
	row := &Row{Index: pos + 1}
	row.ID, _ = core.IDFromValue(rd[core.KeyID])
	if n, ok := core.GetInt(rd, "index"); ok {
		row.Index = int(n)
	}
	kindTag, _ := core.GetString(rd, "kind")
	kind, err := ParseRowKind(kindTag)
	if err != nil {
		return nil, err
	}
	row.Kind = kind

	items, _ := core.GetArray(rd, KeyObservations)
	for j, item := range items {
		location := fmt.Sprintf("plot %s row %d observation %d", plotID, row.Index, j)
		od, ok := item.(core.Document)
		if !ok {
			reportSkipped(sink, location, item, core.NewValidationError("observation", "not an object"))
			continue
		}
		obs, _, err := observation.FromJSON(ctx, od, resolver, locate(sink, location))
		if err != nil {
			reportSkipped(sink, location, od[observation.KeyPhenotypeID], err)
			if ctx.Err() != nil {
				row.Release()
				return nil, ctx.Err()
			}
			continue
		}
		row.Observations = append(row.Observations, obs)
	}
	return row, nil
}

func reportSkipped(sink observation.ErrorSink, location string, value any, err error) {
	if sink == nil {
		return
	}
	sink.Report(&observation.FieldError{
		Severity: observation.SeverityWarning,
		Location: location,
		Field:    "observation",
		Value:    value,
		Err:      err,
	})
}

// locate stamps a location on field errors that come without one
func locate(sink observation.ErrorSink, location string) observation.ErrorSink {
	if sink == nil {
		return nil
	}
	return observation.SinkFunc(func(fe *observation.FieldError) {
		if fe.Location == "" {
			fe.Location = location
		}
		sink.Report(fe)
	})
}
