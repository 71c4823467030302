package study

import (
	"fieldtrial/domain/core"
	"fieldtrial/domain/phenotype"
	"fieldtrial/domain/stats"
)

// Study keys
const (
	KeyPhenotypeStatistics = "phenotype_statistics"
	KeyStatistics          = "statistics"
)

// PhenotypeStatistics is the result node for one measured variable. Statistics is nil
// when no value of the variable was found under the study.
type PhenotypeStatistics struct {
	PhenotypeID core.ID
	Name        string
	Variable    *phenotype.MeasuredVariable
	Statistics  *stats.Statistics
}

// ToJSON renders the node; client views embed the variable instead of its id
func (ps PhenotypeStatistics) ToJSON(format core.ViewFormat) core.Document {
	doc := core.Document{"name": ps.Name}
	switch {
	case format == core.ViewStorage || ps.Variable == nil:
		doc["phenotype_id"] = ps.PhenotypeID.String()
	case format == core.ViewClientFull:
		doc["phenotype"] = ps.Variable.ToJSON()
	default:
		doc["phenotype"] = ps.Variable.MinimalJSON()
	}
	if ps.Statistics != nil {
		doc[KeyStatistics] = ps.Statistics.ToJSON(format)
	} else {
		doc[KeyStatistics] = nil
	}
	return doc
}

func phenotypeStatisticsFromJSON(doc core.Document) PhenotypeStatistics {
	ps := PhenotypeStatistics{}
	ps.Name, _ = core.GetString(doc, "name")
	ps.PhenotypeID, _ = core.IDFromValue(doc["phenotype_id"])
	if ps.PhenotypeID.IsEmpty() {
		if embedded, ok := core.GetObject(doc, "phenotype"); ok {
			ps.PhenotypeID, _ = core.IDFromValue(embedded[core.KeyID])
		}
	}
	if sd, ok := core.GetObject(doc, KeyStatistics); ok {
		ps.Statistics = stats.FromJSON(sd)
	}
	return ps
}

// Study is a field trial. Plots are stored in their own collection and loaded lazily.
type Study struct {
	ID          core.ID
	Name        string
	Description string
	Plots       []*Plot

	PhenotypeStatistics []PhenotypeStatistics
}

// HasPlots reports whether plots have been attached
func (s *Study) HasPlots() bool { return len(s.Plots) > 0 }

// ResetStatistics drops previously computed results
func (s *Study) ResetStatistics() { s.PhenotypeStatistics = nil }

// AddStatistics appends a result node
func (s *Study) AddStatistics(ps PhenotypeStatistics) {
	s.PhenotypeStatistics = append(s.PhenotypeStatistics, ps)
}

// PhenotypeStatisticsJSON renders the result nodes in the given view format
func (s *Study) PhenotypeStatisticsJSON(format core.ViewFormat) []any {
	out := make([]any, 0, len(s.PhenotypeStatistics))
	for _, ps := range s.PhenotypeStatistics {
		out = append(out, ps.ToJSON(format))
	}
	return out
}

// Release releases the plot tree
func (s *Study) Release() {
	for _, p := range s.Plots {
		p.Release()
	}
	s.Plots = nil
}

// ToJSON renders the study without its plots
func (s *Study) ToJSON(format core.ViewFormat) core.Document {
	doc := core.Document{"name": s.Name}
	if format == core.ViewStorage {
		doc[core.KeyID] = s.ID.String()
	} else {
		doc["id"] = s.ID.String()
	}
	core.SetNonEmpty(doc, "description", s.Description)
	doc[KeyPhenotypeStatistics] = s.PhenotypeStatisticsJSON(format)
	return doc
}

// FromJSON reads a stored study; plots are not part of the document
func FromJSON(doc core.Document) (*Study, error) {
	id, ok := core.IDFromValue(doc[core.KeyID])
	if !ok {
		return nil, core.NewValidationError("study._id", "missing")
	}
	s := &Study{ID: id}
	s.Name, _ = core.GetString(doc, "name")
	s.Description, _ = core.GetString(doc, "description")
	items, _ := core.GetArray(doc, KeyPhenotypeStatistics)
	for _, item := range items {
		if d, ok := item.(core.Document); ok {
			s.PhenotypeStatistics = append(s.PhenotypeStatistics, phenotypeStatisticsFromJSON(d))
		}
	}
	return s, nil
}
