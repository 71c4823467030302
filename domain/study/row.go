// Package study holds the study tree: a Study owns Plots, a Plot owns Rows and a Row
// owns the Observations recorded on it.
package study

import (
	"fmt"

	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"
)

// RowKind separates rows that carry observations from spacer rows
type RowKind int

const (
	RowStandard RowKind = iota
	RowDiscard
	RowBlank
)

func (k RowKind) String() string {
	switch k {
	case RowDiscard:
		return "discard"
	case RowBlank:
		return "blank"
	default:
		return "standard"
	}
}

// ParseRowKind parses a row kind tag; blank means standard
func ParseRowKind(s string) (RowKind, error) {
	switch s {
	case "", "standard":
		return RowStandard, nil
	case "discard":
		return RowDiscard, nil
	case "blank":
		return RowBlank, nil
	}
	return RowStandard, fmt.Errorf("%w: unknown row kind %q", core.ErrInvalidDocument, s)
}

// Row is one row of a plot
type Row struct {
	ID           core.ID
	Index        int
	Kind         RowKind
	Observations []*observation.Observation
}

// IsStandard reports whether the row may carry observations
func (r *Row) IsStandard() bool { return r.Kind == RowStandard }

// FindObservation returns the first observation of the given variable, or nil
func (r *Row) FindObservation(phenotypeID core.ID) *observation.Observation {
	for _, obs := range r.Observations {
		if obs.PhenotypeID() == phenotypeID {
			return obs
		}
	}
	return nil
}

// Upsert stores obs on the row. An observation matching obs is replaced and released;
// otherwise obs is appended. It reports whether an observation was replaced.
func (r *Row) Upsert(obs *observation.Observation) (bool, error) {
	if !r.IsStandard() {
		return false, fmt.Errorf("%w: row %d is a %s row", core.ErrInvalidDocument, r.Index, r.Kind)
	}
	for i, existing := range r.Observations {
		if existing.Matches(obs) {
			existing.Release()
			r.Observations[i] = obs
			return true, nil
		}
	}
	r.Observations = append(r.Observations, obs)
	return false, nil
}

// Release releases every observation on the row
func (r *Row) Release() {
	for _, obs := range r.Observations {
		obs.Release()
	}
	r.Observations = nil
}
