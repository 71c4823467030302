package observation

import (
	"errors"
	"fmt"
	"time"

	"fieldtrial/domain/core"
	"fieldtrial/domain/phenotype"
)

// Nature tells whether an observation was taken on a row or across the experimental area
type Nature int

const (
	NatureRow Nature = iota
	NatureExperimentalArea
)

func (n Nature) String() string {
	if n == NatureExperimentalArea {
		return "experimental_area"
	}
	return "row"
}

// ParseNature parses a nature tag; blank means row
func ParseNature(s string) (Nature, error) {
	switch s {
	case "", "row":
		return NatureRow, nil
	case "experimental_area", "area":
		return NatureExperimentalArea, nil
	}
	return NatureRow, fmt.Errorf("%w: unknown nature %q", core.ErrInvalidDocument, s)
}

// DefaultIndex is used when no ordinal index is given
const DefaultIndex = 1

// Metadata places an observation in time. Index disambiguates repeated measurements of
// the same variable within the same window.
type Metadata struct {
	StartDate *time.Time
	EndDate   *time.Time
	Index     uint32
}

// Observation is a single recorded measurement
type Observation struct {
	ID          core.ID
	Metadata    Metadata
	Instrument  *phenotype.Instrument
	GrowthStage string
	Method      string
	Notes       string
	Nature      Nature

	phenotype PhenotypeRef
	value     Value
}

// Params carries everything needed to build an observation. Raw and Corrected are
// decoded JSON nodes or strings; nil means absent.
type Params struct {
	ID          core.ID
	Phenotype   PhenotypeRef
	Instrument  *phenotype.Instrument
	Metadata    Metadata
	GrowthStage string
	Method      string
	Notes       string
	Nature      Nature
	Raw         any
	Corrected   any
	// Location prefixes reported field errors
	Location string
}

// Field names used in reports and JSON
const (
	FieldRaw       = "raw_value"
	FieldCorrected = "corrected_value"
)

// New builds an observation. The kind is resolved from the variable's scale class; raw
// and corrected are parsed independently and a failure on one is reported to sink and
// returned without aborting the other. Construction fails only when neither value could
// be stored. On failure the phenotype reference is released.
func New(p Params, sink ErrorSink) (*Observation, []*FieldError, error) {
	if p.Phenotype == nil || p.Phenotype.Variable() == nil {
		return nil, nil, core.NewValidationError("phenotype", "missing")
	}
	mv := p.Phenotype.Variable()
	kind := Resolve(mv.ScaleClass)
	if kind == KindUnsupported {
		p.Phenotype.release()
		return nil, nil, fmt.Errorf("%w: %q on variable %s", core.ErrUnsupportedScaleClass, mv.ScaleClass, mv.Name())
	}
	value, err := NewValue(kind)
	if err != nil {
		p.Phenotype.release()
		return nil, nil, err
	}

	var fieldErrs []*FieldError
	set := func(which Which, field string, node any) {
		if node == nil {
			return
		}
		if err := value.SetFromJSON(which, node); err != nil {
			fe := &FieldError{Severity: SeverityError, Location: p.Location, Field: field, Value: node, Err: err}
			fieldErrs = append(fieldErrs, fe)
			report(sink, fe)
		}
	}
	set(Raw, FieldRaw, p.Raw)
	set(Corrected, FieldCorrected, p.Corrected)

	if !value.Has(Raw) && !value.Has(Corrected) {
		p.Phenotype.release()
		errs := []error{fmt.Errorf("%w for variable %s", core.ErrNoValues, mv.Name())}
		for _, fe := range fieldErrs {
			errs = append(errs, fe)
		}
		return nil, fieldErrs, errors.Join(errs...)
	}

	md := p.Metadata
	if md.Index == 0 {
		md.Index = DefaultIndex
	}
	id := p.ID
	if id.IsEmpty() {
		id = core.NewID()
	}
	return &Observation{
		ID:          id,
		Metadata:    md,
		Instrument:  p.Instrument,
		GrowthStage: p.GrowthStage,
		Method:      p.Method,
		Notes:       p.Notes,
		Nature:      p.Nature,
		phenotype:   p.Phenotype,
		value:       value,
	}, fieldErrs, nil
}

// Kind returns the concrete value representation
func (o *Observation) Kind() Kind { return o.value.Kind() }

// Value returns the value variant
func (o *Observation) Value() Value { return o.value }

// Phenotype returns the measured variable
func (o *Observation) Phenotype() *phenotype.MeasuredVariable { return o.phenotype.Variable() }

// PhenotypeID returns the id of the measured variable
func (o *Observation) PhenotypeID() core.ID { return refID(o.phenotype) }

// SetValueFromJSON stores a decoded JSON node as the raw or corrected value
func (o *Observation) SetValueFromJSON(which Which, node any) error {
	return o.value.SetFromJSON(which, node)
}

// SetValueFromString parses text into the raw or corrected value
func (o *Observation) SetValueFromString(which Which, text string) error {
	return o.value.SetFromString(which, text)
}

// ValueAsString renders the raw or corrected value
func (o *Observation) ValueAsString(which Which) Rendered {
	return o.value.Render(which)
}

// Release clears the values and lets go of the measured variable according to how it
// is held. Calling it more than once is safe.
func (o *Observation) Release() {
	if o.value != nil {
		o.value.Clear()
	}
	if o.phenotype != nil {
		o.phenotype.release()
		o.phenotype = BorrowedPhenotype{}
	}
}

// Matches reports whether two observations record the same measurement slot: same
// variable, same start and end dates (date only) and same index. Values and kinds are
// not compared.
func (o *Observation) Matches(other *Observation) bool {
	if o == nil || other == nil {
		return false
	}
	return o.PhenotypeID() == other.PhenotypeID() &&
		core.SameDate(o.Metadata.StartDate, other.Metadata.StartDate) &&
		core.SameDate(o.Metadata.EndDate, other.Metadata.EndDate) &&
		o.Metadata.Index == other.Metadata.Index
}
