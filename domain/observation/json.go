package observation

import (
	"context"
	"fmt"
	"time"

	"fieldtrial/domain/core"
	"fieldtrial/domain/phenotype"
)

// JSON keys
const (
	KeyID           = core.KeyID
	KeyPhenotypeID  = "phenotype_id"
	KeyPhenotype    = "phenotype"
	KeyInstrumentID = "instrument_id"
	KeyInstrument   = "instrument"
	KeyStartDate    = "date"
	KeyEndDate      = "end_date"
	KeyIndex        = "index"
	KeyGrowthStage  = "growth_stage"
	KeyMethod       = "method"
	KeyNotes        = "notes"
	KeyNature       = "nature"
	KeyValueType    = "value_type"
)

// Resolver looks up referenced objects when reading the storage view
type Resolver interface {
	ResolvePhenotype(ctx context.Context, id core.ID) (PhenotypeRef, error)
	ResolveInstrument(ctx context.Context, id core.ID) (*phenotype.Instrument, error)
}

// ToJSON renders the observation in the given view format.
//
// The storage view references the variable and instrument by id and always writes both
// value keys (null when absent). Client views embed the variable (fully or as a minimal
// projection) and only write values that are present.
func (o *Observation) ToJSON(format core.ViewFormat) core.Document {
	doc := core.Document{}
	mv := o.Phenotype()

	switch format {
	case core.ViewStorage:
		doc[KeyID] = o.ID.String()
		doc[KeyPhenotypeID] = o.PhenotypeID().String()
		if o.Instrument != nil && !o.Instrument.ID.IsEmpty() {
			doc[KeyInstrumentID] = o.Instrument.ID.String()
		}
	case core.ViewClientFull:
		if mv != nil {
			doc[KeyPhenotype] = mv.ToJSON()
		}
		if o.Instrument != nil {
			doc[KeyInstrument] = o.Instrument.ToJSON()
		}
	case core.ViewClientMinimal:
		if mv != nil {
			doc[KeyPhenotype] = mv.MinimalJSON()
		}
	}

	doc[KeyNature] = o.Nature.String()
	doc[KeyValueType] = o.Kind().String()
	doc[KeyIndex] = o.Metadata.Index
	if o.Metadata.StartDate != nil {
		doc[KeyStartDate] = core.FormatTimestamp(*o.Metadata.StartDate)
	}
	if o.Metadata.EndDate != nil {
		doc[KeyEndDate] = core.FormatTimestamp(*o.Metadata.EndDate)
	}
	core.SetNonEmpty(doc, KeyGrowthStage, o.GrowthStage)
	core.SetNonEmpty(doc, KeyMethod, o.Method)
	core.SetNonEmpty(doc, KeyNotes, o.Notes)

	o.value.AddToJSON(FieldRaw, FieldCorrected, doc, nil, format != core.ViewStorage)
	return doc
}

// FromJSON builds an observation from any of the view formats. References by id are
// resolved through resolver; embedded variables and instruments are parsed in place and
// owned by the observation. Per-field value failures are reported to sink and returned.
func FromJSON(ctx context.Context, doc core.Document, resolver Resolver, sink ErrorSink) (*Observation, []*FieldError, error) {
	md, err := metadataFromJSON(doc)
	if err != nil {
		return nil, nil, err
	}
	nature, err := ParseNature(stringField(doc, KeyNature))
	if err != nil {
		return nil, nil, err
	}

	instrument, err := instrumentFromJSON(ctx, doc, resolver)
	if err != nil {
		return nil, nil, err
	}
	ref, err := phenotypeFromJSON(ctx, doc, resolver)
	if err != nil {
		return nil, nil, err
	}

	if vt, ok := core.GetString(doc, KeyValueType); ok && vt != "" {
		want := Resolve(ref.Variable().ScaleClass)
		if got := ParseKind(vt); got != want {
			ref.release()
			return nil, nil, fmt.Errorf("%w: document says %s, variable %s needs %s",
				core.ErrKindMismatch, vt, ref.Variable().Name(), want)
		}
	}

	p := Params{
		Phenotype:   ref,
		Instrument:  instrument,
		Metadata:    md,
		GrowthStage: stringField(doc, KeyGrowthStage),
		Method:      stringField(doc, KeyMethod),
		Notes:       stringField(doc, KeyNotes),
		Nature:      nature,
		Raw:         doc[FieldRaw],
		Corrected:   doc[FieldCorrected],
	}
	if id, ok := core.IDFromValue(doc[KeyID]); ok {
		p.ID = id
	}
	return New(p, sink)
}

func stringField(doc core.Document, key string) string {
	s, _ := core.GetString(doc, key)
	return s
}

func metadataFromJSON(doc core.Document) (Metadata, error) {
	md := Metadata{Index: DefaultIndex}
	parse := func(key string) (*time.Time, error) {
		raw, ok := doc[key]
		if !ok || raw == nil {
			return nil, nil
		}
		s, ok := raw.(string)
		if !ok {
			return nil, core.NewValidationError(key, fmt.Sprintf("expected a date string, got %T", raw))
		}
		if s == "" {
			return nil, nil
		}
		t, err := core.ParseTimestamp(s)
		if err != nil {
			return nil, core.NewValidationError(key, err.Error())
		}
		return &t, nil
	}
	var err error
	if md.StartDate, err = parse(KeyStartDate); err != nil {
		return md, err
	}
	if md.EndDate, err = parse(KeyEndDate); err != nil {
		return md, err
	}
	if raw, ok := doc[KeyIndex]; ok && raw != nil {
		i, ok := core.ToInt64(raw)
		if !ok || i < 1 || i > int64(^uint32(0)) {
			return md, core.NewValidationError(KeyIndex, fmt.Sprintf("%v is not a positive integer", raw))
		}
		md.Index = uint32(i)
	}
	return md, nil
}

func phenotypeFromJSON(ctx context.Context, doc core.Document, resolver Resolver) (PhenotypeRef, error) {
	if id, ok := core.IDFromValue(doc[KeyPhenotypeID]); ok {
		return resolvePhenotype(ctx, id, resolver)
	}
	embedded, ok := core.GetObject(doc, KeyPhenotype)
	if !ok {
		return nil, core.NewValidationError(KeyPhenotype, "missing")
	}
	if _, full := embedded["scale"]; full {
		mv, err := phenotype.VariableFromJSON(embedded)
		if err != nil {
			return nil, err
		}
		return Own(mv), nil
	}
	// minimal projection: only the id is usable
	if id, ok := core.IDFromValue(embedded[KeyID]); ok {
		return resolvePhenotype(ctx, id, resolver)
	}
	return nil, core.NewValidationError(KeyPhenotype, "neither a full variable nor an id")
}

func resolvePhenotype(ctx context.Context, id core.ID, resolver Resolver) (PhenotypeRef, error) {
	if resolver == nil {
		return nil, core.NewValidationError(KeyPhenotypeID, "no resolver for "+id.String())
	}
	ref, err := resolver.ResolvePhenotype(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve measured variable %s: %w", id, err)
	}
	return ref, nil
}

func instrumentFromJSON(ctx context.Context, doc core.Document, resolver Resolver) (*phenotype.Instrument, error) {
	var id core.ID
	if v, ok := core.IDFromValue(doc[KeyInstrumentID]); ok {
		id = v
	} else if embedded, ok := core.GetObject(doc, KeyInstrument); ok {
		if _, named := embedded["name"]; named {
			return phenotype.InstrumentFromJSON(embedded)
		}
		id, _ = core.IDFromValue(embedded[KeyID])
	}
	if id.IsEmpty() {
		return nil, nil
	}
	if resolver == nil {
		return nil, core.NewValidationError(KeyInstrumentID, "no resolver for "+id.String())
	}
	in, err := resolver.ResolveInstrument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve instrument %s: %w", id, err)
	}
	return in, nil
}
