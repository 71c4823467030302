package phenotype

import "fieldtrial/domain/core"

// Instrument is the device an observation was taken with
type Instrument struct {
	ID           core.ID
	Name         string
	Model        string
	Manufacturer string
}

func (in *Instrument) ToJSON() core.Document {
	doc := core.Document{"name": in.Name}
	if !in.ID.IsEmpty() {
		doc["_id"] = in.ID.String()
	}
	core.SetNonEmpty(doc, "model", in.Model)
	core.SetNonEmpty(doc, "manufacturer", in.Manufacturer)
	return doc
}

func InstrumentFromJSON(doc core.Document) (*Instrument, error) {
	in := &Instrument{}
	if id, ok := core.IDFromValue(doc["_id"]); ok {
		in.ID = id
	}
	in.Name, _ = core.GetString(doc, "name")
	if in.Name == "" {
		return nil, core.NewValidationError("instrument.name", "missing")
	}
	in.Model, _ = core.GetString(doc, "model")
	in.Manufacturer, _ = core.GetString(doc, "manufacturer")
	return in, nil
}
