package phenotype

import (
	"fmt"

	"fieldtrial/domain/core"
)

// SchemaTerm is an ontology term (trait, method, unit or variable name)
type SchemaTerm struct {
	URL          string `json:"url,omitempty"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Abbreviation string `json:"abbreviation,omitempty"`
}

func (t SchemaTerm) toJSON() core.Document {
	doc := core.Document{"name": t.Name}
	core.SetNonEmpty(doc, "url", t.URL)
	core.SetNonEmpty(doc, "description", t.Description)
	core.SetNonEmpty(doc, "abbreviation", t.Abbreviation)
	return doc
}

func termFromJSON(doc core.Document) SchemaTerm {
	var t SchemaTerm
	t.URL, _ = core.GetString(doc, "url")
	t.Name, _ = core.GetString(doc, "name")
	t.Description, _ = core.GetString(doc, "description")
	t.Abbreviation, _ = core.GetString(doc, "abbreviation")
	return t
}

// MeasuredVariable is a phenotype definition: trait + measurement method + unit + scale
type MeasuredVariable struct {
	ID          core.ID
	Trait       SchemaTerm
	Measurement SchemaTerm
	Unit        SchemaTerm
	Variable    SchemaTerm
	Form        *SchemaTerm
	ScaleClass  ScaleClass
}

// Name is the display name used for statistics results
func (mv *MeasuredVariable) Name() string {
	if mv.Variable.Name != "" {
		return mv.Variable.Name
	}
	return mv.Trait.Name
}

// Clear drops everything the variable holds. Only the owner of a variable calls this.
func (mv *MeasuredVariable) Clear() {
	*mv = MeasuredVariable{}
}

// ToJSON renders the full variable document
func (mv *MeasuredVariable) ToJSON() core.Document {
	doc := core.Document{
		"trait":       mv.Trait.toJSON(),
		"measurement": mv.Measurement.toJSON(),
		"unit":        mv.Unit.toJSON(),
		"variable":    mv.Variable.toJSON(),
		"scale":       core.Document{"class": string(mv.ScaleClass)},
	}
	if !mv.ID.IsEmpty() {
		doc["_id"] = mv.ID.String()
	}
	if mv.Form != nil {
		doc["form"] = mv.Form.toJSON()
	}
	return doc
}

// MinimalJSON renders the projection embedded by client-minimal views
func (mv *MeasuredVariable) MinimalJSON() core.Document {
	doc := core.Document{
		"name":        mv.Name(),
		"scale_class": string(mv.ScaleClass),
	}
	if !mv.ID.IsEmpty() {
		doc["_id"] = mv.ID.String()
	}
	core.SetNonEmpty(doc, "unit", mv.Unit.Name)
	return doc
}

// VariableFromJSON parses a full variable document
func VariableFromJSON(doc core.Document) (*MeasuredVariable, error) {
	mv := &MeasuredVariable{}
	if id, ok := core.IDFromValue(doc["_id"]); ok {
		mv.ID = id
	}
	if t, ok := core.GetObject(doc, "trait"); ok {
		mv.Trait = termFromJSON(t)
	}
	if t, ok := core.GetObject(doc, "measurement"); ok {
		mv.Measurement = termFromJSON(t)
	}
	if t, ok := core.GetObject(doc, "unit"); ok {
		mv.Unit = termFromJSON(t)
	}
	if t, ok := core.GetObject(doc, "variable"); ok {
		mv.Variable = termFromJSON(t)
	}
	if t, ok := core.GetObject(doc, "form"); ok {
		form := termFromJSON(t)
		mv.Form = &form
	}
	scale, ok := core.GetObject(doc, "scale")
	if !ok {
		return nil, core.NewValidationError("scale", "missing")
	}
	class, ok := core.GetString(scale, "class")
	if !ok || class == "" {
		return nil, core.NewValidationError("scale.class", "missing")
	}
	mv.ScaleClass = ParseScaleClass(class)
	if mv.Name() == "" {
		return nil, core.NewValidationError("variable.name", fmt.Sprintf("variable %s has no name", mv.ID))
	}
	return mv, nil
}
