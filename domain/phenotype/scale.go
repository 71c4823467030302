package phenotype

import "strings"

// ScaleClass is the semantic value type of a measured variable
type ScaleClass string

const (
	ScaleNumeric         ScaleClass = "numeric"
	ScaleInteger         ScaleClass = "integer"
	ScaleUnsignedInteger ScaleClass = "unsigned_integer"
	ScaleString          ScaleClass = "string"
	ScaleText            ScaleClass = "text"
	ScaleCode            ScaleClass = "code"
	ScaleTime            ScaleClass = "time"
	ScaleDate            ScaleClass = "date"
	ScaleNominal         ScaleClass = "nominal"
	ScaleOrdinal         ScaleClass = "ordinal"
	ScaleDuration        ScaleClass = "duration"
)

// crop ontology and legacy spellings
var scaleAliases = map[string]ScaleClass{
	"numerical":        ScaleNumeric,
	"numeric":          ScaleNumeric,
	"double":           ScaleNumeric,
	"xsd:double":       ScaleNumeric,
	"integer":          ScaleInteger,
	"int":              ScaleInteger,
	"xsd:integer":      ScaleInteger,
	"unsigned integer": ScaleUnsignedInteger,
	"unsigned_integer": ScaleUnsignedInteger,
	"unsigned":         ScaleUnsignedInteger,
	"string":           ScaleString,
	"xsd:string":       ScaleString,
	"text":             ScaleText,
	"code":             ScaleCode,
	"time":             ScaleTime,
	"date":             ScaleDate,
	"xsd:date":         ScaleDate,
	"nominal":          ScaleNominal,
	"ordinal":          ScaleOrdinal,
	"duration":         ScaleDuration,
}

// ParseScaleClass normalises a scale class name. Unknown names are kept verbatim so
// that the resolver can reject them explicitly.
func ParseScaleClass(name string) ScaleClass {
	key := strings.ToLower(strings.TrimSpace(name))
	if sc, ok := scaleAliases[key]; ok {
		return sc
	}
	return ScaleClass(key)
}

func (s ScaleClass) String() string { return string(s) }
