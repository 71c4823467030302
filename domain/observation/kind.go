// Package observation models a single recorded measurement of a measured variable.
//
// The value representation is chosen from the variable's scale class and is one of a
// closed set of variants (numeric, integer, string, time). Each variant owns an
// independently nullable raw value and corrected value.
package observation

import "fieldtrial/domain/phenotype"

// Kind selects the concrete value representation of an observation
type Kind int

const (
	// KindUnsupported is returned for scale classes no variant can hold
	KindUnsupported Kind = iota
	KindNumeric
	KindInteger
	KindString
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	default:
		return "unsupported"
	}
}

// ParseKind is the inverse of Kind.String
func ParseKind(s string) Kind {
	switch s {
	case "numeric":
		return KindNumeric
	case "integer":
		return KindInteger
	case "string":
		return KindString
	case "time":
		return KindTime
	default:
		return KindUnsupported
	}
}

// Resolve maps a scale class onto the observation kind that may hold its values.
// Callers must reject KindUnsupported rather than substituting a concrete kind.
func Resolve(scale phenotype.ScaleClass) Kind {
	switch scale {
	case phenotype.ScaleNumeric:
		return KindNumeric
	case phenotype.ScaleInteger, phenotype.ScaleUnsignedInteger:
		return KindInteger
	case phenotype.ScaleString, phenotype.ScaleText, phenotype.ScaleCode:
		return KindString
	case phenotype.ScaleTime, phenotype.ScaleDate:
		return KindTime
	default:
		return KindUnsupported
	}
}
