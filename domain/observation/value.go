package observation

import "fieldtrial/domain/core"

// Which selects the raw or the corrected value of an observation
type Which int

const (
	Raw Which = iota
	Corrected
)

func (w Which) String() string {
	if w == Corrected {
		return "corrected"
	}
	return "raw"
}

// Ownership tells the receiver of a rendered string whether it holds a fresh copy
// or a view onto storage owned by the observation
type Ownership int

const (
	// Borrowed text aliases the observation's storage and is only valid until the value changes
	Borrowed Ownership = iota
	// Owned text was allocated for the caller
	Owned
)

func (o Ownership) String() string {
	if o == Owned {
		return "owned"
	}
	return "borrowed"
}

// Rendered is a value rendered as text together with its ownership
type Rendered struct {
	Text      *string
	Ownership Ownership
}

// Present reports whether a value was rendered
func (r Rendered) Present() bool { return r.Text != nil }

// String returns the text or "" when absent
func (r Rendered) String() string {
	if r.Text == nil {
		return ""
	}
	return *r.Text
}

func owned(s string) Rendered {
	return Rendered{Text: &s, Ownership: Owned}
}

// Value is the closed set of value representations: *NumericValue, *IntegerValue,
// *StringValue and *TimeValue. The unexported marker keeps the set closed.
type Value interface {
	Kind() Kind
	// Clear drops both values; calling it again is a no-op
	Clear()
	// Has reports whether the selected value is set
	Has(which Which) bool
	// AddToJSON writes the values under rawKey and correctedKey. Absent values are written
	// as null unless onlyIfPresent is set. It returns the number of keys written.
	AddToJSON(rawKey, correctedKey string, target core.Document, null any, onlyIfPresent bool) int
	// SetFromJSON stores a decoded JSON node. nil and "" clear the value. On error the
	// previous value is kept.
	SetFromJSON(which Which, node any) error
	// SetFromString parses and stores text. "" clears the value. On error the previous
	// value is kept.
	SetFromString(which Which, text string) error
	// Render returns the value as text
	Render(which Which) Rendered

	sealed()
}

// NewValue returns an empty value of the given kind
func NewValue(kind Kind) (Value, error) {
	switch kind {
	case KindNumeric:
		return &NumericValue{}, nil
	case KindInteger:
		return &IntegerValue{}, nil
	case KindString:
		return &StringValue{}, nil
	case KindTime:
		return &TimeValue{}, nil
	}
	return nil, core.ErrUnsupportedScaleClass
}

func addToJSON(target core.Document, key string, present bool, v any, null any, onlyIfPresent bool) int {
	if present {
		target[key] = v
		return 1
	}
	if onlyIfPresent {
		return 0
	}
	target[key] = null
	return 1
}
