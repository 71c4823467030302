package observation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"fieldtrial/domain/core"
)

// NumericValue holds 64-bit floating point values
type NumericValue struct {
	Raw       *float64
	Corrected *float64
}

func (v *NumericValue) sealed() {}

func (v *NumericValue) Kind() Kind { return KindNumeric }

func (v *NumericValue) slot(which Which) **float64 {
	if which == Corrected {
		return &v.Corrected
	}
	return &v.Raw
}

func (v *NumericValue) Clear() {
	v.Raw = nil
	v.Corrected = nil
}

func (v *NumericValue) Has(which Which) bool {
	return *v.slot(which) != nil
}

// Preferred returns the corrected value when set, else the raw value
func (v *NumericValue) Preferred() (float64, bool) {
	if v.Corrected != nil {
		return *v.Corrected, true
	}
	if v.Raw != nil {
		return *v.Raw, true
	}
	return 0, false
}

func (v *NumericValue) AddToJSON(rawKey, correctedKey string, target core.Document, null any, onlyIfPresent bool) int {
	n := 0
	for _, w := range []Which{Raw, Corrected} {
		key := rawKey
		if w == Corrected {
			key = correctedKey
		}
		p := *v.slot(w)
		var out any
		if p != nil {
			out = *p
		}
		n += addToJSON(target, key, p != nil, out, null, onlyIfPresent)
	}
	return n
}

func (v *NumericValue) SetFromJSON(which Which, node any) error {
	var f float64
	switch n := node.(type) {
	case nil:
		*v.slot(which) = nil
		return nil
	case string:
		return v.SetFromString(which, n)
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", core.ErrInvalidValue, n.String())
		}
		f = parsed
	default:
		return fmt.Errorf("%w: expected a number, got %T", core.ErrInvalidValue, node)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: %v is not finite", core.ErrInvalidValue, f)
	}
	*v.slot(which) = &f
	return nil
}

func (v *NumericValue) SetFromString(which Which, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		*v.slot(which) = nil
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: %q is not a number", core.ErrInvalidValue, text)
	}
	*v.slot(which) = &f
	return nil
}

func (v *NumericValue) Render(which Which) Rendered {
	p := *v.slot(which)
	if p == nil {
		return Rendered{Ownership: Owned}
	}
	return owned(strconv.FormatFloat(*p, 'f', -1, 64))
}
