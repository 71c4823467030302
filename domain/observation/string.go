package observation

import (
	"fmt"

	"fieldtrial/domain/core"
)

// StringValue holds free text values
type StringValue struct {
	Raw       *string
	Corrected *string
}

func (v *StringValue) sealed() {}

func (v *StringValue) Kind() Kind { return KindString }

func (v *StringValue) slot(which Which) **string {
	if which == Corrected {
		return &v.Corrected
	}
	return &v.Raw
}

func (v *StringValue) Clear() {
	v.Raw = nil
	v.Corrected = nil
}

func (v *StringValue) Has(which Which) bool {
	return *v.slot(which) != nil
}

func (v *StringValue) AddToJSON(rawKey, correctedKey string, target core.Document, null any, onlyIfPresent bool) int {
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

func (v *StringValue) SetFromJSON(which Which, node any) error {
	switch n := node.(type) {
	case nil:
		*v.slot(which) = nil
		return nil
	case string:
		return v.SetFromString(which, n)
	}
	return fmt.Errorf("%w: expected a string, got %T", core.ErrInvalidValue, node)
}

func (v *StringValue) SetFromString(which Which, text string) error {
	if text == "" {
		*v.slot(which) = nil
		return nil
	}
	s := text
	*v.slot(which) = &s
	return nil
}

// Render hands out the stored string itself rather than a copy
func (v *StringValue) Render(which Which) Rendered {
	return Rendered{Text: *v.slot(which), Ownership: Borrowed}
}
