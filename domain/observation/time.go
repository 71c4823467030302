package observation

import (
	"fmt"

	"cloud.google.com/go/civil"

	"fieldtrial/domain/core"
)

// TimeValue holds calendar dates
type TimeValue struct {
	Raw       *civil.Date
	Corrected *civil.Date
}

func (v *TimeValue) sealed() {}

func (v *TimeValue) Kind() Kind { return KindTime }

func (v *TimeValue) slot(which Which) **civil.Date {
	if which == Corrected {
		return &v.Corrected
	}
	return &v.Raw
}

func (v *TimeValue) Clear() {
	v.Raw = nil
	v.Corrected = nil
}

func (v *TimeValue) Has(which Which) bool {
	return *v.slot(which) != nil
}

func (v *TimeValue) AddToJSON(rawKey, correctedKey string, target core.Document, null any, onlyIfPresent bool) int {
	n := 0
	for _, w := range []Which{Raw, Corrected} {
		key := rawKey
		if w == Corrected {
			key = correctedKey
		}
		p := *v.slot(w)
		var out any
		if p != nil {
			out = p.String()
		}
		n += addToJSON(target, key, p != nil, out, null, onlyIfPresent)
	}
	return n
}

func (v *TimeValue) SetFromJSON(which Which, node any) error {
	switch n := node.(type) {
	case nil:
		*v.slot(which) = nil
		return nil
	case string:
		return v.SetFromString(which, n)
	}
	return fmt.Errorf("%w: expected an ISO-8601 date string, got %T", core.ErrInvalidValue, node)
}

func (v *TimeValue) SetFromString(which Which, text string) error {
	if text == "" {
		*v.slot(which) = nil
		return nil
	}
	d, err := core.ParseDate(text)
	if err != nil || !d.IsValid() {
		return fmt.Errorf("%w: %q is not an ISO-8601 date", core.ErrInvalidValue, text)
	}
	*v.slot(which) = &d
	return nil
}

func (v *TimeValue) Render(which Which) Rendered {
	p := *v.slot(which)
	if p == nil {
		return Rendered{Ownership: Owned}
	}
	return owned(p.String())
}
