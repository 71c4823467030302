package observation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"fieldtrial/domain/core"
)

// IntegerValue holds 32-bit integer values
type IntegerValue struct {
	Raw       *int32
	Corrected *int32
}

func (v *IntegerValue) sealed() {}

func (v *IntegerValue) Kind() Kind { return KindInteger }

func (v *IntegerValue) slot(which Which) **int32 {
	if which == Corrected {
		return &v.Corrected
	}
	return &v.Raw
}

func (v *IntegerValue) Clear() {
	v.Raw = nil
	v.Corrected = nil
}

func (v *IntegerValue) Has(which Which) bool {
	return *v.slot(which) != nil
}

func (v *IntegerValue) AddToJSON(rawKey, correctedKey string, target core.Document, null any, onlyIfPresent bool) int {
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

func (v *IntegerValue) SetFromJSON(which Which, node any) error {
	switch n := node.(type) {
	case nil:
		*v.slot(which) = nil
		return nil
	case string:
		return v.SetFromString(which, n)
	case bool, map[string]any, []any:
		return fmt.Errorf("%w: expected an integer, got %T", core.ErrInvalidValue, node)
	}
	i, ok := core.ToInt64(node)
	if !ok {
		return fmt.Errorf("%w: %v is not an integer", core.ErrInvalidValue, node)
	}
	return v.store(which, i)
}

func (v *IntegerValue) SetFromString(which Which, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		*v.slot(which) = nil
		return nil
	}
	i, ok := core.ParseIntegral(text)
	if !ok {
		return fmt.Errorf("%w: %q is not an integer", core.ErrInvalidValue, text)
	}
	return v.store(which, i)
}

func (v *IntegerValue) store(which Which, i int64) error {
	if i < math.MinInt32 || i > math.MaxInt32 {
		return fmt.Errorf("%w: %d overflows a 32-bit integer", core.ErrInvalidValue, i)
	}
	n := int32(i)
	*v.slot(which) = &n
	return nil
}

func (v *IntegerValue) Render(which Which) Rendered {
	p := *v.slot(which)
	if p == nil {
		return Rendered{Ownership: Owned}
	}
	return owned(strconv.FormatInt(int64(*p), 10))
}
