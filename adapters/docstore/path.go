// Package docstore holds what the document store backends share: dotted path
// traversal with MongoDB array semantics, filter matching and distinct collection
// over raw JSON payloads.
package docstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"fieldtrial/domain/core"

	"github.com/tidwall/gjson"
)

// Walk calls fn for every value reached by the dotted path. Arrays met on the way,
// and an array at the end of the path, are traversed element by element.
func Walk(payload []byte, path string, fn func(gjson.Result)) {
	walk(gjson.ParseBytes(payload), strings.Split(path, "."), fn)
}

func walk(r gjson.Result, segs []string, fn func(gjson.Result)) {
	if r.IsArray() {
		r.ForEach(func(_, el gjson.Result) bool {
			walk(el, segs, fn)
			return true
		})
		return
	}
	if len(segs) == 0 {
		if r.Exists() {
			fn(r)
		}
		return
	}
	if !r.IsObject() {
		return
	}
	walk(r.Get(gjson.Escape(segs[0])), segs[1:], fn)
}

// Matches reports whether payload satisfies every equality in filter. A path matches
// when any value it reaches equals the wanted value.
func Matches(payload []byte, filter core.Filter) bool {
	for path, want := range filter {
		found := false
		Walk(payload, path, func(r gjson.Result) {
			if !found && Equal(r, want) {
				found = true
			}
		})
		if !found {
			return false
		}
	}
	return true
}

// Equal compares a JSON value with a Go value from a filter
func Equal(r gjson.Result, want any) bool {
	switch w := want.(type) {
	case nil:
		return r.Type == gjson.Null
	case string:
		return r.Type == gjson.String && r.Str == w
	case core.ID:
		return r.Type == gjson.String && r.Str == string(w)
	case bool:
		return (r.Type == gjson.True && w) || (r.Type == gjson.False && !w)
	}
	if f, ok := core.ToFloat64(want); ok {
		return r.Type == gjson.Number && r.Num == f
	}
	return false
}

// Distinct collects the unique values at path across payloads, in first-seen order
func Distinct(payloads [][]byte, path string) []any {
	seen := make(map[string]struct{})
	var out []any
	for _, p := range payloads {
		Walk(p, path, func(r gjson.Result) {
			key := fmt.Sprintf("%d:%s", r.Type, r.Raw)
			if r.Type == gjson.String {
				key = "s:" + r.Str
			}
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			out = append(out, r.Value())
		})
	}
	return out
}

// Encode marshals a document, assigning a new _id when it has none. It returns the id.
func Encode(doc core.Document) (core.ID, []byte, error) {
	id, ok := core.IDFromValue(doc[core.KeyID])
	if !ok {
		id = core.NewID()
		doc[core.KeyID] = id.String()
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("%w: encode document: %v", core.ErrInvalidDocument, err)
	}
	return id, b, nil
}

// Decode unmarshals a stored payload
func Decode(payload []byte) (core.Document, error) {
	var doc core.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode document: %v", core.ErrInvalidDocument, err)
	}
	return doc, nil
}

// WithID returns a shallow copy of doc carrying id
func WithID(doc core.Document, id core.ID) core.Document {
	out := make(core.Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out[core.KeyID] = id.String()
	return out
}
