package core

import (
	"encoding/json"
	"math"
	"strconv"
)

// Document is a decoded JSON object as exchanged with the document store
type Document = map[string]any

// Filter selects documents by equality on (possibly dotted) field paths
type Filter = map[string]any

// KeyID is the primary key of every stored document
const KeyID = "_id"

// GetString returns a string field
func GetString(doc Document, key string) (string, bool) {
	v, ok := doc[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetObject returns a nested object field
func GetObject(doc Document, key string) (Document, bool) {
	v, ok := doc[key].(map[string]any)
	return v, ok
}

// GetArray returns an array field
func GetArray(doc Document, key string) ([]any, bool) {
	v, ok := doc[key].([]any)
	return v, ok
}

// GetInt returns an integral numeric field; numeric strings are accepted
func GetInt(doc Document, key string) (int64, bool) {
	v, ok := doc[key]
	if !ok || v == nil {
		return 0, false
	}
	return ToInt64(v)
}

// ToInt64 converts a decoded JSON number (or numeric string) without fractional part
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		return ParseIntegral(n.String())
	case string:
		return ParseIntegral(n)
	}
	return 0, false
}

// ParseIntegral parses a decimal integer, or a float literal with no fractional
// part such as "3.0" or "1e3"
func ParseIntegral(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// ToFloat64 converts a decoded JSON number
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// SetNonEmpty writes key only when value is not blank
func SetNonEmpty(doc Document, key, value string) {
	if value != "" {
		doc[key] = value
	}
}
