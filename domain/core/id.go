package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID identifies a stored document (study, plot, measured variable, instrument, observation)
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// ParseID parses a non-blank string into an ID
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("id cannot be empty")
	}
	return ID(s), nil
}

// IDFromValue converts a decoded document value into an ID. Strings are used as-is;
// Mongo extended JSON object ids ({"$oid": "..."}) are unwrapped.
func IDFromValue(v any) (ID, bool) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return "", false
		}
		return ID(t), true
	case ID:
		return t, !t.IsEmpty()
	case map[string]any:
		if oid, ok := t["$oid"].(string); ok && oid != "" {
			return ID(oid), true
		}
	case fmt.Stringer:
		if s := t.String(); s != "" {
			return ID(s), true
		}
	}
	return "", false
}
