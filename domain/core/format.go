package core

import (
	"fmt"
	"strings"
)

// ViewFormat selects how related objects appear in JSON output
type ViewFormat int

const (
	// ViewStorage references related objects by id and writes every value key
	ViewStorage ViewFormat = iota
	// ViewClientFull embeds related objects inline
	ViewClientFull
	// ViewClientMinimal embeds a minimal projection of related objects
	ViewClientMinimal
)

func (f ViewFormat) String() string {
	switch f {
	case ViewStorage:
		return "storage"
	case ViewClientFull:
		return "client_full"
	case ViewClientMinimal:
		return "client_minimal"
	default:
		return fmt.Sprintf("view_format(%d)", int(f))
	}
}

// IsClient reports whether the format targets clients rather than the store
func (f ViewFormat) IsClient() bool {
	return f == ViewClientFull || f == ViewClientMinimal
}

// ParseViewFormat parses a view format name; blank means client_full
func ParseViewFormat(s string) (ViewFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "storage", "db":
		return ViewStorage, nil
	case "", "full", "client_full", "client-full":
		return ViewClientFull, nil
	case "minimal", "client_minimal", "client-minimal":
		return ViewClientMinimal, nil
	}
	return ViewClientFull, fmt.Errorf("unknown view format %q", s)
}
