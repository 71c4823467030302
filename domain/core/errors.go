package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrStudyNotFound      = fmt.Errorf("%w: study", ErrNotFound)
	ErrPlotNotFound       = fmt.Errorf("%w: plot", ErrNotFound)
	ErrRowNotFound        = fmt.Errorf("%w: row", ErrNotFound)
	ErrVariableNotFound   = fmt.Errorf("%w: measured variable", ErrNotFound)
	ErrInstrumentNotFound = fmt.Errorf("%w: instrument", ErrNotFound)

	// Validation errors
	ErrUnsupportedScaleClass = errors.New("unsupported scale class")
	ErrKindMismatch          = errors.New("observation kind does not match scale class")
	ErrNoValues              = errors.New("observation has neither raw nor corrected value")
	ErrInvalidValue          = errors.New("invalid observation value")
	ErrInvalidDocument       = errors.New("invalid document")

	// Processing errors
	ErrCapacityExhausted = errors.New("accumulator capacity exhausted")
	ErrStoreFailure      = errors.New("document store failure")
	ErrLocked            = errors.New("resource is locked")
)

// Error constructors with context
func NewNotFoundError(resource string, id ID) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidDocument, field, reason)
}

func NewStoreError(op, collection string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrStoreFailure, op, collection, err)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnsupportedScaleClass) ||
		errors.Is(err, ErrKindMismatch) ||
		errors.Is(err, ErrNoValues) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrInvalidDocument)
}

func IsStoreError(err error) bool {
	return errors.Is(err, ErrStoreFailure)
}
