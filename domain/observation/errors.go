package observation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity of a reported field failure
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// FieldError describes a value that could not be stored
type FieldError struct {
	Severity Severity
	Location string // where the value came from, e.g. "Sheet1!C12" or a plot/row reference
	Field    string
	Value    any
	Err      error
}

func (e *FieldError) Error() string {
	var b strings.Builder
	if e.Location != "" {
		b.WriteString(e.Location)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%s", e.Field)
	if e.Value != nil {
		fmt.Fprintf(&b, " (value %v)", e.Value)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) MarshalJSON() ([]byte, error) {
	out := struct {
		Severity string `json:"severity"`
		Location string `json:"location,omitempty"`
		Field    string `json:"field"`
		Value    any    `json:"value,omitempty"`
		Message  string `json:"message,omitempty"`
	}{Severity: e.Severity.String(), Location: e.Location, Field: e.Field, Value: e.Value}
	if e.Err != nil {
		out.Message = e.Err.Error()
	}
	return json.Marshal(out)
}

// ErrorSink receives recoverable failures as they happen
type ErrorSink interface {
	Report(err *FieldError)
}

// SinkFunc adapts a function to ErrorSink
type SinkFunc func(err *FieldError)

func (f SinkFunc) Report(err *FieldError) { f(err) }

// FieldErrors collects reported failures
type FieldErrors []*FieldError

func (fe *FieldErrors) Report(err *FieldError) { *fe = append(*fe, err) }

func report(sink ErrorSink, err *FieldError) {
	if sink != nil {
		sink.Report(err)
	}
}
