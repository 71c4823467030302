package main

import (
	"encoding/json"
	"fmt"
	"io"

	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// statusColor picks the colour of an operation status
func statusColor(s core.OperationStatus) *color.Color {
	switch s {
	case core.StatusSucceeded:
		return green
	case core.StatusPartiallySucceeded:
		return yellow
	default:
		return red
	}
}

func printStatus(w io.Writer, label string, s core.OperationStatus) {
	fmt.Fprintf(w, "%s ", label)
	statusColor(s).Fprintln(w, s.String())
}

func printFieldErrors(w io.Writer, errs []*observation.FieldError) {
	for _, fe := range errs {
		c := yellow
		if fe.Severity == observation.SeverityError {
			c = red
		}
		c.Fprintf(w, "  %s ", fe.Severity)
		fmt.Fprintln(w, fe.Error())
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
