package core

import "encoding/json"

// OperationStatus is the overall outcome of a multi-item operation
type OperationStatus int

const (
	StatusFailed OperationStatus = iota
	StatusPartiallySucceeded
	StatusSucceeded
)

func (s OperationStatus) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusPartiallySucceeded:
		return "partially_succeeded"
	default:
		return "failed"
	}
}

func (s OperationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// StatusFromTally derives the overall status from per-item outcomes.
// No items at all counts as success.
func StatusFromTally(succeeded, failed int) OperationStatus {
	switch {
	case failed == 0:
		return StatusSucceeded
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartiallySucceeded
	}
}
