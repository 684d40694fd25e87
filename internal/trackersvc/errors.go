package trackersvc

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by tracker methods a variant has no backing
// concept for (e.g. slack-mirror has no workflow states).
var ErrUnsupported = errors.New("operation not supported by this tracker")

// Error is the explicit "success=false" or 4xx-non-401 surface spec.md §4.1
// requires: transport errors are wrapped with cause, 4xx is surfaced
// verbatim, and `success=false` payloads become named errors.
type Error struct {
	Tracker   string
	Operation string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tracker, e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s: %s failed", e.Tracker, e.Operation)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps cause as a named tracker operation failure.
func NewError(tracker, operation string, cause error) error {
	return &Error{Tracker: tracker, Operation: operation, Cause: cause}
}
