package pipeline

import (
	"errors"
	"fmt"

	"github.com/jonathan/credit-applier/internal/types"
)

// ParseError is returned when a cell does not hold the value its category expects.
// The cell is left for manual correction.
type ParseError struct {
	Kind  types.Kind
	Value string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s cell: %v", e.Kind, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// AbortError is returned by Orchestrator.Run when the run stops before the last record.
type AbortError struct {
	Stage string
	Cause error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("run aborted during %s: %v", e.Stage, e.Cause)
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// IsAborted reports whether err is an AbortError.
func IsAborted(err error) bool {
	var abort *AbortError
	return errors.As(err, &abort)
}
