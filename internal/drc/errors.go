package drc

import (
	"context"
	"errors"
	"fmt"
)

// ErrAborted is returned when a check is cancelled. The result of an
// aborted check is incomplete and no good dates are recorded for it.
var ErrAborted = errors.New("check aborted")

// InvariantCode categorizes invariant failures.
type InvariantCode string

const (
	// CodeCycle indicates a cell that contains itself.
	CodeCycle InvariantCode = "CYCLE"

	// CodeMissingInst indicates an instance without numbering data.
	CodeMissingInst InvariantCode = "MISSING_INST"

	// CodeOverflow indicates global index arithmetic overflow.
	CodeOverflow InvariantCode = "OVERFLOW"

	// CodeUnknownCell indicates a reference to a cell not in the library.
	CodeUnknownCell InvariantCode = "UNKNOWN_CELL"
)

// InvariantError reports a corrupt or partially built hierarchy. It is
// fatal: the check stops and nothing is retried.
type InvariantError struct {
	Code    InvariantCode
	Message string
	Cell    string
}

func (e *InvariantError) Error() string {
	if e.Cell != "" {
		return fmt.Sprintf("%s: %s (cell=%s)", e.Code, e.Message, e.Cell)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvariant reports whether err is an InvariantError.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// abortErr wraps the context's cause in ErrAborted.
func abortErr(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrAborted, context.Cause(ctx))
}
