package flip

import (
	"errors"
	"fmt"
)

// ErrExhausted marks a run that stopped because a position had no successful candidate.
var ErrExhausted = errors.New("no candidate produced a success response")

// PreconditionError rejects inputs before any request is sent.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("precondition: %s: %v", e.Reason, e.Err)
	}
	return "precondition: " + e.Reason
}

func (e *PreconditionError) Unwrap() error { return e.Err }

func precondition(err error, format string, a ...any) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, a...), Err: err}
}

// ExhaustedError reports the position where the run aborted and the last committed state.
type ExhaustedError struct {
	Index   int
	Offset  int
	Partial WorkingState
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("byte %d (offset %d): none of 256 candidates matched", e.Index, e.Offset)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }
