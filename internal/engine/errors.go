package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownOp is raised when a script dispatches an op that is not registered.
	ErrUnknownOp = errors.New("unknown op")
	// ErrDuplicateOp is returned when two extensions register the same op name.
	ErrDuplicateOp = errors.New("duplicate op")
	// ErrMissingArgument is returned by Args accessors for out-of-range positions.
	ErrMissingArgument = errors.New("missing argument")
	// ErrInvalidArgument is returned by Args accessors for values of the wrong kind.
	ErrInvalidArgument = errors.New("invalid argument")
)

// FatalError marks an op failure that terminates the runtime.
//
// Once recorded, every later ExecuteScript, Tick, and RunEventLoop call
// returns the same error. Script-side pcall does not clear it.
type FatalError struct {
	Cause error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Cause)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *FatalError) Unwrap() error {
	return e.Cause
}

// Fatal wraps err so the runtime treats it as unrecoverable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return err
	}
	return &FatalError{Cause: err}
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
