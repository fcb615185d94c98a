package session

import (
	"errors"
	"fmt"
)

var (
	ErrInitInFlight = errors.New("initialization already in flight")
	ErrNotInRoom    = errors.New("not in a room")
	ErrClosed       = errors.New("session closed")
)

// OpError is a failed client operation.
type OpError struct {
	Op      string
	Err     error
	Details string
}

func (e *OpError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}
