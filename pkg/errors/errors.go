// Package errors carries the relay's error taxonomy: coded errors that
// classify as retryable (transient store or network trouble) or fatal
// (misconfiguration, malformed input). Retry loops and sink code branch
// on the classification, never on error strings.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable = NewError("UNAVAILABLE", "dependency unavailable")
	ErrTimeout     = NewError("TIMEOUT", "operation timed out")
	ErrInternal    = NewError("INTERNAL", "internal error")
	ErrInvalid     = NewError("INVALID", "invalid input").AsFatal()
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code    string
	Message string
	Cause   error
	fatal   bool
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) IsRetryable() bool {
	return !e.IsFatal()
}

func (e *Error) IsFatal() bool {
	if e.fatal {
		return true
	}
	var fatal FatalError
	if e.Cause != nil && errors.As(e.Cause, &fatal) {
		return fatal.IsFatal()
	}
	return false
}

// WithCause returns a copy carrying cause; the receiver is not mutated,
// so the package sentinels stay clean.
func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

// AsFatal marks a copy of the error as non-retryable.
func (e *Error) AsFatal() *Error {
	err := *e
	err.fatal = true
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}
