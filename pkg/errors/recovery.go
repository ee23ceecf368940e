package errors

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic turns a recovered panic value into a fatal *Error carrying
// the goroutine stack. Call with the result of recover().
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}

	var cause error
	if err, ok := r.(error); ok {
		cause = err
	} else {
		cause = fmt.Errorf("panic: %v", r)
	}

	return &PanicError{
		Err:   ErrInternal.WithCause(cause).AsFatal(),
		Stack: string(debug.Stack()),
	}
}

// PanicError is a fatal error that also carries the goroutine stack at
// the point of the panic.
type PanicError struct {
	Err   *Error
	Stack string
}

func (p *PanicError) Error() string { return p.Err.Error() }

func (p *PanicError) Unwrap() error { return p.Err }

func (p *PanicError) IsFatal() bool { return true }
