// Package errors provides the error type used for the sentinel errors
// exported by the status packages: a constant message which may wrap a
// more specific cause, compatible with errors.Is and errors.As from the
// standard library.
package errors

import (
	stderr "errors"
	"fmt"
)

var _ error = New("")

// New creates a sentinel Error with a fixed message
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error is a message with an optional wrapped cause.
//
// Unlike fmt.Errorf("%w", ...) wrapping, sentinel identity is kept on the
// message: errors.Is(err, sentinel) holds for any Wrap()ed copy of sentinel.
type Error struct {
	msg string
	err error
}

// Error message, with the cause appended when present
func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap the cause
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap returns a copy of this error holding a cause. The receiver is not
// mutated, so sentinels may be shared freely across goroutines.
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, err: err}
}

// WrapMessage is like Wrap with a formatted cause
func (e *Error) WrapMessage(format string, args ...interface{}) *Error {
	return &Error{msg: e.msg, err: fmt.Errorf(format, args...)}
}

// Is reports identity against the sentinel this error was derived from
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.msg == t.msg
	}
	return false
}

// As finds the first error in err's chain that matches target
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
