// Package errors augments the standard errors
// provided by fmt (https://golang.org/src/fmt/errors.go)
// with a Wrap() method to wrap errors without resorting
// to fmt.Errorf("%w", err).
package errors

import (
	stderr "errors"
	"fmt"
)

var _ error = New("")

// New Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error augments the standard error interface with a Wrap method.
//
// Errors declared with New are meant to be used as sentinels: Wrap and Detail
// return a copy which still matches the sentinel with Is.
type Error struct {
	msg    string
	detail string
	err    error
	origin *Error
}

// Error message
func (e *Error) Error() string {
	msg := e.msg
	if e.detail != "" {
		msg += ": " + e.detail
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a nested error
func (e *Error) Wrap(err error) *Error {
	c := e.clone()
	c.err = err
	return c
}

// Detail adds some formatted context to the error message
func (e *Error) Detail(format string, args ...interface{}) *Error {
	c := e.clone()
	if c.detail != "" {
		c.detail += ", "
	}
	c.detail += fmt.Sprintf(format, args...)
	return c
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	if e == target {
		return true
	}
	t, ok := target.(*Error)
	return ok && e.origin != nil && e.origin == t
}

func (e *Error) clone() *Error {
	origin := e.origin
	if origin == nil {
		origin = e
	}
	return &Error{msg: e.msg, detail: e.detail, err: e.err, origin: origin}
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
