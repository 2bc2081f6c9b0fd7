// Package domainerrors provides code-carrying errors shared across domain
// services. Handlers translate codes to HTTP statuses in one place instead of
// matching error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and retry decisions.
type Code string

const (
	// CodeBadRequest marks requests that could not be parsed at all.
	CodeBadRequest Code = "bad_request"
	// CodeValidation marks well-formed requests with invalid field values.
	CodeValidation Code = "validation_error"
	// CodeInvalidInput marks rejected values at trust boundaries (ID parsing etc.).
	CodeInvalidInput Code = "invalid_input"
	// CodeUnauthorized marks missing or unusable caller identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks callers acting outside their authority.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks lookups of absent entities.
	CodeNotFound Code = "not_found"
	// CodeConflict marks operations losing to concurrent or prior state.
	CodeConflict Code = "conflict"
	// CodeTimeout marks operations cancelled by deadline.
	CodeTimeout Code = "timeout"
	// CodeInvariantViolation marks broken domain invariants; constructors
	// return it, services convert it to CodeValidation at the API edge.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal marks everything the caller cannot fix.
	CodeInternal Code = "internal_error"
)

// Error is the concrete error carrying a Code. Construct via New or Wrap.
type Error struct {
	code Code
	msg  string
	err  error
}

// New creates an Error with the given code and message.
func New(code Code, msg string) error {
	return &Error{code: code, msg: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message while keeping the chain intact.
// A nil err yields nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

// Unwrap exposes the wrapped error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the classification of this error.
func (e *Error) Code() Code {
	return e.code
}

// Message returns the outward-safe message without wrapped detail.
func (e *Error) Message() string {
	return e.msg
}

// CodeOf extracts the Code from an error chain. Unclassified errors are
// treated as internal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.code == code
	}
	return false
}

// Is is shorthand for HasCode, matching how call sites read in tests.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
