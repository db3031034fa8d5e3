// Package domainerrors carries coded domain errors across service boundaries.
//
// Services return *Error values; transports translate the Code into a status.
// Stores should not construct these directly; they return sentinel errors from
// pkg/platform/sentinel which services translate.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeValidation         Code = "validation_error"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvalidState       Code = "invalid_state"
	CodeInvalidSignature   Code = "invalid_signature"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// GetCode returns the code of the outermost *Error in the chain, or
// CodeInternal when no coded error is present.
func GetCode(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost coded error carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is errors.Is re-exported so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As re-exported so callers need a single import.
func As(err error, target any) bool {
	return errors.As(err, target)
}
