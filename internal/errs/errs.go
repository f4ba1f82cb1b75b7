package errs

import (
	"errors"
	"fmt"
)

// Code is a harness error code.
type Code string

const (
	// InvalidArgument marks malformed fixture data or configuration.
	InvalidArgument Code = "invalid_argument"
	// NotFound marks a missing fixture file or scenario.
	NotFound Code = "not_found"
	// FailedPrecondition marks an observed page state that does not match
	// the expectation.
	FailedPrecondition Code = "failed_precondition"
	// Unavailable marks an unreachable target site or browser.
	Unavailable Code = "unavailable"
	Internal    Code = "internal"
)

// Error is a coded harness error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// MessageOf returns the outermost coded message, or the raw error text
// when the error carries no code.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return err.Error()
}

// IsSkip reports whether err means the dependent work should be skipped
// rather than failed: the site is down, or the fixture or scenario is
// missing.
func IsSkip(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case Unavailable, NotFound:
		return true
	}
	return false
}
