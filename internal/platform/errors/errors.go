// Package errors is the project error type: a message, a machine code and an
// optional field, wrapping the cause. Import it as perr
package errors

import (
	stderrs "errors"
	"fmt"
)

// ErrorCode classifies failures across the backfill pipeline.
// Labels are written to logs and the day ledger; keep them stable
type ErrorCode uint16

const (
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodeUnavailable marks transient backend failures; Retryable reports true
	ErrorCodeUnavailable

	// ErrorCodeConflict marks duplicate writes, such as a ledger row inserted twice
	ErrorCodeConflict

	ErrorCodeInvalidArgument

	// ErrorCodeValidation marks rejected options or config
	ErrorCodeValidation

	// ErrorCodeJSON marks payloads that could not be decoded
	ErrorCodeJSON

	ErrorCodeNotFound

	// ErrorCodeDB marks non transient postgres or clickhouse failures
	ErrorCodeDB

	// ErrorCodeIndex marks search index failures
	ErrorCodeIndex
)

var codeLabels = [...]string{
	ErrorCodeUnknown:         "unknown",
	ErrorCodeUnavailable:     "unavailable",
	ErrorCodeConflict:        "conflict",
	ErrorCodeInvalidArgument: "invalid_argument",
	ErrorCodeValidation:      "validation",
	ErrorCodeJSON:            "json",
	ErrorCodeNotFound:        "not_found",
	ErrorCodeDB:              "db",
	ErrorCodeIndex:           "index",
}

// String returns the stable label of c; out of range codes read as unknown
func (c ErrorCode) String() string {
	if int(c) < len(codeLabels) {
		return codeLabels[c]
	}
	return codeLabels[ErrorCodeUnknown]
}

// Error is the structured error. field names the offending option for validation errors
type Error struct {
	orig  error
	msg   string
	code  ErrorCode
	field string
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.orig != nil:
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	default:
		return e.msg
	}
}

func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending field, if any
func (e *Error) Field() string { return e.field }

// As finds the first *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, or ErrorCodeUnknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether CodeOf(err) is code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// Root follows Unwrap to the innermost cause
func Root(err error) error {
	for {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
}

// WithField returns a copy of err naming field; errors that are not *Error pass through
func WithField(err error, field string) error {
	e, ok := As(err)
	if !ok {
		return err
	}
	c := *e
	c.field = field
	return &c
}

func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap keeps orig as the cause of a new coded error
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

func InvalidArgf(format string, a ...any) error { return Newf(ErrorCodeInvalidArgument, format, a...) }
func Validationf(format string, a ...any) error { return Newf(ErrorCodeValidation, format, a...) }
func JSONErrf(format string, a ...any) error    { return Newf(ErrorCodeJSON, format, a...) }
func Indexf(format string, a ...any) error      { return Newf(ErrorCodeIndex, format, a...) }
func Unavailablef(format string, a ...any) error {
	return Newf(ErrorCodeUnavailable, format, a...)
}

// Retryable reports whether err is a transient backend condition: an explicit
// ErrorCodeUnavailable, or a cause the postgres or clickhouse classifiers accept
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return IsCode(err, ErrorCodeUnavailable) || IsRetryable(err) || IsTransientCH(err)
}
