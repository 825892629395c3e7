package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindAuthRequired     Kind = "auth_required"
	KindAuthInvalid      Kind = "auth_invalid"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindValidationFailed Kind = "validation_failed"
	KindConflict         Kind = "conflict"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindUpstreamFailure  Kind = "upstream_failure"
	KindInternal         Kind = "internal"
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindAuthRequired, KindAuthInvalid:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error type surfaced by services and handlers.
type Error struct {
	Kind       Kind
	Message    string
	Field      string
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code for the error.
func (e *Error) Status() int { return e.Kind.Status() }

// ClientError reports whether the error was caused by the caller (4xx).
func (e *Error) ClientError() bool {
	s := e.Status()
	return s >= 400 && s < 500
}

// Debug returns the underlying cause text, if any.
func (e *Error) Debug() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func AuthRequired() *Error {
	return New(KindAuthRequired, "Authentication required")
}

func AuthInvalid(err error) *Error {
	return Wrap(KindAuthInvalid, "Invalid or expired token", err)
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "Forbidden"
	}
	return New(KindForbidden, message)
}

func NotFound(message string) *Error {
	if message == "" {
		message = "Not found"
	}
	return New(KindNotFound, message)
}

// Validation reports the first failing field of a request.
func Validation(field, constraint, message string) *Error {
	return &Error{
		Kind:       KindValidationFailed,
		Message:    message,
		Field:      field,
		Constraint: constraint,
	}
}

func Conflict(message string) *Error {
	return New(KindConflict, message)
}

func QuotaExceeded(message string) *Error {
	if message == "" {
		message = "AI usage limit exceeded"
	}
	return New(KindQuotaExceeded, message)
}

func Upstream(message string, err error) *Error {
	return Wrap(KindUpstreamFailure, message, err)
}

func Internal(err error) *Error {
	return Wrap(KindInternal, "Internal server error", err)
}

// From converts any error into an *Error. Unknown errors become Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
