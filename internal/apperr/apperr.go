// Package apperr classifies failures produced by the identity core so the
// HTTP boundary can map them to a status without inspecting messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class of an Error.
type Kind string

const (
	KindValidation    Kind = "validation_error"
	KindPolicy        Kind = "policy_violation"
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindConfiguration Kind = "configuration_fault"
	KindStore         Kind = "store_fault"
)

// Error is a classified failure. Reason is a stable machine-readable detail
// such as an OTP outcome ("expired") or the PIN rule that failed.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and, when set on the target, reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

func Unauthorized(format string, args ...any) *Error { return newf(KindUnauthorized, format, args...) }

func Forbidden(format string, args ...any) *Error { return newf(KindForbidden, format, args...) }

func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

func Conflict(format string, args ...any) *Error { return newf(KindConflict, format, args...) }

// Policy reports a rule violation with a stable reason.
func Policy(reason, format string, args ...any) *Error {
	e := newf(KindPolicy, format, args...)
	e.Reason = reason
	return e
}

// Configuration wraps a startup misconfiguration.
func Configuration(err error, format string, args ...any) *Error {
	e := newf(KindConfiguration, format, args...)
	e.Err = err
	return e
}

// Store wraps a persistence failure. A nil err yields nil.
func Store(err error, op string) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: KindStore, Message: op, Err: err}
}

// KindOf classifies err. Unclassified errors are treated as store faults.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto the response status of the inbound surface.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindPolicy:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Public reports whether the message of kind may be shown to clients.
func Public(kind Kind) bool {
	return kind != KindStore && kind != KindConfiguration
}
