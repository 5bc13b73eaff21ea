package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and retry decisions.
type Kind int

const (
	// KindUnauthorized means no resolvable identity or an unknown host.
	KindUnauthorized Kind = iota
	// KindForbidden means the identity lacks membership or capability.
	KindForbidden
	// KindReadOnly means the store license has lapsed for a mutating call.
	KindReadOnly
	// KindConflict means a state-machine guard failed; the caller may retry
	// after re-reading state.
	KindConflict
	// KindNotFound means the entity is absent or outside the caller's tenant
	// scope. Cross-tenant probes report NotFound, never Forbidden.
	KindNotFound
	// KindInvalid means the request itself is malformed.
	KindInvalid
	// KindInternal is an unexpected failure.
	KindInternal
)

// Error is a typed error carrying a machine-readable reason code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by kind and code so sentinel comparisons work with
// errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// New constructs a typed error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a cause to a typed error.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Unauthorized constructs an identity failure.
func Unauthorized(code, message string) *Error {
	return New(KindUnauthorized, code, message)
}

// Forbidden constructs a capability failure.
func Forbidden(code, message string) *Error {
	return New(KindForbidden, code, message)
}

// ReadOnly constructs a lapsed-license failure for mutating calls.
func ReadOnly(code, message string) *Error {
	return New(KindReadOnly, code, message)
}

// Conflict constructs a guard-condition failure.
func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// NotFound constructs a missing-or-out-of-scope failure.
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// Invalid constructs a malformed-request failure.
func Invalid(code, message string) *Error {
	return New(KindInvalid, code, message)
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return Wrap(KindInternal, "INTERNAL", "internal error", err)
}

// KindOf extracts the kind from any error, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the reason code from any error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// HTTPStatus maps an error kind to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden, KindReadOnly:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
