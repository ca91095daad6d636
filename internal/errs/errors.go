// Package errs provides the unified error type used across filegate.
//
// Every subsystem (filestore drivers, paginator, exporter, conversion
// pipeline, uploader) wraps its native errors into *errs.Error before
// returning them. The HTTP layer maps the kind to a status code with
// HTTPStatus and never inspects driver-specific errors.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindStoreUnavailable, "failed to list objects", err)
//
//	// In a handler, check the error kind:
//	if errs.IsNotFound(err) {
//	    respondError(w, http.StatusNotFound, "no files found")
//	}
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrKind categorises an error without exposing backend-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // empty page, missing object or bucket
	ErrKindStoreUnavailable         // object store unreachable or failing
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied by the store
	ErrKindConversionFailed         // converter exited non-zero or produced nothing
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindStoreUnavailable:
		return "store_unavailable"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindConversionFailed:
		return "conversion_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all filegate subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Invalid is shorthand for a caller-facing validation error.
func Invalid(format string, args ...any) *Error {
	return New(ErrKindInvalidInput, fmt.Sprintf(format, args...))
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsStoreUnavailable reports whether err is an object store failure.
func IsStoreUnavailable(err error) bool {
	return KindOf(err) == ErrKindStoreUnavailable
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsConversionFailed reports whether err came from the document converter.
func IsConversionFailed(err error) bool {
	return KindOf(err) == ErrKindConversionFailed
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// HTTPStatus maps err to the response code the API layer answers with.
// Timeouts surface as 500 like any other store or converter failure.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrKindInvalidInput:
		return http.StatusBadRequest
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
