// Package gameerr defines the error kinds the game engine reports and their
// HTTP mappings. Services return *Error values (usually wrapped); the HTTP
// layer unwraps with errors.As and maps Kind to a status code.
package gameerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	KindValidation Kind = iota
	KindAuth
	KindAccessDenied
	KindNotFound
	KindConflict
	KindInsufficientResources
	KindInsufficientActionPoints
	KindRateLimited
	KindInternal
)

// String returns the stable code for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindAuth:
		return "auth_error"
	case KindAccessDenied:
		return "access_denied"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInsufficientResources:
		return "insufficient_resources"
	case KindInsufficientActionPoints:
		return "insufficient_action_points"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal_error"
	}
}

// HTTPStatus returns the status code the kind maps to.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuth:
		return http.StatusUnauthorized
	case KindAccessDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInsufficientResources:
		return http.StatusConflict
	case KindInsufficientActionPoints, KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the tagged error type used across services. Details carries
// structured payload data (e.g. required vs available) surfaced to clients.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is reports kind equality so errors.Is(err, gameerr.NotFound("")) style
// comparisons work on kind alone.
func (e *Error) Is(target error) bool {
	var ge *Error
	if errors.As(target, &ge) {
		return e.Kind == ge.Kind
	}
	return false
}

// WithDetail returns e with an extra detail field set.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Wrap returns e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	e.wrapped = err
	return e
}

func newError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// Authf builds an AuthError.
func Authf(format string, args ...any) *Error {
	return newError(KindAuth, format, args...)
}

// AccessDeniedf builds an AccessDenied error.
func AccessDeniedf(format string, args ...any) *Error {
	return newError(KindAccessDenied, format, args...)
}

// NotFoundf builds a NotFound error. Un-owned resources are reported through
// this kind to avoid leaking existence.
func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// Conflictf builds a Conflict error.
func Conflictf(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// InsufficientResourcesf builds an InsufficientResources error.
func InsufficientResourcesf(format string, args ...any) *Error {
	return newError(KindInsufficientResources, format, args...)
}

// InsufficientActionPointsf builds an InsufficientActionPoints error.
func InsufficientActionPointsf(format string, args ...any) *Error {
	return newError(KindInsufficientActionPoints, format, args...)
}

// RateLimitedf builds a RateLimited error.
func RateLimitedf(format string, args ...any) *Error {
	return newError(KindRateLimited, format, args...)
}

// Internalf builds an Internal error.
func Internalf(format string, args ...any) *Error {
	return newError(KindInternal, format, args...)
}

// KindOf extracts the kind from err, defaulting to Internal for untagged
// errors (database failures and the like).
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// DetailsOf extracts structured details from err, or nil.
func DetailsOf(err error) map[string]any {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Details
	}
	return nil
}

// MessageOf returns the client-safe message for err. Untagged errors are
// masked; the real cause stays in the logs.
func MessageOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	return "internal server error"
}
