// Package apperror defines the error kinds shared by services and handlers.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidBillingState Kind = "INVALID_BILLING_STATE"
	KindUpstream            Kind = "UPSTREAM_SERVICE_ERROR"
	KindImmutableRecord     Kind = "IMMUTABLE_RECORD"
	KindConflict            Kind = "CONFLICT"
	KindInternal            Kind = "INTERNAL"
)

// Error is a classified error with a human readable message.
type Error struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrNotFound) works for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidBillingState = &Error{Kind: KindInvalidBillingState}
	ErrUpstream            = &Error{Kind: KindUpstream}
	ErrImmutableRecord     = &Error{Kind: KindImmutableRecord}
	ErrConflict            = &Error{Kind: KindConflict}
)

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidBillingState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidBillingState, Message: fmt.Sprintf(format, args...)}
}

func ImmutableRecord(format string, args ...any) *Error {
	return &Error{Kind: KindImmutableRecord, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// UpstreamError reports a failed call to an external service. Body holds the raw response.
type UpstreamError struct {
	Service    string `json:"service"`
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
	Err        error  `json:"-"`
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s responded with status %d: %s", e.Service, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
	}
	return e.Service + " request failed"
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return KindUpstream
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidBillingState, KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	case KindImmutableRecord:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
