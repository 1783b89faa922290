package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class that crosses the bridge boundary.
type Code string

const (
	CodePermissionDenied    Code = "PERMISSION_DENIED"     // user declined an OS prompt
	CodeNoAuthorization     Code = "NO_AUTHORIZATION"      // capture attempted without a live grant
	CodeCaptureTimeout      Code = "CAPTURE_TIMEOUT"       // frame never produced
	CodeObserverReadFailure Code = "OBSERVER_READ_FAILURE" // screenshot detection, logged only
	CodeBusy                Code = "BUSY"                  // same-kind request already in flight
	CodeServiceUnavailable  Code = "SERVICE_UNAVAILABLE"
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeNotImplemented      Code = "NOT_IMPLEMENTED"
	CodeInternal            Code = "INTERNAL"
)

// Error is a typed failure with a human-readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// PermissionDenied reports that the user declined a permission prompt.
func PermissionDenied(reason string) *Error {
	return &Error{Code: CodePermissionDenied, Message: reason}
}

// NoAuthorization reports that no live authorization grant backs a capture.
func NoAuthorization(reason string) *Error {
	return &Error{Code: CodeNoAuthorization, Message: reason}
}

// CaptureTimeout reports that no frame arrived within the configured window.
func CaptureTimeout(after fmt.Stringer) *Error {
	return &Error{Code: CodeCaptureTimeout, Message: fmt.Sprintf("no frame produced within %s", after)}
}

// ObserverReadFailure wraps a best-effort screenshot detection failure.
func ObserverReadFailure(path string, err error) *Error {
	msg := "screenshot query failed"
	if path != "" {
		msg = fmt.Sprintf("failed to read screenshot %s", path)
	}
	return &Error{Code: CodeObserverReadFailure, Message: msg, Err: err}
}

// Busy reports that another request of the same kind is still pending.
func Busy(operation string) *Error {
	return &Error{Code: CodeBusy, Message: fmt.Sprintf("%s already in progress", operation)}
}

// ServiceUnavailable reports an OS service that could not be reached.
func ServiceUnavailable(msg string, err error) *Error {
	return &Error{Code: CodeServiceUnavailable, Message: msg, Err: err}
}

// InvalidRequest reports malformed caller input.
func InvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg}
}

// NotImplemented reports an unknown bridge method.
func NotImplemented(method string) *Error {
	return &Error{Code: CodeNotImplemented, Message: fmt.Sprintf("method %q is not implemented", method)}
}

// Internal wraps an unexpected error.
func Internal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: CodeInternal, Message: msg, Err: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// From converts any error into an *Error, preserving typed errors.
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

// HTTPStatus maps a code onto the status used by the HTTP bridge transport.
func HTTPStatus(code Code) int {
	switch code {
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNoAuthorization:
		return http.StatusUnauthorized
	case CodeCaptureTimeout:
		return http.StatusGatewayTimeout
	case CodeBusy:
		return http.StatusConflict
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNotImplemented:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
