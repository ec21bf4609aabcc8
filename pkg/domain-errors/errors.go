// Package domainerrors defines the error codes services return so the HTTP
// layer can translate failures without knowing where they came from.
//
// Services wrap infrastructure errors (sentinel errors, provider errors) with a
// Code; handlers call CodeOf / ToHTTPStatus to build the response.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a failure for transport mapping.
type Code string

const (
	// CodeInvalidInput covers missing or malformed request parameters.
	CodeInvalidInput Code = "invalid_input"
	// CodeMethodNotAllowed is returned for unsupported HTTP verbs.
	CodeMethodNotAllowed Code = "method_not_allowed"
	// CodeAuthFailure means the upstream credential exchange failed.
	CodeAuthFailure Code = "auth_failure"
	// CodeRateLimited covers both the local window and upstream 429s.
	CodeRateLimited Code = "rate_limited"
	// CodeNotFound means no upstream partition held the requested flight.
	CodeNotFound Code = "not_found"
	// CodeUpstream covers network errors, unexpected statuses and bad payloads.
	CodeUpstream Code = "upstream_failure"
	// CodeTimeout means a bounded upstream call ran out of time.
	CodeTimeout Code = "timeout"
	// CodeInternal is the fallback for anything unclassified.
	CodeInternal Code = "internal_error"
)

// Error carries a Code, a caller-safe message and the wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to err.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the outermost Code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-safe message of the outermost Error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// ToHTTPStatus maps codes to HTTP statuses. Auth failures are a server-side
// problem from the caller's point of view, so they map to 500.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
