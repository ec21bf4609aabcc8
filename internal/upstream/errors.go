package upstream

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCategory defines the normalized failure taxonomy
type ErrorCategory string

const (
	// ErrorTimeout indicates the upstream took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the upstream returned invalid/malformed data
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates the token exchange failed
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorProviderOutage indicates the upstream is unavailable or answered non-2xx
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorRateLimited indicates the upstream answered 429
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// ProviderError wraps upstream failures with normalized categorization
type ProviderError struct {
	Category   ErrorCategory
	Operation  string // "token", "fids:TPE", "fids-filtered:TSA"
	Message    string
	Underlying error
	Retryable  bool
	// RetryAfter is the wait the upstream asked for; only set for ErrorRateLimited.
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("upstream %s [%s]: %s: %v", e.Operation, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("upstream %s [%s]: %s", e.Operation, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError creates a new normalized upstream error
func NewProviderError(category ErrorCategory, operation, message string, underlying error) *ProviderError {
	retryable := category == ErrorTimeout ||
		category == ErrorProviderOutage ||
		category == ErrorRateLimited

	return &ProviderError{
		Category:   category,
		Operation:  operation,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

func rateLimited(operation string, retryAfter time.Duration) *ProviderError {
	pe := NewProviderError(ErrorRateLimited, operation, "upstream returned 429", nil)
	pe.RetryAfter = retryAfter
	return pe
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

// RetryAfter returns the upstream-requested wait carried by a rate-limited error.
func RetryAfter(err error) (time.Duration, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Category == ErrorRateLimited {
		return pe.RetryAfter, true
	}
	return 0, false
}
