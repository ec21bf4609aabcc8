package service

import (
	"errors"
	"fmt"

	"flightproxy/internal/flight/models"
)

// RateLimitError tells the caller how long to wait before asking again.
type RateLimitError struct {
	RetryAfterSeconds int
	// Err is the upstream 429, nil when the local window refused the call.
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NotFoundError carries the requested code and, in debug mode, the sampled
// upstream records that were searched.
type NotFoundError struct {
	Flight string
	Debug  []DebugSample
}

func (e *NotFoundError) Error() string {
	return "flight " + e.Flight + " not found"
}

// DebugSample is the head of one partition's raw response.
type DebugSample struct {
	Airport string             `json:"airport"`
	Sample  []models.RawRecord `json:"sample"`
}

// RetryAfterSeconds extracts the wait from a rate-limited lookup error.
func RetryAfterSeconds(err error) (int, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfterSeconds, true
	}
	return 0, false
}

// NotFoundDetails extracts the not-found payload from a lookup error.
func NotFoundDetails(err error) (*NotFoundError, bool) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}
