// Package errors defines the failure taxonomy of the aggregation engine.
//
// Nothing below the portfolio aggregator boundary returns these as hard
// failures: source and venue problems are recovered locally and only recorded.
// The single surfaced condition is TotalFailure, when every venue fetch failed
// and no meaningful snapshot can be built.
package errors

import (
	"fmt"
	"net/http"
)

// Category represents the category of an error
type Category string

const (
	// CategorySourceUnavailable marks a single price or venue source failure,
	// recovered by falling through to the next source.
	CategorySourceUnavailable Category = "source_unavailable"
	// CategoryUnknownAsset marks a token with no configured price route.
	CategoryUnknownAsset Category = "unknown_asset"
	// CategoryPartialVenueFailure marks one venue fetcher failing entirely.
	CategoryPartialVenueFailure Category = "partial_venue_failure"
	// CategoryTotalFailure marks all venue fetchers failing.
	CategoryTotalFailure Category = "total_failure"
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput Category = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem Category = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   Category
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewTotalFailureError creates the error returned when all venue fetchers fail.
func NewTotalFailureError(address string, venueErrors map[string]string) *CategorizedError {
	details := make(map[string]interface{}, len(venueErrors))
	for venue, msg := range venueErrors {
		details[venue] = msg
	}
	return &CategorizedError{
		Category:   CategoryTotalFailure,
		StatusCode: http.StatusBadGateway,
		Code:       "ALL_VENUES_FAILED",
		Message:    fmt.Sprintf("no venue data available for %s", address),
		Details:    details,
	}
}

// NewInternalError wraps an unexpected failure as a system error. The cause
// stays server-side; clients only see the generic message.
func NewInternalError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		Cause:      cause,
	}
}

// IsTotalFailure reports whether err is a TotalFailure error.
func IsTotalFailure(err error) bool {
	ce, ok := err.(*CategorizedError)
	return ok && ce.Category == CategoryTotalFailure
}
