// Package adapter implements the upstream data-source clients: the core venue
// info API, the EVM chain reader, and the external market-data aggregator.
// Each client is an opaque read-only source; callers decide how failures
// degrade.
package adapter

import (
	"fmt"
	"regexp"
)

// Common error types for upstream adapters

var (
	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrProviderUnavailable indicates the data provider is unavailable
	ErrProviderUnavailable = fmt.Errorf("data provider unavailable")

	// ErrNoData indicates the source had no answer for the requested asset
	ErrNoData = fmt.Errorf("source has no data for asset")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Source  string // Which upstream failed (e.g. "hypercore", "evm")
	Op      string // Operation that failed (e.g. "PerpAccountState")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("adapter error [%s:%s]: %v (details: %+v)", e.Source, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("adapter error [%s:%s]: %v", e.Source, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(source, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Source:  source,
		Op:      op,
		Err:     err,
		Details: details,
	}
}

var addressPattern = regexp.MustCompile("^0x[a-fA-F0-9]{40}$")

// ValidAddress checks if the address is a well-formed EVM address.
func ValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}
