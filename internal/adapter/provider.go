package adapter

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// RPCProvider tracks a primary and optional secondary RPC endpoint and fails
// over between them when the active endpoint misbehaves.
type RPCProvider struct {
	mu sync.RWMutex

	primaryURL   string
	secondaryURL string
	currentURL   string

	consecutiveFails int
	lastFailure      time.Time
}

// NewRPCProvider creates a new RPC provider with primary and optional secondary URLs
func NewRPCProvider(primaryURL, secondaryURL string) (*RPCProvider, error) {
	if primaryURL == "" {
		return nil, fmt.Errorf("primary URL cannot be empty")
	}

	return &RPCProvider{
		primaryURL:   primaryURL,
		secondaryURL: secondaryURL,
		currentURL:   primaryURL,
	}, nil
}

// CurrentURL returns the currently active RPC endpoint URL
func (p *RPCProvider) CurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentURL
}

// Failover switches to the other endpoint. Returns an error when no secondary
// is configured.
func (p *RPCProvider) Failover() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.secondaryURL == "" {
		return ErrProviderUnavailable
	}

	if p.currentURL == p.primaryURL {
		p.currentURL = p.secondaryURL
	} else {
		p.currentURL = p.primaryURL
	}
	p.consecutiveFails = 0
	return nil
}

// RecordFailure records a failed request for health tracking
func (p *RPCProvider) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFails++
	p.lastFailure = time.Now()
}

// RecordSuccess resets the consecutive failure counter
func (p *RPCProvider) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFails = 0
}

// Reset resets the provider to use the primary endpoint
func (p *RPCProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentURL = p.primaryURL
	p.consecutiveFails = 0
}

// ShouldFailover determines if an error warrants failing over to another provider
func ShouldFailover(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") {
		return true
	}

	return false
}
