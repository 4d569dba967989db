// Package circuitbreaker guards outbound venue calls. Once an upstream
// starts failing consistently the breaker opens and callers fail fast
// instead of piling retries onto a struggling API.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the current mode of a breaker.
type State string

const (
	// StateClosed allows all requests through.
	StateClosed State = "closed"
	// StateOpen rejects requests until the cooldown elapses.
	StateOpen State = "open"
	// StateHalfOpen allows a limited number of probe requests.
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned when the breaker rejects a request outright.
var ErrOpen = errors.New("circuit breaker is open")

// ErrTooManyProbes is returned when the half-open probe budget is spent.
var ErrTooManyProbes = errors.New("circuit breaker half-open probe limit reached")

// Config tunes a Breaker.
type Config struct {
	Name             string
	MaxFailures      int           // consecutive failures before opening
	FailureThreshold float64       // failure rate (0.0-1.0) that also opens the circuit
	Cooldown         time.Duration // open duration before probing
	HalfOpenMaxCalls int
}

// DefaultConfig returns settings suited to the venue HTTP APIs.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      5,
		FailureThreshold: 0.5,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// Breaker implements a three-state circuit breaker.
type Breaker struct {
	name             string
	maxFailures      int
	failureThreshold float64
	cooldown         time.Duration
	halfOpenMaxCalls int
	log              zerolog.Logger

	mu               sync.RWMutex
	state            State
	failures         int
	successes        int
	totalCalls       int
	probes           int
	consecutiveFails int
	lastStateChange  time.Time
}

// New creates a Breaker from config. A nil config uses DefaultConfig
// with an empty name.
func New(cfg *Config, log zerolog.Logger) *Breaker {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	return &Breaker{
		name:             cfg.Name,
		maxFailures:      cfg.MaxFailures,
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
		halfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		log:              log.With().Str("breaker", cfg.Name).Logger(),
		state:            StateClosed,
		lastStateChange:  time.Now(),
	}
}

// Execute runs fn if the breaker admits the request and records the
// outcome. Context errors are counted as failures like any other.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Reset forces the breaker back to closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.clearCounters()
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastStateChange) < b.cooldown {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.clearCounters()
		b.log.Info().Msg("circuit breaker half-open, probing upstream")
		return nil
	case StateHalfOpen:
		// Probes are counted on admission so in-flight calls hold
		// a slot even before they complete.
		if b.probes >= b.halfOpenMaxCalls {
			return ErrTooManyProbes
		}
		b.probes++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	if err != nil {
		b.onFailure()
		return
	}
	b.onSuccess()
}

func (b *Breaker) onSuccess() {
	b.successes++
	b.consecutiveFails = 0

	if b.state == StateHalfOpen && b.successes >= b.halfOpenMaxCalls {
		b.transition(StateClosed)
		b.clearCounters()
		b.log.Info().Msg("circuit breaker closed after recovery")
	}
}

func (b *Breaker) onFailure() {
	b.failures++
	b.consecutiveFails++

	switch b.state {
	case StateClosed:
		if b.shouldOpen() {
			b.transition(StateOpen)
			b.log.Warn().
				Int("failures", b.failures).
				Int("total_calls", b.totalCalls).
				Float64("failure_rate", b.failureRate()).
				Msg("circuit breaker opened")
		}
	case StateHalfOpen:
		// Any probe failure reopens immediately.
		b.transition(StateOpen)
		b.log.Warn().Msg("circuit breaker reopened after failed probe")
	}
}

func (b *Breaker) shouldOpen() bool {
	if b.consecutiveFails >= b.maxFailures {
		return true
	}
	// Rate check only once enough calls have been observed.
	return b.totalCalls >= b.maxFailures && b.failureRate() >= b.failureThreshold
}

func (b *Breaker) failureRate() float64 {
	if b.totalCalls == 0 {
		return 0
	}
	return float64(b.failures) / float64(b.totalCalls)
}

func (b *Breaker) transition(state State) {
	b.state = state
	b.lastStateChange = time.Now()
}

func (b *Breaker) clearCounters() {
	b.failures = 0
	b.successes = 0
	b.totalCalls = 0
	b.probes = 0
	b.consecutiveFails = 0
}
