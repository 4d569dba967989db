package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(), zerolog.Nop(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(), zerolog.Nop(), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), testConfig(), zerolog.Nop(), func(ctx context.Context, attempt int) error {
		calls++
		return boom
	})
	if err == nil {
		t.Fatal("Do() returned nil, want error after exhaustion")
	}
	if !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want wrapped %v", err, boom)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, testConfig(), zerolog.Nop(), func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestCalculateDelay(t *testing.T) {
	cfg := &Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2.0}

	if d := calculateDelay(cfg, 1); d != 100*time.Millisecond {
		t.Errorf("delay(1) = %v, want 100ms", d)
	}
	if d := calculateDelay(cfg, 2); d != 200*time.Millisecond {
		t.Errorf("delay(2) = %v, want 200ms", d)
	}
	// Capped at MaxDelay
	if d := calculateDelay(cfg, 5); d != 300*time.Millisecond {
		t.Errorf("delay(5) = %v, want 300ms cap", d)
	}
}
