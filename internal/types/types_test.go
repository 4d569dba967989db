package types

import (
	"math"
	"testing"
	"time"
)

func TestHumanAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		decimals int
		want     float64
	}{
		{"one ether", "1000000000000000000", 18, 1.0},
		{"usdc six decimals", "2500000", 6, 2.5},
		{"zero", "0", 18, 0},
		{"empty string", "", 18, 0},
		{"garbage", "not-a-number", 18, 0},
		{"large balance", "123456789000000000000", 18, 123.456789},
		{"zero decimals", "42", 0, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HumanAmount(tt.raw, tt.decimals)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("HumanAmount(%q, %d) = %v, want %v", tt.raw, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestPriceQuoteExpired(t *testing.T) {
	now := time.Now()
	q := &PriceQuote{Token: "HYPE", Price: 40, Timestamp: now}

	if q.Expired(10*time.Second, now.Add(5*time.Second)) {
		t.Error("quote expired before TTL elapsed")
	}
	if !q.Expired(10*time.Second, now.Add(10*time.Second)) {
		t.Error("quote not expired at TTL boundary")
	}
}

func TestFeeTierPct(t *testing.T) {
	tests := []struct {
		feeBps uint32
		want   string
	}{
		{3000, "0.30%"},
		{500, "0.05%"},
		{10000, "1.00%"},
	}

	for _, tt := range tests {
		p := &LPPosition{FeeBps: tt.feeBps}
		if got := p.FeeTierPct(); got != tt.want {
			t.Errorf("FeeTierPct() with %d bps = %q, want %q", tt.feeBps, got, tt.want)
		}
	}
}

func TestSnapshotDegraded(t *testing.T) {
	s := &PortfolioSnapshot{}
	if s.Degraded() {
		t.Error("snapshot with no venue errors reported as degraded")
	}

	s.VenueErrors = map[Venue]string{VenuePerp: "connection refused"}
	if !s.Degraded() {
		t.Error("snapshot with a failed venue not reported as degraded")
	}
}
