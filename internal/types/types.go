// Package types provides common type definitions for the portfolio monitor.
package types

import (
	"fmt"
	"math"
	"math/big"
	"time"
)

// ReferenceAsset is the asset all delta exposure is measured in.
const ReferenceAsset = "HYPE"

// DefaultDecimals is assumed for tokens whose decimals could not be read on-chain.
const DefaultDecimals = 18

// Venue identifies which side of the account a position lives on.
type Venue string

const (
	// VenueLP represents concentrated-liquidity AMM positions on the EVM side.
	VenueLP Venue = "lp"
	// VenuePerp represents perpetual futures positions on the core side.
	VenuePerp Venue = "perp"
	// VenueSpot represents spot balances on the core side.
	VenueSpot Venue = "spot"
	// VenueWallet represents raw ERC-20 and native holdings on the EVM side.
	VenueWallet Venue = "wallet"
)

// AllVenues lists every venue in a stable order.
var AllVenues = []Venue{VenueLP, VenuePerp, VenueSpot, VenueWallet}

// TokenLeg is one side of an LP position.
type TokenLeg struct {
	Address   string  `json:"address"`
	Symbol    string  `json:"symbol"`
	RawAmount string  `json:"rawAmount"`
	Decimals  int     `json:"decimals"`
	Amount    float64 `json:"amount"`
	USDValue  float64 `json:"usdValue"`
}

// LPPosition is a concentrated-liquidity position snapshot.
type LPPosition struct {
	VenueName  string   `json:"venue"`
	Pool       string   `json:"pool"`
	PositionID uint64   `json:"positionId"`
	Token0     TokenLeg `json:"token0"`
	Token1     TokenLeg `json:"token1"`
	FeeBps     uint32   `json:"feeBps"`
	TickLower  int32    `json:"tickLower"`
	TickUpper  int32    `json:"tickUpper"`
	Liquidity  string   `json:"liquidity"`
	InRange    bool     `json:"inRange"`
	TotalUSD   float64  `json:"totalUsd"`
}

// FeeTierPct formats the fee tier as a percentage string, e.g. 3000 -> "0.30%".
// The raw basis point value on the position stays the source of truth.
func (p *LPPosition) FeeTierPct() string {
	return fmt.Sprintf("%.2f%%", float64(p.FeeBps)/10000*100)
}

// PerpPosition is an open perpetual futures position. Size carries the sign
// (negative = short); NotionalValue is always non-negative.
type PerpPosition struct {
	Asset         string  `json:"asset"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entryPrice"`
	MarkPrice     float64 `json:"markPrice"`
	MarginUsed    float64 `json:"marginUsed"`
	UnrealizedPnl float64 `json:"unrealizedPnl"`
	CumFunding    float64 `json:"cumFunding"`
	NotionalValue float64 `json:"notionalValue"`
}

// SpotBalance is a core-side spot holding.
type SpotBalance struct {
	Asset    string  `json:"asset"`
	Raw      string  `json:"raw"`
	Balance  float64 `json:"balance"`
	USDValue float64 `json:"usdValue"`
}

// WalletBalance is a raw EVM token holding. RawBalance keeps the wei-scale
// integer as a string so nothing is lost to float truncation.
type WalletBalance struct {
	Token      string  `json:"token"`
	Symbol     string  `json:"symbol"`
	Decimals   int     `json:"decimals"`
	RawBalance string  `json:"rawBalance"`
	Balance    float64 `json:"balance"`
	USDValue   float64 `json:"usdValue"`
}

// PriceQuote is a resolved USD price, scoped to the venue it was requested
// for. Quotes are immutable: an expired quote is discarded and replaced,
// never patched in place.
type PriceQuote struct {
	Token     string    `json:"token"`
	Venue     string    `json:"venue"`
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Expired reports whether the quote is older than the given TTL.
func (q *PriceQuote) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(q.Timestamp) >= ttl
}

// PerpAggregates summarizes the perp book.
type PerpAggregates struct {
	TotalMargin   float64 `json:"totalMargin"`
	TotalNotional float64 `json:"totalNotional"`
	TotalPnl      float64 `json:"totalPnl"`
	AvgLeverage   float64 `json:"avgLeverage"`
}

// APRBreakdown carries the yield composition of the portfolio. FundingAPR is a
// plain sum of per-position funding APRs, a rough total-yield estimate rather
// than a value-weighted rate.
type APRBreakdown struct {
	FeeAPR     float64 `json:"feeApr"`
	FundingAPR float64 `json:"fundingApr"`
	NetAPR     float64 `json:"netApr"`
}

// PortfolioSnapshot is the single output artifact of one aggregation cycle.
// It is immutable once built; a new cycle produces a new snapshot.
type PortfolioSnapshot struct {
	EVMAddress  string    `json:"evmAddress"`
	CoreAddress string    `json:"coreAddress"`
	Timestamp   time.Time `json:"timestamp"`

	LP     []LPPosition    `json:"lp"`
	Perp   []PerpPosition  `json:"perp"`
	Spot   []SpotBalance   `json:"spot"`
	Wallet []WalletBalance `json:"wallet"`

	VenueUSD   map[Venue]float64 `json:"venueUsd"`
	VenueDelta map[Venue]float64 `json:"venueDelta"`

	Perps        PerpAggregates `json:"perps"`
	APR          APRBreakdown   `json:"apr"`
	TotalUSD     float64        `json:"totalUsd"`
	NetDeltaHYPE float64        `json:"netDeltaHype"`

	// TimingsMs records per-venue fetch duration; VenueErrors records venues
	// that failed entirely. A snapshot with entries in VenueErrors is degraded
	// but still usable.
	TimingsMs   map[Venue]int64  `json:"timingsMs"`
	VenueErrors map[Venue]string `json:"venueErrors,omitempty"`
}

// Degraded reports whether any venue failed during the cycle.
func (s *PortfolioSnapshot) Degraded() bool {
	return len(s.VenueErrors) > 0
}

// HumanAmount converts a raw integer balance string to human units using the
// token's decimals. Unknown decimals should be passed as DefaultDecimals.
// Invalid input converts to 0.
func HumanAmount(raw string, decimals int) float64 {
	if raw == "" || raw == "0" {
		return 0
	}
	i, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return 0
	}
	f := new(big.Float).SetInt(i)
	scale := new(big.Float).SetFloat64(math.Pow10(decimals))
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}

// ServiceError represents a structured error returned by service operations.
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
