package service

import (
	"github.com/delta-monitor/internal/adapter"
	"github.com/delta-monitor/internal/pricing"
	"github.com/delta-monitor/internal/types"
)

// Delta math. All exposure is measured in units of the reference asset;
// a token leg counts only when its normalized identity is the reference
// asset, so wrapped representations count and everything else is ignored.

// isReference reports whether a symbol normalizes to the reference asset.
func isReference(symbol string) bool {
	return pricing.NormalizeSymbol(symbol) == types.ReferenceAsset
}

// LPDelta sums the reference-asset legs across LP positions.
func LPDelta(positions []types.LPPosition) float64 {
	var delta float64
	for _, p := range positions {
		if isReference(p.Token0.Symbol) {
			delta += p.Token0.Amount
		}
		if isReference(p.Token1.Symbol) {
			delta += p.Token1.Amount
		}
	}
	return delta
}

// PerpDelta sums the signed sizes of reference-asset perp positions. Shorts
// contribute negative delta.
func PerpDelta(positions []types.PerpPosition) float64 {
	var delta float64
	for _, p := range positions {
		if isReference(p.Asset) {
			delta += p.Size
		}
	}
	return delta
}

// SpotDelta sums reference-asset spot balances.
func SpotDelta(balances []types.SpotBalance) float64 {
	var delta float64
	for _, b := range balances {
		if isReference(b.Asset) {
			delta += b.Balance
		}
	}
	return delta
}

// WalletDelta sums native and wrapped reference-asset wallet holdings.
func WalletDelta(balances []types.WalletBalance) float64 {
	var delta float64
	for _, b := range balances {
		if isReference(b.Symbol) {
			delta += b.Balance
		}
	}
	return delta
}

// FundingAPR estimates the annualized funding yield of the reference-asset
// perp positions as a plain sum of per-position rates, a rough estimate
// rather than a true historical average. Cumulative funding is spread over
// the lookback window and scaled against each position's notional. Other
// assets' funding and positions with zero notional are skipped.
func FundingAPR(positions []types.PerpPosition, lookbackDays int) float64 {
	if lookbackDays <= 0 {
		return 0
	}

	var apr float64
	for _, p := range positions {
		if !isReference(p.Asset) || p.NotionalValue == 0 {
			continue
		}
		daily := p.CumFunding / float64(lookbackDays)
		apr += daily / p.NotionalValue * 365
	}
	return apr
}

// FeeAPR estimates the annualized trading-fee yield of the LP book, weighted
// by each position's share of total LP value. Pool volume and depth come
// from the market-data aggregator; when that lookup failed the estimate is 0.
func FeeAPR(positions []types.LPPosition, market *adapter.PairMarket) float64 {
	if market == nil || market.LiquidityUSD <= 0 || market.Volume24hUSD <= 0 {
		return 0
	}

	var totalUSD float64
	for _, p := range positions {
		totalUSD += p.TotalUSD
	}
	if totalUSD <= 0 {
		return 0
	}

	var apr float64
	for _, p := range positions {
		feeRate := float64(p.FeeBps) / 1e6
		positionAPR := market.Volume24hUSD * feeRate / market.LiquidityUSD * 365
		apr += positionAPR * (p.TotalUSD / totalUSD)
	}
	return apr
}
