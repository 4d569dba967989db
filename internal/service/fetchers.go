// Package service implements the aggregation engine: per-venue position
// fetchers, delta and yield math, and the portfolio service that assembles
// one snapshot per request.
package service

import (
	"context"

	"github.com/delta-monitor/internal/pricing"
	"github.com/delta-monitor/internal/types"
)

// priceResolver is the slice of the pricing resolver the fetchers need.
type priceResolver interface {
	Price(ctx context.Context, asset pricing.Asset) *types.PriceQuote
}

// A fetcher either returns its venue's complete position list or an error;
// the portfolio service turns errors into a degraded snapshot rather than
// failing the cycle.

type LPFetcher interface {
	FetchLPPositions(ctx context.Context, address string) ([]types.LPPosition, error)
}

type PerpFetcher interface {
	FetchPerpPositions(ctx context.Context, address string) ([]types.PerpPosition, types.PerpAggregates, error)
}

type SpotFetcher interface {
	FetchSpotBalances(ctx context.Context, address string) ([]types.SpotBalance, error)
}

type WalletFetcher interface {
	FetchWalletBalances(ctx context.Context, address string) ([]types.WalletBalance, error)
}
