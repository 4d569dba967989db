package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/delta-monitor/internal/adapter"
	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/types"
)

// perpStateReader is the slice of the core venue client the perp fetcher needs.
type perpStateReader interface {
	PerpAccountState(ctx context.Context, user string) (*adapter.PerpAccountState, error)
}

// CorePerpFetcher reads core-side perpetual positions for an address.
type CorePerpFetcher struct {
	core perpStateReader
	log  zerolog.Logger
}

// NewCorePerpFetcher creates a perp fetcher.
func NewCorePerpFetcher(core perpStateReader, log zerolog.Logger) *CorePerpFetcher {
	return &CorePerpFetcher{
		core: core,
		log:  logging.Component(log, "perp_fetcher"),
	}
}

// FetchPerpPositions returns the address's open perp positions together with
// account-level aggregates. AvgLeverage reads 0 when no margin is in use.
func (f *CorePerpFetcher) FetchPerpPositions(ctx context.Context, address string) ([]types.PerpPosition, types.PerpAggregates, error) {
	state, err := f.core.PerpAccountState(ctx, address)
	if err != nil {
		return nil, types.PerpAggregates{}, fmt.Errorf("failed to read perp account state: %w", err)
	}

	positions := make([]types.PerpPosition, 0, len(state.Positions))
	var totalPnl float64
	for _, p := range state.Positions {
		positions = append(positions, types.PerpPosition{
			Asset:         p.Coin,
			Size:          p.Size,
			EntryPrice:    p.EntryPrice,
			MarkPrice:     p.MarkPrice(),
			MarginUsed:    p.MarginUsed,
			UnrealizedPnl: p.UnrealizedPnl,
			CumFunding:    p.CumFunding,
			NotionalValue: p.PositionValue,
		})
		totalPnl += p.UnrealizedPnl
	}

	aggregates := types.PerpAggregates{
		TotalMargin:   state.TotalMarginUsed,
		TotalNotional: state.TotalNotional,
		TotalPnl:      totalPnl,
	}
	if aggregates.TotalMargin > 0 {
		aggregates.AvgLeverage = aggregates.TotalNotional / aggregates.TotalMargin
	}

	f.log.Debug().Str("address", address).Int("positions", len(positions)).Msg("fetched perp positions")
	return positions, aggregates, nil
}
