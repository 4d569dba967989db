package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/delta-monitor/internal/adapter"
	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/pricing"
	"github.com/delta-monitor/internal/types"
)

// spotBalanceReader is the slice of the core venue client the spot fetcher needs.
type spotBalanceReader interface {
	SpotBalances(ctx context.Context, user string) ([]adapter.SpotTokenBalance, error)
}

// CoreSpotFetcher reads core-side spot balances for an address.
type CoreSpotFetcher struct {
	core     spotBalanceReader
	resolver priceResolver
	log      zerolog.Logger
}

// NewCoreSpotFetcher creates a spot fetcher.
func NewCoreSpotFetcher(core spotBalanceReader, resolver priceResolver, log zerolog.Logger) *CoreSpotFetcher {
	return &CoreSpotFetcher{
		core:     core,
		resolver: resolver,
		log:      logging.Component(log, "spot_fetcher"),
	}
}

// FetchSpotBalances returns the address's non-zero spot holdings with USD
// valuations.
func (f *CoreSpotFetcher) FetchSpotBalances(ctx context.Context, address string) ([]types.SpotBalance, error) {
	raw, err := f.core.SpotBalances(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read spot balances: %w", err)
	}

	balances := make([]types.SpotBalance, 0, len(raw))
	for _, b := range raw {
		quote := f.resolver.Price(ctx, pricing.Asset{Symbol: b.Coin, Venue: types.VenueSpot})
		balances = append(balances, types.SpotBalance{
			Asset:    b.Coin,
			Raw:      strconv.FormatFloat(b.Total, 'f', -1, 64),
			Balance:  b.Total,
			USDValue: b.Total * quote.Price,
		})
	}

	f.log.Debug().Str("address", address).Int("holdings", len(balances)).Msg("fetched spot balances")
	return balances, nil
}
