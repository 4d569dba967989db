package pricing

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/delta-monitor/internal/adapter"
	"github.com/delta-monitor/internal/types"
)

// Asset identifies a token for pricing. Symbol is the normalized identity;
// Address is the EVM contract address when known, empty for core-native
// assets. Venue scopes resolution: the same symbol on different venues is
// cached and resolved separately.
type Asset struct {
	Symbol  string
	Address string
	Venue   types.Venue
}

// Source is one rung of the price fallback ladder. Resolve returns the USD
// price and true on success; any failure, including upstream errors, reads
// as a miss so the resolver can move down the ladder.
type Source interface {
	Name() string
	Resolve(ctx context.Context, asset Asset) (float64, bool)
}

// markPriceClient is the slice of the core venue client the oracle source needs.
type markPriceClient interface {
	PerpMarkPrice(ctx context.Context, coin string) (float64, error)
}

// midPriceClient is the slice of the core venue client the spot source needs.
type midPriceClient interface {
	SpotMidPrice(ctx context.Context, coin string) (float64, error)
}

// tokenMarketClient is the slice of the aggregator client the aggregator
// source needs.
type tokenMarketClient interface {
	TokenMarket(ctx context.Context, tokenAddress string) (*adapter.PairMarket, error)
}

// StablecoinSource prices known stablecoins at exactly 1.0 without any
// network call. The configured set may mix symbols and token addresses.
type StablecoinSource struct {
	identities map[string]struct{}
}

// NewStablecoinSource creates a source for the given stablecoin identities.
func NewStablecoinSource(identities []string) *StablecoinSource {
	set := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		set[strings.ToLower(id)] = struct{}{}
	}
	return &StablecoinSource{identities: set}
}

func (s *StablecoinSource) Name() string { return "stablecoin" }

func (s *StablecoinSource) Resolve(_ context.Context, asset Asset) (float64, bool) {
	if _, ok := s.identities[strings.ToLower(asset.Symbol)]; ok {
		return 1.0, true
	}
	if asset.Address != "" {
		if _, ok := s.identities[strings.ToLower(asset.Address)]; ok {
			return 1.0, true
		}
	}
	return 0, false
}

// OracleSource resolves prices from the core venue's perp oracle marks.
type OracleSource struct {
	client markPriceClient
	log    zerolog.Logger
}

// NewOracleSource creates a perp mark price source.
func NewOracleSource(client markPriceClient, log zerolog.Logger) *OracleSource {
	return &OracleSource{client: client, log: log.With().Str("priceSource", "oracle").Logger()}
}

func (s *OracleSource) Name() string { return "oracle" }

func (s *OracleSource) Resolve(ctx context.Context, asset Asset) (float64, bool) {
	price, err := s.client.PerpMarkPrice(ctx, asset.Symbol)
	if err != nil {
		s.log.Debug().Err(err).Str("symbol", asset.Symbol).Msg("oracle lookup missed")
		return 0, false
	}
	return price, price > 0
}

// SpotSource resolves prices from the core venue's spot order book mids.
type SpotSource struct {
	client midPriceClient
	log    zerolog.Logger
}

// NewSpotSource creates a spot mid price source.
func NewSpotSource(client midPriceClient, log zerolog.Logger) *SpotSource {
	return &SpotSource{client: client, log: log.With().Str("priceSource", "spot").Logger()}
}

func (s *SpotSource) Name() string { return "spot" }

func (s *SpotSource) Resolve(ctx context.Context, asset Asset) (float64, bool) {
	price, err := s.client.SpotMidPrice(ctx, asset.Symbol)
	if err != nil {
		s.log.Debug().Err(err).Str("symbol", asset.Symbol).Msg("spot lookup missed")
		return 0, false
	}
	return price, price > 0
}

// AggregatorSource resolves prices from the external market-data aggregator.
// It needs a contract address, so core-native assets always miss here.
type AggregatorSource struct {
	client tokenMarketClient
	log    zerolog.Logger
}

// NewAggregatorSource creates an aggregator-backed source.
func NewAggregatorSource(client tokenMarketClient, log zerolog.Logger) *AggregatorSource {
	return &AggregatorSource{client: client, log: log.With().Str("priceSource", "aggregator").Logger()}
}

func (s *AggregatorSource) Name() string { return "aggregator" }

func (s *AggregatorSource) Resolve(ctx context.Context, asset Asset) (float64, bool) {
	if asset.Address == "" {
		return 0, false
	}
	market, err := s.client.TokenMarket(ctx, asset.Address)
	if err != nil {
		s.log.Debug().Err(err).Str("symbol", asset.Symbol).Msg("aggregator lookup missed")
		return 0, false
	}
	return market.PriceUSD, market.PriceUSD > 0
}
