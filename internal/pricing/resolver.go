package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/delta-monitor/internal/errors"
	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/types"
)

// NormalizeSymbol maps a raw token symbol onto its canonical pricing
// identity. Wrapped and bridged representations are priced as the asset they
// track.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch s {
	case "WHYPE":
		return "HYPE"
	case "UBTC":
		return "BTC"
	case "UETH":
		return "ETH"
	case "USD₮0", "USDT0":
		return "USDT"
	default:
		return s
	}
}

// Resolver answers "what is this asset worth in USD" by walking an ordered
// list of sources and caching the first answer. It never returns an error:
// when every source misses, the reference asset falls back to a configured
// default and anything else prices at zero.
type Resolver struct {
	cache            QuoteCache
	sources          []Source
	defaultHYPEPrice float64
	log              zerolog.Logger
}

// NewResolver creates a resolver over the given source chain. Sources are
// consulted in slice order.
func NewResolver(cache QuoteCache, sources []Source, defaultHYPEPrice float64, log zerolog.Logger) *Resolver {
	return &Resolver{
		cache:            cache,
		sources:          sources,
		defaultHYPEPrice: defaultHYPEPrice,
		log:              logging.Component(log, "price_resolver"),
	}
}

// Price resolves the asset's USD price, consulting the cache first.
// Resolution is venue-scoped: the asset's venue tag keys the cache, so the
// same symbol on two venues is priced independently.
func (r *Resolver) Price(ctx context.Context, asset Asset) *types.PriceQuote {
	asset.Symbol = NormalizeSymbol(asset.Symbol)
	asset.Address = strings.ToLower(asset.Address)

	if quote, ok := r.cache.Get(ctx, asset.Symbol, asset.Venue); ok {
		return quote
	}

	for _, source := range r.sources {
		price, ok := source.Resolve(ctx, asset)
		if !ok {
			continue
		}
		quote := &types.PriceQuote{
			Token:     asset.Symbol,
			Venue:     string(asset.Venue),
			Price:     price,
			Source:    source.Name(),
			Timestamp: time.Now(),
		}
		r.cache.Set(ctx, quote)
		return quote
	}

	return r.fallbackQuote(asset)
}

// PriceUSD is a convenience wrapper returning only the price.
func (r *Resolver) PriceUSD(ctx context.Context, asset Asset) float64 {
	return r.Price(ctx, asset).Price
}

// fallbackQuote prices the reference asset at its configured default and
// everything else at zero. Fallback quotes are not cached so a recovering
// source takes over on the next call.
func (r *Resolver) fallbackQuote(asset Asset) *types.PriceQuote {
	price := 0.0
	source := "unresolved"
	category := apperrors.CategoryUnknownAsset
	if asset.Symbol == types.ReferenceAsset {
		price = r.defaultHYPEPrice
		source = "default"
		category = apperrors.CategorySourceUnavailable
	}

	r.log.Warn().
		Str("symbol", asset.Symbol).
		Str("category", string(category)).
		Float64("price", price).
		Msg("all price sources missed, using fallback")

	return &types.PriceQuote{
		Token:     asset.Symbol,
		Venue:     string(asset.Venue),
		Price:     price,
		Source:    source,
		Timestamp: time.Now(),
	}
}
