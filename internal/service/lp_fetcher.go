package service

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/delta-monitor/internal/adapter"
	"github.com/delta-monitor/internal/clmath"
	"github.com/delta-monitor/internal/config"
	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/pricing"
	"github.com/delta-monitor/internal/types"
)

// evmPositionReader is the slice of the EVM adapter the LP fetcher needs.
type evmPositionReader interface {
	PositionCount(ctx context.Context, manager, owner string) (int64, error)
	PositionTokenID(ctx context.Context, manager, owner string, index int64) (*big.Int, error)
	PositionDetails(ctx context.Context, manager string, tokenID *big.Int) (*adapter.LPPositionData, error)
	PoolAddress(ctx context.Context, factory string, token0, token1 common.Address, fee uint32) (common.Address, error)
	PoolSlot0(ctx context.Context, pool common.Address) (*adapter.PoolState, error)
	TokenSymbol(ctx context.Context, token string) (string, error)
	TokenDecimals(ctx context.Context, token string) (uint8, error)
}

// unknownSymbol marks a token whose symbol read failed; such legs carry
// their amounts but may price at zero.
const unknownSymbol = "UNKNOWN"

// tokenMeta caches per-contract symbol and decimals so a scan does not
// re-read immutable token metadata for every position.
type tokenMeta struct {
	symbol   string
	decimals int
}

// AMMLPFetcher enumerates concentrated-liquidity position NFTs across the
// configured AMM venues and values each one from current pool state.
type AMMLPFetcher struct {
	evm      evmPositionReader
	venues   []config.AMMVenueConfig
	resolver priceResolver
	fanout   int
	log      zerolog.Logger

	mu   sync.Mutex
	meta map[string]tokenMeta
}

// NewAMMLPFetcher creates an LP fetcher. fanout bounds how many positions are
// valued concurrently.
func NewAMMLPFetcher(evm evmPositionReader, venues []config.AMMVenueConfig, resolver priceResolver, fanout int, log zerolog.Logger) *AMMLPFetcher {
	if fanout <= 0 {
		fanout = 8
	}
	return &AMMLPFetcher{
		evm:      evm,
		venues:   venues,
		resolver: resolver,
		fanout:   fanout,
		log:      logging.Component(log, "lp_fetcher"),
		meta:     make(map[string]tokenMeta),
	}
}

// positionRef identifies one NFT to value.
type positionRef struct {
	venue   config.AMMVenueConfig
	tokenID *big.Int
}

// FetchLPPositions returns the address's live LP positions across all
// configured venues, sorted by USD value descending. Burned and empty
// positions are skipped. Individual positions that fail to value are dropped
// with a warning; the venue as a whole fails only when every configured AMM
// venue fails to enumerate.
func (f *AMMLPFetcher) FetchLPPositions(ctx context.Context, address string) ([]types.LPPosition, error) {
	if len(f.venues) == 0 {
		return nil, nil
	}

	var refs []positionRef
	var enumFailures int
	var lastErr error

	for _, venue := range f.venues {
		count, err := f.evm.PositionCount(ctx, venue.PositionManager, address)
		if err != nil {
			f.log.Warn().Err(err).Str("venue", venue.Name).Msg("failed to enumerate positions")
			enumFailures++
			lastErr = err
			continue
		}
		for i := int64(0); i < count; i++ {
			tokenID, err := f.evm.PositionTokenID(ctx, venue.PositionManager, address, i)
			if err != nil {
				f.log.Warn().Err(err).Str("venue", venue.Name).Int64("index", i).Msg("failed to read position token id")
				continue
			}
			refs = append(refs, positionRef{venue: venue, tokenID: tokenID})
		}
	}

	if enumFailures == len(f.venues) {
		return nil, fmt.Errorf("all amm venues failed to enumerate: %w", lastErr)
	}

	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
		results   []types.LPPosition
	)
	sem := make(chan struct{}, f.fanout)

	for _, ref := range refs {
		wg.Add(1)
		go func(ref positionRef) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			position, err := f.valuePosition(ctx, ref)
			if err != nil {
				f.log.Warn().Err(err).
					Str("venue", ref.venue.Name).
					Str("tokenId", ref.tokenID.String()).
					Msg("failed to value position, skipping")
				return
			}
			if position == nil {
				return
			}

			resultsMu.Lock()
			results = append(results, *position)
			resultsMu.Unlock()
		}(ref)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].TotalUSD > results[j].TotalUSD
	})

	f.log.Debug().Str("address", address).Int("positions", len(results)).Msg("fetched lp positions")
	return results, nil
}

// valuePosition reads one NFT's on-chain state and converts it to a valued
// position. Returns (nil, nil) for burned or zero-liquidity positions.
func (f *AMMLPFetcher) valuePosition(ctx context.Context, ref positionRef) (*types.LPPosition, error) {
	details, err := f.evm.PositionDetails(ctx, ref.venue.PositionManager, ref.tokenID)
	if err != nil {
		return nil, err
	}
	if details.Liquidity == nil || details.Liquidity.Sign() == 0 {
		return nil, nil
	}

	pool, err := f.evm.PoolAddress(ctx, ref.venue.Factory, details.Token0, details.Token1, details.Fee)
	if err != nil {
		return nil, err
	}
	state, err := f.evm.PoolSlot0(ctx, pool)
	if err != nil {
		return nil, err
	}

	sqrtPrice := clmath.SqrtPriceX96ToFloat(state.SqrtPriceX96)
	amount0, amount1 := clmath.AmountsForLiquidity(sqrtPrice, details.TickLower, details.TickUpper, details.Liquidity)

	leg0 := f.buildLeg(ctx, details.Token0, amount0)
	leg1 := f.buildLeg(ctx, details.Token1, amount1)

	return &types.LPPosition{
		VenueName:  ref.venue.Name,
		Pool:       pool.Hex(),
		PositionID: ref.tokenID.Uint64(),
		Token0:     leg0,
		Token1:     leg1,
		FeeBps:     details.Fee,
		TickLower:  details.TickLower,
		TickUpper:  details.TickUpper,
		Liquidity:  details.Liquidity.String(),
		InRange:    clmath.InRange(state.Tick, details.TickLower, details.TickUpper),
		TotalUSD:   leg0.USDValue + leg1.USDValue,
	}, nil
}

// buildLeg converts a raw token amount into a priced leg. An asset with no
// resolvable price or metadata values at zero rather than failing the
// position.
func (f *AMMLPFetcher) buildLeg(ctx context.Context, token common.Address, rawAmount float64) types.TokenLeg {
	meta := f.lookupTokenMeta(ctx, token)

	raw, _ := new(big.Float).SetFloat64(rawAmount).Int(nil)
	rawStr := raw.String()
	amount := types.HumanAmount(rawStr, meta.decimals)
	quote := f.resolver.Price(ctx, pricing.Asset{Symbol: meta.symbol, Address: token.Hex(), Venue: types.VenueLP})

	return types.TokenLeg{
		Address:   token.Hex(),
		Symbol:    meta.symbol,
		RawAmount: rawStr,
		Decimals:  meta.decimals,
		Amount:    amount,
		USDValue:  amount * quote.Price,
	}
}

// lookupTokenMeta reads and caches a token's symbol and decimals. Failed
// reads fall back to a placeholder symbol and the default 18 decimals so
// the position is still returned, partially valued; fallbacks are not
// cached, so a recovering node repairs the metadata on the next fetch.
func (f *AMMLPFetcher) lookupTokenMeta(ctx context.Context, token common.Address) tokenMeta {
	key := token.Hex()

	f.mu.Lock()
	cached, ok := f.meta[key]
	f.mu.Unlock()
	if ok {
		return cached
	}

	symbol, symErr := f.evm.TokenSymbol(ctx, key)
	if symErr != nil {
		f.log.Warn().Err(symErr).Str("token", key).Msg("token symbol read failed, using placeholder")
		symbol = unknownSymbol
	}
	decimals := types.DefaultDecimals
	dec, decErr := f.evm.TokenDecimals(ctx, key)
	if decErr != nil {
		f.log.Warn().Err(decErr).Str("token", key).Msg("token decimals read failed, assuming default")
	} else {
		decimals = int(dec)
	}

	meta := tokenMeta{symbol: symbol, decimals: decimals}
	if symErr == nil && decErr == nil {
		f.mu.Lock()
		f.meta[key] = meta
		f.mu.Unlock()
	}
	return meta
}
