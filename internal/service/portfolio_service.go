package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/delta-monitor/internal/adapter"
	apperrors "github.com/delta-monitor/internal/errors"
	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/types"
)

// marketLookup is the slice of the aggregator client the fee yield estimate
// needs.
type marketLookup interface {
	TokenMarket(ctx context.Context, tokenAddress string) (*adapter.PairMarket, error)
}

// PortfolioService assembles one portfolio snapshot per request. The four
// venue fetchers run concurrently; a failed venue degrades the snapshot
// instead of failing it, and only the loss of every venue is an error.
type PortfolioService struct {
	lp     LPFetcher
	perp   PerpFetcher
	spot   SpotFetcher
	wallet WalletFetcher

	market          marketLookup // optional
	referenceToken  string       // wrapped reference asset contract, for the fee yield lookup
	fundingLookback int
	log             zerolog.Logger
}

// PortfolioServiceConfig wires the portfolio service's collaborators.
type PortfolioServiceConfig struct {
	LP     LPFetcher
	Perp   PerpFetcher
	Spot   SpotFetcher
	Wallet WalletFetcher

	// Market is optional; without it the fee APR estimate reads 0.
	Market          marketLookup
	ReferenceToken  string
	FundingLookback int
}

// NewPortfolioService creates a portfolio service.
func NewPortfolioService(cfg *PortfolioServiceConfig, log zerolog.Logger) *PortfolioService {
	lookback := cfg.FundingLookback
	if lookback <= 0 {
		lookback = 30
	}
	return &PortfolioService{
		lp:              cfg.LP,
		perp:            cfg.Perp,
		spot:            cfg.Spot,
		wallet:          cfg.Wallet,
		market:          cfg.Market,
		referenceToken:  cfg.ReferenceToken,
		fundingLookback: lookback,
		log:             logging.Component(log, "portfolio_service"),
	}
}

// venueResult carries one fetcher's outcome back to the assembly step.
type venueResult struct {
	venue      types.Venue
	durationMs int64
	err        error
}

// BuildPortfolioSnapshot fetches all four venues for the address pair and
// assembles the snapshot. coreAddress defaults to evmAddress when empty.
func (s *PortfolioService) BuildPortfolioSnapshot(ctx context.Context, evmAddress, coreAddress string) (*types.PortfolioSnapshot, error) {
	if !adapter.ValidAddress(evmAddress) {
		return nil, apperrors.NewInvalidAddressError(evmAddress)
	}
	if coreAddress == "" {
		coreAddress = evmAddress
	}
	if !adapter.ValidAddress(coreAddress) {
		return nil, apperrors.NewInvalidAddressError(coreAddress)
	}

	snapshot := &types.PortfolioSnapshot{
		EVMAddress:  evmAddress,
		CoreAddress: coreAddress,
		Timestamp:   time.Now().UTC(),
		VenueUSD:    make(map[types.Venue]float64, len(types.AllVenues)),
		VenueDelta:  make(map[types.Venue]float64, len(types.AllVenues)),
		TimingsMs:   make(map[types.Venue]int64, len(types.AllVenues)),
	}

	var wg sync.WaitGroup
	results := make(chan venueResult, len(types.AllVenues))

	run := func(venue types.Venue, fetch func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := fetch()
			results <- venueResult{
				venue:      venue,
				durationMs: time.Since(start).Milliseconds(),
				err:        err,
			}
		}()
	}

	run(types.VenueLP, func() error {
		positions, err := s.lp.FetchLPPositions(ctx, evmAddress)
		if err != nil {
			return err
		}
		snapshot.LP = positions
		return nil
	})
	run(types.VenuePerp, func() error {
		positions, aggregates, err := s.perp.FetchPerpPositions(ctx, coreAddress)
		if err != nil {
			return err
		}
		snapshot.Perp = positions
		snapshot.Perps = aggregates
		return nil
	})
	run(types.VenueSpot, func() error {
		balances, err := s.spot.FetchSpotBalances(ctx, coreAddress)
		if err != nil {
			return err
		}
		snapshot.Spot = balances
		return nil
	})
	run(types.VenueWallet, func() error {
		balances, err := s.wallet.FetchWalletBalances(ctx, evmAddress)
		if err != nil {
			return err
		}
		snapshot.Wallet = balances
		return nil
	})

	wg.Wait()
	close(results)

	for result := range results {
		snapshot.TimingsMs[result.venue] = result.durationMs
		if result.err != nil {
			if snapshot.VenueErrors == nil {
				snapshot.VenueErrors = make(map[types.Venue]string)
			}
			snapshot.VenueErrors[result.venue] = result.err.Error()
			s.log.Error().Err(result.err).
				Str("venue", string(result.venue)).
				Str("category", string(apperrors.CategoryPartialVenueFailure)).
				Msg("venue fetch failed")
		}
	}

	if len(snapshot.VenueErrors) == len(types.AllVenues) {
		venueErrors := make(map[string]string, len(snapshot.VenueErrors))
		for venue, msg := range snapshot.VenueErrors {
			venueErrors[string(venue)] = msg
		}
		return nil, apperrors.NewTotalFailureError(evmAddress, venueErrors)
	}

	s.assemble(ctx, snapshot)

	s.log.Info().
		Str("evmAddress", evmAddress).
		Str("coreAddress", coreAddress).
		Float64("totalUsd", snapshot.TotalUSD).
		Float64("netDeltaHype", snapshot.NetDeltaHYPE).
		Bool("degraded", snapshot.Degraded()).
		Msg("built portfolio snapshot")

	return snapshot, nil
}

// assemble fills the derived sections of the snapshot: per-venue USD value
// and delta, totals, and the yield estimates.
func (s *PortfolioService) assemble(ctx context.Context, snapshot *types.PortfolioSnapshot) {
	var lpUSD float64
	for _, p := range snapshot.LP {
		lpUSD += p.TotalUSD
	}
	var spotUSD float64
	for _, b := range snapshot.Spot {
		spotUSD += b.USDValue
	}
	var walletUSD float64
	for _, b := range snapshot.Wallet {
		walletUSD += b.USDValue
	}
	// Perp venue value is the gross notional held on the book.
	perpUSD := snapshot.Perps.TotalNotional

	snapshot.VenueUSD[types.VenueLP] = lpUSD
	snapshot.VenueUSD[types.VenuePerp] = perpUSD
	snapshot.VenueUSD[types.VenueSpot] = spotUSD
	snapshot.VenueUSD[types.VenueWallet] = walletUSD
	snapshot.TotalUSD = lpUSD + perpUSD + spotUSD + walletUSD

	snapshot.VenueDelta[types.VenueLP] = LPDelta(snapshot.LP)
	snapshot.VenueDelta[types.VenuePerp] = PerpDelta(snapshot.Perp)
	snapshot.VenueDelta[types.VenueSpot] = SpotDelta(snapshot.Spot)
	snapshot.VenueDelta[types.VenueWallet] = WalletDelta(snapshot.Wallet)
	for _, delta := range snapshot.VenueDelta {
		snapshot.NetDeltaHYPE += delta
	}

	snapshot.APR.FundingAPR = FundingAPR(snapshot.Perp, s.fundingLookback)
	snapshot.APR.FeeAPR = s.feeAPR(ctx, snapshot.LP)
	snapshot.APR.NetAPR = snapshot.APR.FundingAPR + snapshot.APR.FeeAPR
}

// feeAPR runs the aggregator lookup behind the fee yield estimate. Any miss
// degrades to 0.
func (s *PortfolioService) feeAPR(ctx context.Context, positions []types.LPPosition) float64 {
	if s.market == nil || s.referenceToken == "" || len(positions) == 0 {
		return 0
	}
	market, err := s.market.TokenMarket(ctx, s.referenceToken)
	if err != nil {
		s.log.Debug().Err(err).Msg("fee yield market lookup missed")
		return 0
	}
	return FeeAPR(positions, market)
}
