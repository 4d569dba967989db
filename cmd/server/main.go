// Package main provides the API server entry point for the portfolio monitor.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/delta-monitor/internal/adapter"
	"github.com/delta-monitor/internal/api"
	"github.com/delta-monitor/internal/config"
	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/pricing"
	"github.com/delta-monitor/internal/service"
	"github.com/delta-monitor/internal/storage"
	"github.com/delta-monitor/internal/types"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info().Str("level", cfg.Logging.Level).Str("format", cfg.Logging.Format).Msg("portfolio monitor starting")

	// Upstream clients.
	provider, err := adapter.NewRPCProvider(cfg.EVM.RPCPrimary, cfg.EVM.RPCSecondary)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid rpc configuration")
	}
	evm, err := adapter.NewEVMAdapter(provider, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to evm rpc")
	}
	defer evm.Close()

	core := adapter.NewHypercoreClient(&adapter.HypercoreClientConfig{
		BaseURL:        cfg.Hypercore.APIURL,
		RequestTimeout: cfg.Hypercore.RequestTimeout,
		MaxRetries:     cfg.Hypercore.MaxRetries,
		RateLimitRPS:   cfg.Hypercore.RateLimitRPS,
	}, log)
	aggregator := adapter.NewAggregatorClient(cfg.Pricing.AggregatorURL, cfg.Hypercore.RequestTimeout, log)

	// Price resolution. Redis backs the quote cache when available so
	// multiple instances share one pricing view; otherwise the cache is
	// in-process.
	var quoteCache pricing.QuoteCache
	if redis, err := storage.NewRedisCache(&cfg.Database.Redis); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-memory quote cache")
		quoteCache = pricing.NewMemoryQuoteCache(cfg.Pricing.CacheTTL)
	} else {
		defer redis.Close()
		quoteCache = pricing.NewRedisQuoteCache(redis.Client(), cfg.Pricing.CacheTTL)
	}

	resolver := pricing.NewResolver(quoteCache, []pricing.Source{
		pricing.NewStablecoinSource(cfg.Pricing.Stablecoins),
		pricing.NewOracleSource(core, log),
		pricing.NewSpotSource(core, log),
		pricing.NewAggregatorSource(aggregator, log),
	}, cfg.Pricing.DefaultHYPEPrice, log)

	// Venue fetchers and the aggregation service.
	portfolioService := service.NewPortfolioService(&service.PortfolioServiceConfig{
		LP:              service.NewAMMLPFetcher(evm, cfg.EVM.AMMVenues, resolver, cfg.EVM.LPFanout, log),
		Perp:            service.NewCorePerpFetcher(core, log),
		Spot:            service.NewCoreSpotFetcher(core, resolver, log),
		Wallet:          service.NewEVMWalletFetcher(evm, cfg.EVM.Tokens, resolver, log),
		Market:          aggregator,
		ReferenceToken:  referenceTokenAddress(cfg),
		FundingLookback: cfg.Pricing.FundingLookback,
	}, log)

	// Snapshot persistence is optional: without Postgres the API still
	// serves live snapshots.
	var snapshotStore api.SnapshotStoreInterface
	if postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres); err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, snapshot persistence disabled")
	} else {
		defer postgres.Close()
		snapshotStore = storage.NewSnapshotRepository(postgres)
	}

	server := api.NewServer(api.DefaultServerConfig(cfg.Server.Host, cfg.Server.Port), portfolioService, snapshotStore, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

// referenceTokenAddress finds the wrapped reference asset in the configured
// token list, used for the fee yield market lookup.
func referenceTokenAddress(cfg *config.Config) string {
	for _, token := range cfg.EVM.Tokens {
		if pricing.NormalizeSymbol(token.Symbol) == types.ReferenceAsset {
			return token.Address
		}
	}
	return ""
}
