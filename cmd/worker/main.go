// Package main provides the snapshot worker entry point. It periodically
// rebuilds and persists portfolio snapshots for the configured watch list.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/delta-monitor/internal/adapter"
	"github.com/delta-monitor/internal/config"
	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/pricing"
	"github.com/delta-monitor/internal/service"
	"github.com/delta-monitor/internal/storage"
	"github.com/delta-monitor/internal/types"
	"github.com/delta-monitor/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if len(cfg.Worker.WatchAddresses) == 0 {
		log.Fatal().Msg("WATCH_ADDRESSES is empty, nothing to snapshot")
	}

	// Unlike the API server, the worker is useless without persistence.
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer postgres.Close()

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

	portfolioService := service.NewPortfolioService(&service.PortfolioServiceConfig{
		LP:              service.NewAMMLPFetcher(evm, cfg.EVM.AMMVenues, resolver, cfg.EVM.LPFanout, log),
		Perp:            service.NewCorePerpFetcher(core, log),
		Spot:            service.NewCoreSpotFetcher(core, resolver, log),
		Wallet:          service.NewEVMWalletFetcher(evm, cfg.EVM.Tokens, resolver, log),
		Market:          aggregator,
		ReferenceToken:  referenceTokenAddress(cfg),
		FundingLookback: cfg.Pricing.FundingLookback,
	}, log)

	w, err := worker.NewSnapshotWorker(&worker.SnapshotWorkerConfig{
		Portfolio:      portfolioService,
		Store:          storage.NewSnapshotRepository(postgres),
		WatchAddresses: cfg.Worker.WatchAddresses,
		PollInterval:   cfg.Worker.PollInterval,
		Retention:      cfg.Worker.SnapshotRetention,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid worker configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start snapshot worker")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := w.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("worker stop failed")
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
