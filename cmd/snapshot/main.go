// Package main provides a one-shot CLI that builds a portfolio snapshot for
// an address and prints it as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/delta-monitor/internal/adapter"
	"github.com/delta-monitor/internal/config"
	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/pricing"
	"github.com/delta-monitor/internal/service"
	"github.com/delta-monitor/internal/types"
)

func main() {
	var (
		address = flag.String("address", "", "EVM address to snapshot (required)")
		core    = flag.String("core", "", "Core-side address, defaults to the EVM address")
		pretty  = flag.Bool("pretty", false, "Indent the JSON output")
		timeout = flag.Duration("timeout", 60*time.Second, "Overall timeout")
	)
	flag.Parse()

	if *address == "" {
		fmt.Fprintln(os.Stderr, "usage: snapshot -address 0x... [-core 0x...] [-pretty]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The CLI logs to stderr so stdout stays clean JSON.
	log := logging.New("warn", "text")

	provider, err := adapter.NewRPCProvider(cfg.EVM.RPCPrimary, cfg.EVM.RPCSecondary)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid rpc configuration: %v\n", err)
		os.Exit(1)
	}
	evm, err := adapter.NewEVMAdapter(provider, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to evm rpc: %v\n", err)
		os.Exit(1)
	}
	defer evm.Close()

	coreClient := adapter.NewHypercoreClient(&adapter.HypercoreClientConfig{
		BaseURL:        cfg.Hypercore.APIURL,
		RequestTimeout: cfg.Hypercore.RequestTimeout,
		MaxRetries:     cfg.Hypercore.MaxRetries,
		RateLimitRPS:   cfg.Hypercore.RateLimitRPS,
	}, log)
	aggregator := adapter.NewAggregatorClient(cfg.Pricing.AggregatorURL, cfg.Hypercore.RequestTimeout, log)

	resolver := pricing.NewResolver(
		pricing.NewMemoryQuoteCache(cfg.Pricing.CacheTTL),
		[]pricing.Source{
			pricing.NewStablecoinSource(cfg.Pricing.Stablecoins),
			pricing.NewOracleSource(coreClient, log),
			pricing.NewSpotSource(coreClient, log),
			pricing.NewAggregatorSource(aggregator, log),
		},
		cfg.Pricing.DefaultHYPEPrice,
		log,
	)

	var referenceToken string
	for _, token := range cfg.EVM.Tokens {
		if pricing.NormalizeSymbol(token.Symbol) == types.ReferenceAsset {
			referenceToken = token.Address
			break
		}
	}

	portfolioService := service.NewPortfolioService(&service.PortfolioServiceConfig{
		LP:              service.NewAMMLPFetcher(evm, cfg.EVM.AMMVenues, resolver, cfg.EVM.LPFanout, log),
		Perp:            service.NewCorePerpFetcher(coreClient, log),
		Spot:            service.NewCoreSpotFetcher(coreClient, resolver, log),
		Wallet:          service.NewEVMWalletFetcher(evm, cfg.EVM.Tokens, resolver, log),
		Market:          aggregator,
		ReferenceToken:  referenceToken,
		FundingLookback: cfg.Pricing.FundingLookback,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	snapshot, err := portfolioService.BuildPortfolioSnapshot(ctx, *address, *core)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build snapshot: %v\n", err)
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	if *pretty {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(snapshot); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode snapshot: %v\n", err)
		os.Exit(1)
	}

	if snapshot.Degraded() {
		fmt.Fprintln(os.Stderr, "warning: snapshot is degraded, some venues failed")
		os.Exit(3)
	}
}
