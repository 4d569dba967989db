package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/delta-monitor/internal/config"
	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/pricing"
	"github.com/delta-monitor/internal/types"
)

// evmBalanceReader is the slice of the EVM adapter the wallet fetcher needs.
type evmBalanceReader interface {
	NativeBalance(ctx context.Context, owner string) (*big.Int, error)
	TokenBalances(ctx context.Context, tokens []string, owner string) ([]*big.Int, []error, error)
}

// EVMWalletFetcher reads the native coin balance and a configured set of
// ERC-20 balances for an address.
type EVMWalletFetcher struct {
	evm      evmBalanceReader
	tokens   []config.TokenConfig
	resolver priceResolver
	log      zerolog.Logger
}

// NewEVMWalletFetcher creates a wallet fetcher over the given token list.
func NewEVMWalletFetcher(evm evmBalanceReader, tokens []config.TokenConfig, resolver priceResolver, log zerolog.Logger) *EVMWalletFetcher {
	return &EVMWalletFetcher{
		evm:      evm,
		tokens:   tokens,
		resolver: resolver,
		log:      logging.Component(log, "wallet_fetcher"),
	}
}

// FetchWalletBalances returns the address's non-zero holdings. The native
// coin is reported under the reference asset symbol. All ERC-20 balances go
// out in a single batched request; a token whose individual call fails is
// skipped with a warning, while a failure of the native read or the batch
// itself fails the venue.
func (f *EVMWalletFetcher) FetchWalletBalances(ctx context.Context, address string) ([]types.WalletBalance, error) {
	var balances []types.WalletBalance

	native, err := f.evm.NativeBalance(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read native balance: %w", err)
	}
	if native.Sign() > 0 {
		raw := native.String()
		amount := types.HumanAmount(raw, types.DefaultDecimals)
		quote := f.resolver.Price(ctx, pricing.Asset{Symbol: types.ReferenceAsset, Venue: types.VenueWallet})
		balances = append(balances, types.WalletBalance{
			Token:      "native",
			Symbol:     types.ReferenceAsset,
			Decimals:   types.DefaultDecimals,
			RawBalance: raw,
			Balance:    amount,
			USDValue:   amount * quote.Price,
		})
	}

	addresses := make([]string, len(f.tokens))
	for i, token := range f.tokens {
		addresses[i] = token.Address
	}
	raws, errs, err := f.evm.TokenBalances(ctx, addresses, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read token balances: %w", err)
	}

	for i, token := range f.tokens {
		if errs[i] != nil {
			f.log.Warn().Err(errs[i]).
				Str("token", token.Address).
				Str("symbol", token.Symbol).
				Msg("token balance read failed, skipping")
			continue
		}
		bal := raws[i]
		if bal.Sign() == 0 {
			continue
		}

		decimals := token.Decimals
		if decimals <= 0 {
			decimals = types.DefaultDecimals
		}
		raw := bal.String()
		amount := types.HumanAmount(raw, decimals)
		quote := f.resolver.Price(ctx, pricing.Asset{Symbol: token.Symbol, Address: token.Address, Venue: types.VenueWallet})

		balances = append(balances, types.WalletBalance{
			Token:      token.Address,
			Symbol:     token.Symbol,
			Decimals:   decimals,
			RawBalance: raw,
			Balance:    amount,
			USDValue:   amount * quote.Price,
		})
	}

	f.log.Debug().Str("address", address).Int("holdings", len(balances)).Msg("fetched wallet balances")
	return balances, nil
}
