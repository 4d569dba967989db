package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delta-monitor/internal/config"
	"github.com/delta-monitor/internal/pricing"
	"github.com/delta-monitor/internal/types"
)

// stubResolver prices by normalized symbol from a fixed table.
type stubResolver struct {
	prices map[string]float64
}

func (s *stubResolver) Price(_ context.Context, asset pricing.Asset) *types.PriceQuote {
	symbol := pricing.NormalizeSymbol(asset.Symbol)
	return &types.PriceQuote{
		Token:     symbol,
		Price:     s.prices[symbol],
		Source:    "test",
		Timestamp: time.Now(),
	}
}

type stubBalanceReader struct {
	native    *big.Int
	tokens    map[string]*big.Int // keyed by token contract address
	tokenErrs map[string]error    // per-token call failures within the batch
	err       error

	batchCalls int
}

func (s *stubBalanceReader) NativeBalance(_ context.Context, _ string) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.native, nil
}

func (s *stubBalanceReader) TokenBalances(_ context.Context, tokens []string, _ string) ([]*big.Int, []error, error) {
	s.batchCalls++
	if s.err != nil {
		return nil, nil, s.err
	}
	balances := make([]*big.Int, len(tokens))
	errs := make([]error, len(tokens))
	for i, token := range tokens {
		if err, ok := s.tokenErrs[token]; ok {
			errs[i] = err
			continue
		}
		if bal, ok := s.tokens[token]; ok {
			balances[i] = bal
		} else {
			balances[i] = big.NewInt(0)
		}
	}
	return balances, errs, nil
}

func TestFetchWalletBalances(t *testing.T) {
	whype := "0x5555555555555555555555555555555555555555"
	usdt := "0xb8ce59fc3717ada4c02eadf9682a9e934f625ebb"

	reader := &stubBalanceReader{
		// 2 HYPE native, 3 WHYPE, 500 USDT (6 decimals). UBTC balance is zero.
		native: new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18)),
		tokens: map[string]*big.Int{
			whype: new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18)),
			usdt:  big.NewInt(500_000_000),
		},
	}
	resolver := &stubResolver{prices: map[string]float64{"HYPE": 40.0, "USDT": 1.0}}

	fetcher := NewEVMWalletFetcher(reader, config.DefaultTokens, resolver, zerolog.Nop())
	balances, err := fetcher.FetchWalletBalances(context.Background(), testEVMAddress)
	require.NoError(t, err)
	require.Len(t, balances, 3, "zero balances should be skipped")

	native := balances[0]
	assert.Equal(t, "native", native.Token)
	assert.Equal(t, types.ReferenceAsset, native.Symbol)
	assert.InDelta(t, 2.0, native.Balance, 1e-9)
	assert.InDelta(t, 80.0, native.USDValue, 1e-9)

	assert.Equal(t, "WHYPE", balances[1].Symbol)
	assert.InDelta(t, 120.0, balances[1].USDValue, 1e-9, "wrapped reference prices as the underlying")

	assert.Equal(t, "USDT", balances[2].Symbol)
	assert.InDelta(t, 500.0, balances[2].Balance, 1e-9)
	assert.Equal(t, "500000000", balances[2].RawBalance)

	assert.Equal(t, 1, reader.batchCalls, "all token reads should share one batch")
}

func TestFetchWalletBalancesSkipsFailedTokens(t *testing.T) {
	whype := "0x5555555555555555555555555555555555555555"
	usdt := "0xb8ce59fc3717ada4c02eadf9682a9e934f625ebb"

	reader := &stubBalanceReader{
		native: new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18)),
		tokens: map[string]*big.Int{
			usdt: big.NewInt(500_000_000),
		},
		tokenErrs: map[string]error{
			whype: errors.New("execution reverted"),
		},
	}
	resolver := &stubResolver{prices: map[string]float64{"HYPE": 40.0, "USDT": 1.0}}

	fetcher := NewEVMWalletFetcher(reader, config.DefaultTokens, resolver, zerolog.Nop())
	balances, err := fetcher.FetchWalletBalances(context.Background(), testEVMAddress)
	require.NoError(t, err, "one failing token must not fail the venue")
	require.Len(t, balances, 2)

	assert.Equal(t, types.ReferenceAsset, balances[0].Symbol)
	assert.Equal(t, "USDT", balances[1].Symbol)
}

func TestFetchWalletBalancesUpstreamFailure(t *testing.T) {
	reader := &stubBalanceReader{err: errors.New("rpc down")}
	fetcher := NewEVMWalletFetcher(reader, config.DefaultTokens, &stubResolver{}, zerolog.Nop())

	_, err := fetcher.FetchWalletBalances(context.Background(), testEVMAddress)
	assert.Error(t, err)
}
