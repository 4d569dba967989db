package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delta-monitor/internal/adapter"
	"github.com/delta-monitor/internal/clmath"
	"github.com/delta-monitor/internal/config"
)

var (
	testManager = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testFactory = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	testPool    = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	testWHYPE   = common.HexToAddress("0x5555555555555555555555555555555555555555")
	testUSDT    = common.HexToAddress("0xb8ce59fc3717ada4c02eadf9682a9e934f625ebb")
	testNoMeta  = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
)

type stubPositionReader struct {
	tokenIDs  []int64
	positions map[int64]*adapter.LPPositionData
	pool      *adapter.PoolState
	enumErr   error
}

func (s *stubPositionReader) PositionCount(_ context.Context, _, _ string) (int64, error) {
	if s.enumErr != nil {
		return 0, s.enumErr
	}
	return int64(len(s.tokenIDs)), nil
}

func (s *stubPositionReader) PositionTokenID(_ context.Context, _, _ string, index int64) (*big.Int, error) {
	return big.NewInt(s.tokenIDs[index]), nil
}

func (s *stubPositionReader) PositionDetails(_ context.Context, _ string, tokenID *big.Int) (*adapter.LPPositionData, error) {
	data, ok := s.positions[tokenID.Int64()]
	if !ok {
		return nil, errors.New("no such position")
	}
	return data, nil
}

func (s *stubPositionReader) PoolAddress(_ context.Context, _ string, _, _ common.Address, _ uint32) (common.Address, error) {
	return testPool, nil
}

func (s *stubPositionReader) PoolSlot0(_ context.Context, _ common.Address) (*adapter.PoolState, error) {
	return s.pool, nil
}

func (s *stubPositionReader) TokenSymbol(_ context.Context, token string) (string, error) {
	switch common.HexToAddress(token) {
	case testWHYPE:
		return "WHYPE", nil
	case testUSDT:
		return "USD₮0", nil
	}
	return "", errors.New("unknown token")
}

func (s *stubPositionReader) TokenDecimals(_ context.Context, token string) (uint8, error) {
	switch common.HexToAddress(token) {
	case testUSDT:
		return 6, nil
	case testNoMeta:
		return 0, errors.New("execution reverted")
	}
	return 18, nil
}

func testVenues() []config.AMMVenueConfig {
	return []config.AMMVenueConfig{
		{Name: "hyperswap", PositionManager: testManager, Factory: testFactory},
	}
}

func TestFetchLPPositions(t *testing.T) {
	liquidityIn := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	liquidityOut := new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)

	reader := &stubPositionReader{
		tokenIDs: []int64{1, 2, 3},
		positions: map[int64]*adapter.LPPositionData{
			// In range, straddling the current tick.
			1: {TokenID: big.NewInt(1), Token0: testWHYPE, Token1: testUSDT, Fee: 3000,
				TickLower: -600, TickUpper: 600, Liquidity: liquidityIn},
			// Burned.
			2: {TokenID: big.NewInt(2), Token0: testWHYPE, Token1: testUSDT, Fee: 3000,
				TickLower: -600, TickUpper: 600, Liquidity: big.NewInt(0)},
			// Entirely above the current price, held in token0.
			3: {TokenID: big.NewInt(3), Token0: testWHYPE, Token1: testUSDT, Fee: 500,
				TickLower: 600, TickUpper: 1200, Liquidity: liquidityOut},
		},
		// sqrtPriceX96 = 2^96, i.e. price 1.0 at tick 0.
		pool: &adapter.PoolState{SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96), Tick: 0},
	}
	resolver := &stubResolver{prices: map[string]float64{"HYPE": 40.0, "USDT": 1.0}}

	fetcher := NewAMMLPFetcher(reader, testVenues(), resolver, 4, zerolog.Nop())
	positions, err := fetcher.FetchLPPositions(context.Background(), testEVMAddress)
	require.NoError(t, err)
	require.Len(t, positions, 2, "burned position should be skipped")

	// Sorted by USD value descending: the larger in-range position first.
	first := positions[0]
	assert.Equal(t, uint64(1), first.PositionID)
	assert.True(t, first.InRange)
	assert.Equal(t, "hyperswap", first.VenueName)
	assert.Equal(t, testPool.Hex(), first.Pool)
	assert.Equal(t, "WHYPE", first.Token0.Symbol)
	assert.Equal(t, "USD₮0", first.Token1.Symbol)

	amount0, amount1 := clmath.AmountsForLiquidity(1.0, -600, 600, liquidityIn)
	assert.InDelta(t, amount0/1e18, first.Token0.Amount, 1e-9)
	assert.InDelta(t, amount1/1e6, first.Token1.Amount, 1e-3)
	wantUSD := amount0/1e18*40.0 + amount1/1e6*1.0
	assert.InDelta(t, wantUSD, first.TotalUSD, wantUSD*1e-6)

	second := positions[1]
	assert.Equal(t, uint64(3), second.PositionID)
	assert.False(t, second.InRange)
	assert.Greater(t, second.Token0.Amount, 0.0, "price below the range leaves the position in token0")
	assert.Equal(t, 0.0, second.Token1.Amount)
	assert.Greater(t, first.TotalUSD, second.TotalUSD)
}

func TestFetchLPPositionsUnreadableTokenMetadata(t *testing.T) {
	liquidity := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	reader := &stubPositionReader{
		tokenIDs: []int64{7},
		positions: map[int64]*adapter.LPPositionData{
			7: {TokenID: big.NewInt(7), Token0: testWHYPE, Token1: testNoMeta, Fee: 3000,
				TickLower: -600, TickUpper: 600, Liquidity: liquidity},
		},
		pool: &adapter.PoolState{SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96), Tick: 0},
	}
	resolver := &stubResolver{prices: map[string]float64{"HYPE": 40.0}}

	fetcher := NewAMMLPFetcher(reader, testVenues(), resolver, 4, zerolog.Nop())
	positions, err := fetcher.FetchLPPositions(context.Background(), testEVMAddress)
	require.NoError(t, err)
	require.Len(t, positions, 1, "unreadable token metadata must not drop the position")

	pos := positions[0]
	assert.Equal(t, unknownSymbol, pos.Token1.Symbol)
	assert.Equal(t, 0.0, pos.Token1.USDValue)
	// The readable leg is still priced normally.
	assert.Equal(t, "WHYPE", pos.Token0.Symbol)
	assert.Greater(t, pos.Token0.USDValue, 0.0)
	assert.Equal(t, pos.Token0.USDValue, pos.TotalUSD)
}

func TestFetchLPPositionsNoVenuesConfigured(t *testing.T) {
	fetcher := NewAMMLPFetcher(&stubPositionReader{}, nil, &stubResolver{}, 4, zerolog.Nop())

	positions, err := fetcher.FetchLPPositions(context.Background(), testEVMAddress)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestFetchLPPositionsAllVenuesFail(t *testing.T) {
	reader := &stubPositionReader{enumErr: errors.New("rpc down")}
	fetcher := NewAMMLPFetcher(reader, testVenues(), &stubResolver{}, 4, zerolog.Nop())

	_, err := fetcher.FetchLPPositions(context.Background(), testEVMAddress)
	assert.Error(t, err)
}
