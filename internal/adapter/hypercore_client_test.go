package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delta-monitor/internal/circuitbreaker"
)

func newTestHypercoreClient(t *testing.T, handler http.HandlerFunc) *HypercoreClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewHypercoreClient(&HypercoreClientConfig{
		BaseURL:        srv.URL,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     1,
		RateLimitRPS:   100,
	}, zerolog.Nop())
}

func infoRequestType(t *testing.T, r *http.Request) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	typ, _ := body["type"].(string)
	return typ
}

func TestPerpAccountState(t *testing.T) {
	client := newTestHypercoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/info", r.URL.Path)
		require.Equal(t, "clearinghouseState", infoRequestType(t, r))
		w.Write([]byte(`{
			"assetPositions": [
				{"position": {"coin": "HYPE", "szi": "-8.0", "entryPx": "38.5",
					"positionValue": "320.0", "unrealizedPnl": "12.0", "marginUsed": "64.0",
					"cumFunding": {"allTime": "5.2"}}},
				{"position": {"coin": "BTC", "szi": "0", "entryPx": "0",
					"positionValue": "0", "unrealizedPnl": "0", "marginUsed": "0",
					"cumFunding": {"allTime": "0"}}}
			],
			"marginSummary": {"accountValue": "500.0", "totalMarginUsed": "64.0", "totalNtlPos": "320.0"}
		}`))
	})

	state, err := client.PerpAccountState(context.Background(), "0x1234567890123456789012345678901234567890")
	require.NoError(t, err)

	require.Len(t, state.Positions, 1, "flat positions should be skipped")
	pos := state.Positions[0]
	assert.Equal(t, "HYPE", pos.Coin)
	assert.Equal(t, -8.0, pos.Size)
	assert.Equal(t, 38.5, pos.EntryPrice)
	assert.Equal(t, 12.0, pos.UnrealizedPnl)
	assert.Equal(t, 5.2, pos.CumFunding)
	assert.InDelta(t, 40.0, pos.MarkPrice(), 1e-9)

	assert.Equal(t, 500.0, state.AccountValue)
	assert.Equal(t, 64.0, state.TotalMarginUsed)
	assert.Equal(t, 320.0, state.TotalNotional)
}

func TestSpotBalancesSkipsZero(t *testing.T) {
	client := newTestHypercoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "spotClearinghouseState", infoRequestType(t, r))
		w.Write([]byte(`{"balances": [
			{"coin": "HYPE", "total": "12.5", "hold": "0.0"},
			{"coin": "USDC", "total": "0", "hold": "0"},
			{"coin": "UBTC", "total": "0.01", "hold": "0.0"}
		]}`))
	})

	balances, err := client.SpotBalances(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "HYPE", balances[0].Coin)
	assert.Equal(t, 12.5, balances[0].Total)
	assert.Equal(t, "UBTC", balances[1].Coin)
}

func TestPerpMarkPrice(t *testing.T) {
	client := newTestHypercoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "metaAndAssetCtxs", infoRequestType(t, r))
		w.Write([]byte(`[
			{"universe": [{"name": "BTC"}, {"name": "HYPE"}]},
			[
				{"markPx": "65000.0", "oraclePx": "64990.0"},
				{"markPx": "40.0", "oraclePx": "39.9"}
			]
		]`))
	})

	px, err := client.PerpMarkPrice(context.Background(), "HYPE")
	require.NoError(t, err)
	assert.Equal(t, 40.0, px)

	_, err = client.PerpMarkPrice(context.Background(), "DOGE")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestPerpMarkPriceOracleFallback(t *testing.T) {
	client := newTestHypercoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"universe": [{"name": "HYPE"}]},
			[{"markPx": "", "oraclePx": "39.5"}]
		]`))
	})

	px, err := client.PerpMarkPrice(context.Background(), "HYPE")
	require.NoError(t, err)
	assert.Equal(t, 39.5, px)
}

func TestSpotMidPrice(t *testing.T) {
	client := newTestHypercoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "spotMetaAndAssetCtxs", infoRequestType(t, r))
		w.Write([]byte(`[
			{
				"tokens": [{"name": "USDC", "index": 0}, {"name": "HYPE", "index": 1}],
				"universe": [{"name": "@1", "tokens": [1, 0]}]
			},
			[{"coin": "@1", "midPx": "40.1", "markPx": "40.0"}]
		]`))
	})

	px, err := client.SpotMidPrice(context.Background(), "HYPE")
	require.NoError(t, err)
	assert.Equal(t, 40.1, px)

	_, err = client.SpotMidPrice(context.Background(), "DOGE")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestHypercoreClientServerError(t *testing.T) {
	client := newTestHypercoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.PerpAccountState(context.Background(), "0xabc")
	require.Error(t, err)

	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "hypercore", adapterErr.Source)
}

func TestHypercoreClientCircuitOpens(t *testing.T) {
	var requests atomic.Int64
	client := newTestHypercoreClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	// Enough consecutive failures to trip the breaker.
	for i := 0; i < 5; i++ {
		_, err := client.PerpAccountState(context.Background(), "0xabc")
		require.Error(t, err)
	}
	served := requests.Load()

	_, err := client.PerpAccountState(context.Background(), "0xabc")
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, served, requests.Load(), "open circuit should not reach the server")
}
