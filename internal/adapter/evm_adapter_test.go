package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "0x1111111111111111111111111111111111111111"

type jsonrpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// newJSONRPCServer serves single and batched JSON-RPC requests through one
// handler. The counter tracks HTTP round trips, not individual calls.
func newJSONRPCServer(t *testing.T, handle func(req jsonrpcRequest) (interface{}, *jsonrpcError)) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var roundTrips atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roundTrips.Add(1)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		body = bytes.TrimSpace(body)

		w.Header().Set("Content-Type", "application/json")
		if len(body) > 0 && body[0] == '[' {
			var reqs []jsonrpcRequest
			require.NoError(t, json.Unmarshal(body, &reqs))
			resps := make([]jsonrpcResponse, len(reqs))
			for i, req := range reqs {
				result, rpcErr := handle(req)
				resps[i] = jsonrpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr}
			}
			require.NoError(t, json.NewEncoder(w).Encode(resps))
			return
		}

		var req jsonrpcRequest
		require.NoError(t, json.Unmarshal(body, &req))
		result, rpcErr := handle(req)
		require.NoError(t, json.NewEncoder(w).Encode(jsonrpcResponse{
			JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr,
		}))
	}))
	t.Cleanup(srv.Close)
	return srv, &roundTrips
}

func newTestEVMAdapter(t *testing.T, primaryURL, secondaryURL string) *EVMAdapter {
	t.Helper()
	provider, err := NewRPCProvider(primaryURL, secondaryURL)
	require.NoError(t, err)

	a, err := NewEVMAdapter(provider, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestEVMAdapterTokenBalancesBatch(t *testing.T) {
	good := "0x5555555555555555555555555555555555555555"
	reverting := "0x6666666666666666666666666666666666666666"

	srv, roundTrips := newJSONRPCServer(t, func(req jsonrpcRequest) (interface{}, *jsonrpcError) {
		require.Equal(t, "eth_call", req.Method)
		require.NotEmpty(t, req.Params)

		var call struct {
			To   string `json:"to"`
			Data string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(req.Params[0], &call))
		assert.True(t, strings.HasPrefix(call.Data, "0x70a08231"), "expected a balanceOf call")

		if strings.EqualFold(call.To, reverting) {
			return nil, &jsonrpcError{Code: 3, Message: "execution reverted"}
		}
		return "0x1dcd6500", nil // 500_000_000
	})

	a := newTestEVMAdapter(t, srv.URL, "")
	balances, errs, err := a.TokenBalances(context.Background(), []string{good, reverting}, testOwner)
	require.NoError(t, err, "one reverting token must not fail the batch")
	require.Len(t, balances, 2)
	require.Len(t, errs, 2)

	require.NoError(t, errs[0])
	assert.Equal(t, big.NewInt(500_000_000), balances[0])

	require.Error(t, errs[1])
	assert.Contains(t, errs[1].Error(), "execution reverted")
	assert.Nil(t, balances[1])

	assert.Equal(t, int64(1), roundTrips.Load(), "all token reads should share one round trip")
}

func TestEVMAdapterTokenBalancesRejectsBadAddresses(t *testing.T) {
	srv, _ := newJSONRPCServer(t, func(_ jsonrpcRequest) (interface{}, *jsonrpcError) {
		return "0x0", nil
	})
	a := newTestEVMAdapter(t, srv.URL, "")

	_, _, err := a.TokenBalances(context.Background(), []string{"junk"}, testOwner)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, _, err = a.TokenBalances(context.Background(), nil, "junk")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestEVMAdapterFailoverRetiresOldConnection(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	t.Cleanup(primary.Close)

	secondary, _ := newJSONRPCServer(t, func(req jsonrpcRequest) (interface{}, *jsonrpcError) {
		require.Equal(t, "eth_getBalance", req.Method)
		return "0x2540be400", nil // 10_000_000_000 wei
	})

	a := newTestEVMAdapter(t, primary.URL, secondary.URL)

	balance, err := a.NativeBalance(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10_000_000_000), balance)
	assert.Equal(t, secondary.URL, a.provider.CurrentURL())

	a.mu.Lock()
	require.Len(t, a.retired, 1)
	old := a.retired[0]
	a.mu.Unlock()

	// The replaced connection must stay open so calls that were in flight
	// when the swap happened can finish against it.
	var result string
	err = old.rpc.CallContext(context.Background(), &result, "eth_blockNumber")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429", "retired connection should still reach its endpoint")
}
