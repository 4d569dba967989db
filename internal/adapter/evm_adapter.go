package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/delta-monitor/internal/logging"
)

// Minimal ABI fragments for the read-only calls the fetchers need.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

const positionManagerABI = `[
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"name":"tokenOfOwnerByIndex","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"positions","outputs":[
		{"name":"nonce","type":"uint96"},
		{"name":"operator","type":"address"},
		{"name":"token0","type":"address"},
		{"name":"token1","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"tickLower","type":"int24"},
		{"name":"tickUpper","type":"int24"},
		{"name":"liquidity","type":"uint128"},
		{"name":"feeGrowthInside0LastX128","type":"uint256"},
		{"name":"feeGrowthInside1LastX128","type":"uint256"},
		{"name":"tokensOwed0","type":"uint128"},
		{"name":"tokensOwed1","type":"uint128"}
	],"stateMutability":"view","type":"function"}
]`

const poolABI = `[
	{"inputs":[],"name":"slot0","outputs":[
		{"name":"sqrtPriceX96","type":"uint160"},
		{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},
		{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},
		{"name":"feeProtocol","type":"uint8"},
		{"name":"unlocked","type":"bool"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"liquidity","outputs":[{"name":"","type":"uint128"}],"stateMutability":"view","type":"function"}
]`

const factoryABI = `[
	{"inputs":[
		{"name":"tokenA","type":"address"},
		{"name":"tokenB","type":"address"},
		{"name":"fee","type":"uint24"}
	],"name":"getPool","outputs":[{"name":"pool","type":"address"}],"stateMutability":"view","type":"function"}
]`

// rpcConn pairs one raw JSON-RPC client with its ethclient wrapper. Both
// share the transport; closing the rpc client closes both.
type rpcConn struct {
	rpc *rpc.Client
	eth *ethclient.Client
}

func dialConn(url string) (*rpcConn, error) {
	client, err := rpc.Dial(url)
	if err != nil {
		return nil, err
	}
	return &rpcConn{rpc: client, eth: ethclient.NewClient(client)}, nil
}

func (c *rpcConn) close() {
	c.rpc.Close()
}

// EVMAdapter reads balances and LP position state from an EVM chain. It
// holds one client connection and fails over to the provider's secondary
// endpoint on transient RPC errors. Replaced connections are retired, not
// closed, so calls already running against them can finish; Close releases
// them all.
type EVMAdapter struct {
	mu       sync.Mutex
	conn     *rpcConn
	retired  []*rpcConn
	provider *RPCProvider
	log      zerolog.Logger

	erc20      abi.ABI
	posManager abi.ABI
	pool       abi.ABI
	factory    abi.ABI
}

// LPPositionData is the raw on-chain state of one concentrated-liquidity
// position NFT.
type LPPositionData struct {
	TokenID   *big.Int
	Token0    common.Address
	Token1    common.Address
	Fee       uint32 // fee tier in hundredths of a bip
	TickLower int32
	TickUpper int32
	Liquidity *big.Int
}

// PoolState is the observable slot0 state of a pool.
type PoolState struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

// NewEVMAdapter dials the provider's current endpoint and prepares the
// contract ABIs.
func NewEVMAdapter(provider *RPCProvider, log zerolog.Logger) (*EVMAdapter, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	conn, err := dialConn(provider.CurrentURL())
	if err != nil {
		return nil, NewAdapterError("evm", "NewEVMAdapter", err, map[string]interface{}{
			"rpcURL": provider.CurrentURL(),
		})
	}

	a := &EVMAdapter{
		conn:     conn,
		provider: provider,
		log:      logging.Component(log, "evm_adapter"),
	}

	for _, spec := range []struct {
		raw  string
		dest *abi.ABI
	}{
		{erc20ABI, &a.erc20},
		{positionManagerABI, &a.posManager},
		{poolABI, &a.pool},
		{factoryABI, &a.factory},
	} {
		parsed, err := abi.JSON(strings.NewReader(spec.raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ABI: %w", err)
		}
		*spec.dest = parsed
	}

	return a, nil
}

// Close releases the current connection and any retired ones.
func (a *EVMAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		a.conn.close()
	}
	for _, conn := range a.retired {
		conn.close()
	}
	a.retired = nil
}

// NativeBalance returns the native coin balance of the address in wei.
func (a *EVMAdapter) NativeBalance(ctx context.Context, owner string) (*big.Int, error) {
	if !ValidAddress(owner) {
		return nil, ErrInvalidAddress
	}

	var balance *big.Int
	err := a.withFailover(ctx, func(conn *rpcConn) error {
		var err error
		balance, err = conn.eth.BalanceAt(ctx, common.HexToAddress(owner), nil)
		return err
	})
	if err != nil {
		return nil, NewAdapterError("evm", "NativeBalance", err, map[string]interface{}{"owner": owner})
	}
	return balance, nil
}

// TokenBalances reads the ERC-20 balances of owner across all tokens in one
// JSON-RPC batch. The returned slices are index-aligned with tokens: a
// balance is nil exactly when its entry in errs is set, so one reverting
// token does not fail the batch. The error return covers whole-batch
// failures only.
func (a *EVMAdapter) TokenBalances(ctx context.Context, tokens []string, owner string) ([]*big.Int, []error, error) {
	if !ValidAddress(owner) {
		return nil, nil, ErrInvalidAddress
	}
	for _, token := range tokens {
		if !ValidAddress(token) {
			return nil, nil, ErrInvalidAddress
		}
	}
	if len(tokens) == 0 {
		return nil, nil, nil
	}

	data, err := a.erc20.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	results := make([]hexutil.Bytes, len(tokens))
	batch := make([]rpc.BatchElem, len(tokens))
	for i, token := range tokens {
		batch[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				map[string]interface{}{
					"to":   common.HexToAddress(token),
					"data": hexutil.Encode(data),
				},
				"latest",
			},
			Result: &results[i],
		}
	}

	err = a.withFailover(ctx, func(conn *rpcConn) error {
		return conn.rpc.BatchCallContext(ctx, batch)
	})
	if err != nil {
		return nil, nil, NewAdapterError("evm", "TokenBalances", err, map[string]interface{}{"owner": owner})
	}

	balances := make([]*big.Int, len(tokens))
	errs := make([]error, len(tokens))
	for i := range batch {
		if batch[i].Error != nil {
			errs[i] = batch[i].Error
			continue
		}
		balances[i] = new(big.Int).SetBytes(results[i])
	}
	return balances, errs, nil
}

// TokenDecimals returns the ERC-20 decimals of the token contract.
func (a *EVMAdapter) TokenDecimals(ctx context.Context, token string) (uint8, error) {
	if !ValidAddress(token) {
		return 0, ErrInvalidAddress
	}

	result, err := a.call(ctx, a.erc20, common.HexToAddress(token), "decimals")
	if err != nil {
		return 0, NewAdapterError("evm", "TokenDecimals", err, map[string]interface{}{"token": token})
	}

	values, err := a.erc20.Unpack("decimals", result)
	if err != nil || len(values) == 0 {
		return 0, NewAdapterError("evm", "TokenDecimals", fmt.Errorf("failed to decode decimals: %v", err), nil)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, NewAdapterError("evm", "TokenDecimals", fmt.Errorf("unexpected decimals type %T", values[0]), nil)
	}
	return decimals, nil
}

// TokenSymbol returns the ERC-20 symbol of the token contract.
func (a *EVMAdapter) TokenSymbol(ctx context.Context, token string) (string, error) {
	if !ValidAddress(token) {
		return "", ErrInvalidAddress
	}

	result, err := a.call(ctx, a.erc20, common.HexToAddress(token), "symbol")
	if err != nil {
		return "", NewAdapterError("evm", "TokenSymbol", err, map[string]interface{}{"token": token})
	}

	values, err := a.erc20.Unpack("symbol", result)
	if err != nil || len(values) == 0 {
		return "", NewAdapterError("evm", "TokenSymbol", fmt.Errorf("failed to decode symbol: %v", err), nil)
	}
	symbol, ok := values[0].(string)
	if !ok {
		return "", NewAdapterError("evm", "TokenSymbol", fmt.Errorf("unexpected symbol type %T", values[0]), nil)
	}
	return symbol, nil
}

// PositionCount returns how many position NFTs the owner holds on the given
// position manager.
func (a *EVMAdapter) PositionCount(ctx context.Context, manager, owner string) (int64, error) {
	result, err := a.call(ctx, a.posManager, common.HexToAddress(manager), "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return 0, NewAdapterError("evm", "PositionCount", err, map[string]interface{}{
			"manager": manager, "owner": owner,
		})
	}
	if len(result) == 0 {
		return 0, nil
	}
	return new(big.Int).SetBytes(result).Int64(), nil
}

// PositionTokenID returns the token id at the owner's enumeration index.
func (a *EVMAdapter) PositionTokenID(ctx context.Context, manager, owner string, index int64) (*big.Int, error) {
	result, err := a.call(ctx, a.posManager, common.HexToAddress(manager), "tokenOfOwnerByIndex",
		common.HexToAddress(owner), big.NewInt(index))
	if err != nil {
		return nil, NewAdapterError("evm", "PositionTokenID", err, map[string]interface{}{
			"manager": manager, "owner": owner, "index": index,
		})
	}
	return new(big.Int).SetBytes(result), nil
}

// PositionDetails reads the position struct for a token id.
func (a *EVMAdapter) PositionDetails(ctx context.Context, manager string, tokenID *big.Int) (*LPPositionData, error) {
	result, err := a.call(ctx, a.posManager, common.HexToAddress(manager), "positions", tokenID)
	if err != nil {
		return nil, NewAdapterError("evm", "PositionDetails", err, map[string]interface{}{
			"manager": manager, "tokenId": tokenID.String(),
		})
	}

	values, err := a.posManager.Unpack("positions", result)
	if err != nil {
		return nil, NewAdapterError("evm", "PositionDetails", err, nil)
	}
	if len(values) < 8 {
		return nil, NewAdapterError("evm", "PositionDetails",
			fmt.Errorf("unexpected positions tuple size %d", len(values)), nil)
	}

	data := &LPPositionData{TokenID: new(big.Int).Set(tokenID)}
	var ok bool
	if data.Token0, ok = values[2].(common.Address); !ok {
		return nil, NewAdapterError("evm", "PositionDetails", fmt.Errorf("unexpected token0 type %T", values[2]), nil)
	}
	if data.Token1, ok = values[3].(common.Address); !ok {
		return nil, NewAdapterError("evm", "PositionDetails", fmt.Errorf("unexpected token1 type %T", values[3]), nil)
	}
	if fee, ok := values[4].(*big.Int); ok {
		data.Fee = uint32(fee.Int64())
	}
	if tickLower, ok := values[5].(*big.Int); ok {
		data.TickLower = int32(tickLower.Int64())
	}
	if tickUpper, ok := values[6].(*big.Int); ok {
		data.TickUpper = int32(tickUpper.Int64())
	}
	if liquidity, ok := values[7].(*big.Int); ok {
		data.Liquidity = new(big.Int).Set(liquidity)
	} else {
		data.Liquidity = big.NewInt(0)
	}

	return data, nil
}

// PoolAddress resolves the pool for a token pair and fee tier via the
// factory. Returns ErrNoData when the factory reports the zero address.
func (a *EVMAdapter) PoolAddress(ctx context.Context, factory string, token0, token1 common.Address, fee uint32) (common.Address, error) {
	result, err := a.call(ctx, a.factory, common.HexToAddress(factory), "getPool",
		token0, token1, big.NewInt(int64(fee)))
	if err != nil {
		return common.Address{}, NewAdapterError("evm", "PoolAddress", err, map[string]interface{}{
			"factory": factory, "fee": fee,
		})
	}

	pool := common.BytesToAddress(result)
	if pool == (common.Address{}) {
		return common.Address{}, ErrNoData
	}
	return pool, nil
}

// PoolSlot0 reads the pool's current sqrt price and tick.
func (a *EVMAdapter) PoolSlot0(ctx context.Context, pool common.Address) (*PoolState, error) {
	result, err := a.call(ctx, a.pool, pool, "slot0")
	if err != nil {
		return nil, NewAdapterError("evm", "PoolSlot0", err, map[string]interface{}{"pool": pool.Hex()})
	}

	values, err := a.pool.Unpack("slot0", result)
	if err != nil || len(values) < 2 {
		return nil, NewAdapterError("evm", "PoolSlot0", fmt.Errorf("failed to decode slot0: %v", err), nil)
	}

	sqrtPrice, ok := values[0].(*big.Int)
	if !ok {
		return nil, NewAdapterError("evm", "PoolSlot0", fmt.Errorf("unexpected sqrtPriceX96 type %T", values[0]), nil)
	}
	tick, ok := values[1].(*big.Int)
	if !ok {
		return nil, NewAdapterError("evm", "PoolSlot0", fmt.Errorf("unexpected tick type %T", values[1]), nil)
	}

	return &PoolState{
		SqrtPriceX96: new(big.Int).Set(sqrtPrice),
		Tick:         int32(tick.Int64()),
	}, nil
}

// call packs and executes one eth_call against the target contract.
func (a *EVMAdapter) call(ctx context.Context, contractABI abi.ABI, target common.Address, method string, args ...interface{}) ([]byte, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	var result []byte
	err = a.withFailover(ctx, func(conn *rpcConn) error {
		var err error
		result, err = conn.eth.CallContract(ctx, ethereum.CallMsg{
			To:   &target,
			Data: data,
		}, nil)
		return err
	})
	return result, err
}

// withFailover runs fn against the current connection and, when the error
// looks like an endpoint problem, switches to the other endpoint and retries
// once. The replaced connection stays open until Close so concurrent calls
// still running against it are not cut off mid-flight.
func (a *EVMAdapter) withFailover(ctx context.Context, fn func(conn *rpcConn) error) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	err := fn(conn)
	if err == nil {
		a.provider.RecordSuccess()
		return nil
	}
	a.provider.RecordFailure()

	if !ShouldFailover(err) || ctx.Err() != nil {
		return err
	}
	if foErr := a.provider.Failover(); foErr != nil {
		return err
	}

	a.log.Warn().
		Err(err).
		Str("endpoint", a.provider.CurrentURL()).
		Msg("rpc endpoint failed, switching to alternate")

	fresh, dialErr := dialConn(a.provider.CurrentURL())
	if dialErr != nil {
		return fmt.Errorf("failover dial failed: %w", dialErr)
	}

	a.mu.Lock()
	if a.conn == conn {
		a.retired = append(a.retired, a.conn)
		a.conn = fresh
	} else {
		// Another call already swapped the connection; use theirs.
		fresh.close()
		fresh = a.conn
	}
	a.mu.Unlock()

	if err := fn(fresh); err != nil {
		a.provider.RecordFailure()
		return err
	}
	a.provider.RecordSuccess()
	return nil
}
