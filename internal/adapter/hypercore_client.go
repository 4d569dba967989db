package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/delta-monitor/internal/circuitbreaker"
	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/retry"
)

// HypercoreClient queries the core venue's info endpoint for perp account
// state, spot balances and market prices. All payload numbers arrive as
// strings and are parsed leniently; a malformed field parses to 0 rather than
// failing the whole response.
type HypercoreClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryCfg   *retry.Config
	breaker    *circuitbreaker.Breaker
	log        zerolog.Logger
}

// HypercoreClientConfig holds configuration for the client.
type HypercoreClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	RateLimitRPS   int
}

// NewHypercoreClient creates a new info endpoint client.
func NewHypercoreClient(cfg *HypercoreClientConfig, log zerolog.Logger) *HypercoreClient {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 10
	}
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 2
	}

	return &HypercoreClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		retryCfg: &retry.Config{
			MaxAttempts:  attempts,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig("hypercore"), log),
		log:     logging.Component(log, "hypercore_client"),
	}
}

// PerpPositionState is one open position as reported by the venue.
type PerpPositionState struct {
	Coin          string
	Size          float64 // signed, negative = short
	EntryPrice    float64
	PositionValue float64 // |size| * mark price
	UnrealizedPnl float64
	MarginUsed    float64
	CumFunding    float64
}

// MarkPrice derives the mark price from position value and size. Returns 0
// for an empty position.
func (p *PerpPositionState) MarkPrice() float64 {
	if p.Size == 0 {
		return 0
	}
	size := p.Size
	if size < 0 {
		size = -size
	}
	return p.PositionValue / size
}

// PerpAccountState is the venue's clearinghouse view of one account.
type PerpAccountState struct {
	Positions       []PerpPositionState
	AccountValue    float64
	TotalMarginUsed float64
	TotalNotional   float64
}

// SpotTokenBalance is one spot holding as reported by the venue.
type SpotTokenBalance struct {
	Coin  string
	Total float64
	Hold  float64
}

// wire types

type clearinghouseResponse struct {
	AssetPositions []struct {
		Position struct {
			Coin          string `json:"coin"`
			Szi           string `json:"szi"`
			EntryPx       string `json:"entryPx"`
			PositionValue string `json:"positionValue"`
			UnrealizedPnl string `json:"unrealizedPnl"`
			MarginUsed    string `json:"marginUsed"`
			CumFunding    struct {
				AllTime string `json:"allTime"`
			} `json:"cumFunding"`
		} `json:"position"`
	} `json:"assetPositions"`
	MarginSummary struct {
		AccountValue    string `json:"accountValue"`
		TotalMarginUsed string `json:"totalMarginUsed"`
		TotalNtlPos     string `json:"totalNtlPos"`
	} `json:"marginSummary"`
}

type spotClearinghouseResponse struct {
	Balances []struct {
		Coin  string `json:"coin"`
		Total string `json:"total"`
		Hold  string `json:"hold"`
	} `json:"balances"`
}

type perpMeta struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

type perpAssetCtx struct {
	MarkPx   string `json:"markPx"`
	OraclePx string `json:"oraclePx"`
	MidPx    string `json:"midPx"`
	Funding  string `json:"funding"`
}

type spotMeta struct {
	Tokens []struct {
		Name  string `json:"name"`
		Index int    `json:"index"`
	} `json:"tokens"`
	Universe []struct {
		Name   string `json:"name"`
		Tokens []int  `json:"tokens"`
	} `json:"universe"`
}

type spotAssetCtx struct {
	Coin   string `json:"coin"`
	MidPx  string `json:"midPx"`
	MarkPx string `json:"markPx"`
}

// PerpAccountState fetches the account's perp clearinghouse state.
func (c *HypercoreClient) PerpAccountState(ctx context.Context, user string) (*PerpAccountState, error) {
	var resp clearinghouseResponse
	if err := c.post(ctx, map[string]interface{}{"type": "clearinghouseState", "user": user}, &resp); err != nil {
		return nil, NewAdapterError("hypercore", "PerpAccountState", err, map[string]interface{}{"user": user})
	}

	state := &PerpAccountState{
		AccountValue:    parseFloat(resp.MarginSummary.AccountValue),
		TotalMarginUsed: parseFloat(resp.MarginSummary.TotalMarginUsed),
		TotalNotional:   parseFloat(resp.MarginSummary.TotalNtlPos),
	}

	for _, ap := range resp.AssetPositions {
		p := ap.Position
		size := parseFloat(p.Szi)
		if size == 0 {
			continue
		}
		state.Positions = append(state.Positions, PerpPositionState{
			Coin:          p.Coin,
			Size:          size,
			EntryPrice:    parseFloat(p.EntryPx),
			PositionValue: parseFloat(p.PositionValue),
			UnrealizedPnl: parseFloat(p.UnrealizedPnl),
			MarginUsed:    parseFloat(p.MarginUsed),
			CumFunding:    parseFloat(p.CumFunding.AllTime),
		})
	}

	return state, nil
}

// SpotBalances fetches the account's spot balances. Zero balances are skipped.
func (c *HypercoreClient) SpotBalances(ctx context.Context, user string) ([]SpotTokenBalance, error) {
	var resp spotClearinghouseResponse
	if err := c.post(ctx, map[string]interface{}{"type": "spotClearinghouseState", "user": user}, &resp); err != nil {
		return nil, NewAdapterError("hypercore", "SpotBalances", err, map[string]interface{}{"user": user})
	}

	var balances []SpotTokenBalance
	for _, b := range resp.Balances {
		total := parseFloat(b.Total)
		if total == 0 {
			continue
		}
		balances = append(balances, SpotTokenBalance{
			Coin:  b.Coin,
			Total: total,
			Hold:  parseFloat(b.Hold),
		})
	}

	return balances, nil
}

// PerpMarkPrice returns the perp market's mark price for a coin, falling back
// to the oracle price when the mark is missing. Returns ErrNoData when the
// coin is not listed.
func (c *HypercoreClient) PerpMarkPrice(ctx context.Context, coin string) (float64, error) {
	var raw []json.RawMessage
	if err := c.post(ctx, map[string]interface{}{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return 0, NewAdapterError("hypercore", "PerpMarkPrice", err, map[string]interface{}{"coin": coin})
	}
	if len(raw) < 2 {
		return 0, NewAdapterError("hypercore", "PerpMarkPrice", fmt.Errorf("unexpected payload shape"), nil)
	}

	var meta perpMeta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return 0, NewAdapterError("hypercore", "PerpMarkPrice", err, nil)
	}
	var ctxs []perpAssetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return 0, NewAdapterError("hypercore", "PerpMarkPrice", err, nil)
	}

	for i, asset := range meta.Universe {
		if asset.Name != coin || i >= len(ctxs) {
			continue
		}
		if px := parseFloat(ctxs[i].MarkPx); px > 0 {
			return px, nil
		}
		if px := parseFloat(ctxs[i].OraclePx); px > 0 {
			return px, nil
		}
	}

	return 0, ErrNoData
}

// SpotMidPrice returns the mid price of the coin's USDC spot pair. Returns
// ErrNoData when no such pair is listed.
func (c *HypercoreClient) SpotMidPrice(ctx context.Context, coin string) (float64, error) {
	var raw []json.RawMessage
	if err := c.post(ctx, map[string]interface{}{"type": "spotMetaAndAssetCtxs"}, &raw); err != nil {
		return 0, NewAdapterError("hypercore", "SpotMidPrice", err, map[string]interface{}{"coin": coin})
	}
	if len(raw) < 2 {
		return 0, NewAdapterError("hypercore", "SpotMidPrice", fmt.Errorf("unexpected payload shape"), nil)
	}

	var meta spotMeta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return 0, NewAdapterError("hypercore", "SpotMidPrice", err, nil)
	}
	var ctxs []spotAssetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return 0, NewAdapterError("hypercore", "SpotMidPrice", err, nil)
	}

	tokenIndex := -1
	for _, t := range meta.Tokens {
		if t.Name == coin {
			tokenIndex = t.Index
			break
		}
	}
	if tokenIndex < 0 {
		return 0, ErrNoData
	}

	// Pairs quote against token index 0 (USDC); match the base token.
	for i, pair := range meta.Universe {
		if len(pair.Tokens) != 2 || pair.Tokens[0] != tokenIndex || pair.Tokens[1] != 0 {
			continue
		}
		if i >= len(ctxs) {
			break
		}
		if px := parseFloat(ctxs[i].MidPx); px > 0 {
			return px, nil
		}
		if px := parseFloat(ctxs[i].MarkPx); px > 0 {
			return px, nil
		}
	}

	return 0, ErrNoData
}

// post sends one info request with rate limiting and bounded retries. The
// whole retried operation counts as a single call against the circuit
// breaker, so an upstream outage opens the circuit after a few requests
// rather than after attempts*requests failures.
func (c *HypercoreClient) post(ctx context.Context, body map[string]interface{}, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.doPost(ctx, payload, dest)
	})
}

func (c *HypercoreClient) doPost(ctx context.Context, payload []byte, dest interface{}) error {
	return retry.Do(ctx, c.retryCfg, c.log, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(data))
		}

		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	})
}

// parseFloat parses a venue numeric string, returning 0 for anything invalid.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
