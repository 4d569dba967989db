package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/delta-monitor/internal/logging"
)

// AggregatorClient queries an external market-data aggregator for token pair
// stats. It is the last pricing fallback before hardcoded defaults, and also
// supplies the volume and liquidity figures the fee yield estimate needs.
type AggregatorClient struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// PairMarket is the aggregator's view of a token's most liquid trading pair.
type PairMarket struct {
	PriceUSD     float64
	Volume24hUSD float64
	LiquidityUSD float64
}

// NewAggregatorClient creates a new aggregator client.
func NewAggregatorClient(baseURL string, timeout time.Duration, log zerolog.Logger) *AggregatorClient {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &AggregatorClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        logging.Component(log, "aggregator_client"),
	}
}

type pairResponse struct {
	Pairs []struct {
		PriceUsd string `json:"priceUsd"`
		Volume   struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		BaseToken struct {
			Address string `json:"address"`
			Symbol  string `json:"symbol"`
		} `json:"baseToken"`
	} `json:"pairs"`
}

// TokenMarket looks up the token's pairs and returns the most liquid one.
// Returns ErrNoData when the aggregator knows nothing about the token.
func (c *AggregatorClient) TokenMarket(ctx context.Context, tokenAddress string) (*PairMarket, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, strings.ToLower(tokenAddress))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewAdapterError("aggregator", "TokenMarket", err, nil)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewAdapterError("aggregator", "TokenMarket", err, map[string]interface{}{"token": tokenAddress})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewAdapterError("aggregator", "TokenMarket", err, nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewAdapterError("aggregator", "TokenMarket",
			fmt.Errorf("unexpected status code %d", resp.StatusCode),
			map[string]interface{}{"token": tokenAddress, "body": string(data)})
	}

	var parsed pairResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, NewAdapterError("aggregator", "TokenMarket", err, nil)
	}
	if len(parsed.Pairs) == 0 {
		return nil, ErrNoData
	}

	var best *PairMarket
	for _, pair := range parsed.Pairs {
		price := parseFloat(pair.PriceUsd)
		if price <= 0 {
			continue
		}
		if best == nil || pair.Liquidity.USD > best.LiquidityUSD {
			best = &PairMarket{
				PriceUSD:     price,
				Volume24hUSD: pair.Volume.H24,
				LiquidityUSD: pair.Liquidity.USD,
			}
		}
	}
	if best == nil {
		return nil, ErrNoData
	}

	c.log.Debug().
		Str("token", tokenAddress).
		Float64("priceUsd", best.PriceUSD).
		Float64("liquidityUsd", best.LiquidityUSD).
		Msg("resolved token market from aggregator")

	return best, nil
}
