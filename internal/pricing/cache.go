package pricing

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/delta-monitor/internal/types"
)

// QuoteCache stores resolved price quotes for the resolver's TTL window.
// Entries are scoped per venue so same-symbol tokens on different venues
// never share a quote. Implementations must be safe for concurrent use.
type QuoteCache interface {
	Get(ctx context.Context, token string, venue types.Venue) (*types.PriceQuote, bool)
	Set(ctx context.Context, quote *types.PriceQuote)
}

func cacheKey(token string, venue types.Venue) string {
	return "price:" + strings.ToLower(string(venue)) + ":" + strings.ToLower(token)
}

// MemoryQuoteCache is an in-process quote cache. Expired entries are dropped
// lazily on read.
type MemoryQuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]*types.PriceQuote
	ttl    time.Duration
}

// NewMemoryQuoteCache creates an in-memory cache with the given TTL.
func NewMemoryQuoteCache(ttl time.Duration) *MemoryQuoteCache {
	return &MemoryQuoteCache{
		quotes: make(map[string]*types.PriceQuote),
		ttl:    ttl,
	}
}

func (c *MemoryQuoteCache) Get(_ context.Context, token string, venue types.Venue) (*types.PriceQuote, bool) {
	key := cacheKey(token, venue)

	c.mu.RLock()
	quote, ok := c.quotes[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if quote.Expired(c.ttl, time.Now()) {
		c.mu.Lock()
		delete(c.quotes, key)
		c.mu.Unlock()
		return nil, false
	}
	return quote, true
}

func (c *MemoryQuoteCache) Set(_ context.Context, quote *types.PriceQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[cacheKey(quote.Token, types.Venue(quote.Venue))] = quote
}

// RedisQuoteCache stores quotes in Redis so multiple instances share one
// pricing view. Redis expiry enforces the TTL; read and write failures are
// treated as cache misses.
type RedisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisQuoteCache creates a Redis-backed quote cache.
func NewRedisQuoteCache(client *redis.Client, ttl time.Duration) *RedisQuoteCache {
	return &RedisQuoteCache{client: client, ttl: ttl}
}

func (c *RedisQuoteCache) Get(ctx context.Context, token string, venue types.Venue) (*types.PriceQuote, bool) {
	data, err := c.client.Get(ctx, cacheKey(token, venue)).Bytes()
	if err != nil {
		return nil, false
	}

	var quote types.PriceQuote
	if err := json.Unmarshal(data, &quote); err != nil {
		return nil, false
	}
	return &quote, true
}

func (c *RedisQuoteCache) Set(ctx context.Context, quote *types.PriceQuote) {
	data, err := json.Marshal(quote)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(quote.Token, types.Venue(quote.Venue)), data, c.ttl)
}
