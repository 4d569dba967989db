// Package config provides configuration management for the portfolio monitor.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Hypercore HypercoreConfig
	EVM       EVMConfig
	Pricing   PricingConfig
	Worker    WorkerConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// HypercoreConfig holds the core-venue info API configuration
type HypercoreConfig struct {
	APIURL         string
	RequestTimeout time.Duration
	MaxRetries     int
	RateLimitRPS   int
}

// EVMConfig holds EVM-side chain configuration
type EVMConfig struct {
	RPCPrimary     string
	RPCSecondary   string
	RequestTimeout time.Duration
	Tokens         []TokenConfig
	AMMVenues      []AMMVenueConfig
	// LPFanout bounds how many LP positions are valued concurrently.
	LPFanout int
}

// TokenConfig identifies a wallet-tracked ERC-20 token
type TokenConfig struct {
	Address  string
	Symbol   string
	Decimals int
}

// AMMVenueConfig identifies one concentrated-liquidity venue
type AMMVenueConfig struct {
	Name            string
	PositionManager string
	Factory         string
}

// PricingConfig holds price resolution configuration
type PricingConfig struct {
	CacheTTL          time.Duration
	AggregatorURL     string
	Stablecoins       []string
	DefaultHYPEPrice  float64
	FundingLookback   int // days of cumulative funding assumed in the funding APR estimate
}

// WorkerConfig holds the periodic snapshot worker configuration
type WorkerConfig struct {
	// WatchAddresses are EVM addresses snapshotted on every poll cycle.
	WatchAddresses []string
	PollInterval   time.Duration
	// SnapshotRetention bounds how long persisted snapshots are kept.
	// Zero disables pruning.
	SnapshotRetention time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// DefaultTokens are the HyperEVM tokens tracked by the wallet fetcher when no
// list is configured.
var DefaultTokens = []TokenConfig{
	{Address: "0x5555555555555555555555555555555555555555", Symbol: "WHYPE", Decimals: 18},
	{Address: "0xb8ce59fc3717ada4c02eadf9682a9e934f625ebb", Symbol: "USDT", Decimals: 6},
	{Address: "0x9fdbda0a5e284c32744d2f17ee5c74b284993463", Symbol: "UBTC", Decimals: 8},
	{Address: "0xbe6727b535545c67d5caa73dea54865b92cf7907", Symbol: "UETH", Decimals: 18},
}

// DefaultStablecoins are identities the resolver short-circuits to $1.00.
var DefaultStablecoins = []string{
	"USDT", "USDC", "DAI", "USDE", "FEUSD", "USDHL",
	"0xb8ce59fc3717ada4c02eadf9682a9e934f625ebb",
	"0x02c6a2fa58cc01a18b8d9e00ea48d65e4df26c70",
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "delta_monitor"),
				User:           getEnv("POSTGRES_USER", "monitor"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Hypercore: HypercoreConfig{
			APIURL:         getEnv("HYPERCORE_API_URL", "https://api.hyperliquid.xyz"),
			RequestTimeout: getEnvAsDuration("HYPERCORE_REQUEST_TIMEOUT", 10*time.Second),
			MaxRetries:     getEnvAsInt("HYPERCORE_MAX_RETRIES", 2),
			RateLimitRPS:   getEnvAsInt("HYPERCORE_RATE_LIMIT_RPS", 10),
		},
		EVM: EVMConfig{
			RPCPrimary:     getEnv("EVM_RPC_PRIMARY", "https://rpc.hyperliquid.xyz/evm"),
			RPCSecondary:   getEnv("EVM_RPC_SECONDARY", ""),
			RequestTimeout: getEnvAsDuration("EVM_REQUEST_TIMEOUT", 10*time.Second),
			Tokens:         loadTokens(),
			AMMVenues:      loadAMMVenues(),
			LPFanout:       getEnvAsInt("LP_FANOUT", 8),
		},
		Pricing: PricingConfig{
			CacheTTL:         getEnvAsDuration("PRICE_CACHE_TTL", 10*time.Second),
			AggregatorURL:    getEnv("AGGREGATOR_URL", "https://api.dexscreener.com"),
			Stablecoins:      loadStablecoins(),
			DefaultHYPEPrice: getEnvAsFloat("DEFAULT_HYPE_PRICE", 30.0),
			FundingLookback:  getEnvAsInt("FUNDING_LOOKBACK_DAYS", 30),
		},
		Worker: WorkerConfig{
			WatchAddresses:    loadWatchAddresses(),
			PollInterval:      getEnvAsDuration("SNAPSHOT_POLL_INTERVAL", 5*time.Minute),
			SnapshotRetention: getEnvAsDuration("SNAPSHOT_RETENTION", 30*24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// loadTokens parses WALLET_TOKENS entries of the form address:symbol:decimals,
// falling back to the built-in HyperEVM token list.
func loadTokens() []TokenConfig {
	raw := getEnv("WALLET_TOKENS", "")
	if raw == "" {
		return DefaultTokens
	}

	var tokens []TokenConfig
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			continue
		}
		decimals, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}
		tokens = append(tokens, TokenConfig{
			Address:  strings.ToLower(parts[0]),
			Symbol:   parts[1],
			Decimals: decimals,
		})
	}
	if len(tokens) == 0 {
		return DefaultTokens
	}
	return tokens
}

// loadAMMVenues parses AMM_VENUES entries of the form name:manager:factory.
func loadAMMVenues() []AMMVenueConfig {
	raw := getEnv("AMM_VENUES", "")
	if raw == "" {
		return nil
	}

	var venues []AMMVenueConfig
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			continue
		}
		venues = append(venues, AMMVenueConfig{
			Name:            parts[0],
			PositionManager: strings.ToLower(parts[1]),
			Factory:         strings.ToLower(parts[2]),
		})
	}
	return venues
}

// loadWatchAddresses parses the comma-separated WATCH_ADDRESSES list.
func loadWatchAddresses() []string {
	raw := getEnv("WATCH_ADDRESSES", "")
	if raw == "" {
		return nil
	}

	var addrs []string
	for _, a := range strings.Split(raw, ",") {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func loadStablecoins() []string {
	raw := getEnv("STABLECOINS", "")
	if raw == "" {
		return DefaultStablecoins
	}

	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return DefaultStablecoins
	}
	return out
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
