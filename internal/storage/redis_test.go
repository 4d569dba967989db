package storage

import (
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/delta-monitor/internal/config"
)

func TestNewRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := NewRedisCache(&config.RedisConfig{
		Host:           mr.Host(),
		Port:           mr.Port(),
		DB:             0,
		MaxConnections: 5,
	})
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	defer cache.Close()

	ctx := testContext(t)
	if err := cache.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if cache.Client() == nil {
		t.Error("Client() returned nil")
	}
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	_, err := NewRedisCache(&config.RedisConfig{
		Host:           "localhost",
		Port:           "1", // nothing listens here
		MaxConnections: 5,
	})
	if err == nil {
		t.Error("expected connection error")
	}
}
