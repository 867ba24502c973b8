package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, "claude-3-5-haiku-20241022", cfg.AI.Model)
	assert.Equal(t, 1200, cfg.AI.MaxTokens)
	assert.InDelta(t, 0.3, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 50, cfg.AI.RequestsPerMinute)
	assert.Equal(t, StoreMemory, cfg.Batch.StoreBackend)
	assert.Equal(t, "data/batch_jobs", cfg.Batch.StorePath)
	assert.Equal(t, "data/batch.db", cfg.Batch.SQLitePath)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrentCalls)
	assert.Equal(t, 1, cfg.Batch.RecordRetryCount)
	assert.Equal(t, 500, cfg.Batch.MaxRecords)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("BATCH_STORE_BACKEND", "sqlite")
	t.Setenv("BATCH_MAX_CONCURRENT_CALLS", "10")
	t.Setenv("CLAUDE_REQUESTS_PER_MINUTE", "25")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("CACHE_TTL", "30m")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, StoreSQLite, cfg.Batch.StoreBackend)
	assert.Equal(t, 10, cfg.Batch.MaxConcurrentCalls)
	assert.Equal(t, 25, cfg.AI.RequestsPerMinute)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
}

func TestStoreBackendParsing(t *testing.T) {
	var b StoreBackend
	require.NoError(t, b.UnmarshalText([]byte(" File ")))
	assert.Equal(t, StoreFile, b)

	require.Error(t, b.UnmarshalText([]byte("postgres")))
}

func TestCacheBackendParsing(t *testing.T) {
	var b CacheBackend
	require.NoError(t, b.UnmarshalText([]byte("REDIS")))
	assert.Equal(t, CacheRedis, b)

	require.Error(t, b.UnmarshalText([]byte("memcached")))
}

func TestSanitizeClampsValues(t *testing.T) {
	cfg := AppConfig{
		AI: AIConfig{
			MaxTokens:         -5,
			Temperature:       2.5,
			RequestsPerMinute: 0,
		},
		Batch: BatchConfig{
			MaxConcurrentCalls:         0,
			RecordRetryCount:           -1,
			MaxRecords:                 0,
			CostPerThousandInputTokens: -0.5,
		},
		Cache: CacheConfig{TTL: -time.Minute, RedisDB: -2},
	}
	cfg.Sanitize()

	assert.Equal(t, 1200, cfg.AI.MaxTokens)
	assert.InDelta(t, 1.0, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 1, cfg.AI.RequestsPerMinute)
	assert.Equal(t, StoreMemory, cfg.Batch.StoreBackend)
	assert.Equal(t, 1, cfg.Batch.MaxConcurrentCalls)
	assert.Zero(t, cfg.Batch.RecordRetryCount)
	assert.Equal(t, 1, cfg.Batch.MaxRecords)
	assert.Zero(t, cfg.Batch.CostPerThousandInputTokens)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Zero(t, cfg.Cache.RedisDB)
}

func TestDevModeFromAppEnv(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()
	assert.True(t, cfg.IsDev)
}
