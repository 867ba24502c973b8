package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/insightlab/insightd/config"
	"github.com/insightlab/insightd/internal/core"
	"github.com/insightlab/insightd/internal/data"
)

// NewCache builds the analysis cache selected by configuration. A nil cache
// means caching is disabled. The returned closer is non-nil for backends
// that hold connections.
func NewCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (core.CacheRepository, io.Closer, error) {
	if !cfg.Enabled {
		logger.Info("analysis cache disabled")
		return nil, nil, nil
	}

	switch cfg.Backend {
	case config.CacheMemory:
		logger.Info("using in-memory analysis cache", "ttl", cfg.TTL)
		return data.NewMemoryCache(), nil, nil

	case config.CacheRedis:
		client := data.NewRedisClient(data.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis cache at %s: %w", cfg.RedisAddr, err)
		}

		logger.Info("using redis analysis cache", "addr", cfg.RedisAddr, "ttl", cfg.TTL)
		return data.NewRedisCache(client), client, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %q", cfg.Backend)
	}
}
