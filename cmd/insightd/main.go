// Command insightd runs the insight analysis service: an HTTP API that
// analyzes records with an LLM, individually or as asynchronous batch jobs.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/insightlab/insightd/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		slog.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.InitLogger(cfg.IsDev)

	if err := bootstrap.ValidateConfig(&cfg); err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting insightd",
		"addr", cfg.HTTP.Addr,
		"model", cfg.AI.Model,
		"store_backend", cfg.Batch.StoreBackend,
		"cache_backend", cfg.Cache.Backend,
		"cache_enabled", cfg.Cache.Enabled,
		"requests_per_minute", cfg.AI.RequestsPerMinute,
		"max_concurrent_calls", cfg.Batch.MaxConcurrentCalls,
	)

	store, storeCloser, err := bootstrap.NewJobStore(cfg.Batch, logger)
	if err != nil {
		return err
	}
	if storeCloser != nil {
		defer func() {
			if cerr := storeCloser.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close job store failed", "error", cerr)
			}
		}()
	}

	cache, cacheCloser, err := bootstrap.NewCache(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	if cacheCloser != nil {
		defer func() {
			if cerr := cacheCloser.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close cache failed", "error", cerr)
			}
		}()
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config: &cfg,
		Store:  store,
		Cache:  cache,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	server := bootstrap.StartHTTPServer(&bootstrap.HTTPServerConfig{
		Config:   &cfg,
		Services: services,
		Store:    store,
		Logger:   logger,
	})

	return bootstrap.WaitForShutdown(ctx, server, &cfg, logger)
}
