package bootstrap

import (
	"log/slog"
	"time"

	"github.com/insightlab/insightd/config"
	"github.com/insightlab/insightd/internal/adapters/anthropic"
	"github.com/insightlab/insightd/internal/core"
	"github.com/insightlab/insightd/internal/ratelimit"
	"github.com/insightlab/insightd/internal/service"
)

// ServiceDeps groups the dependencies needed to build the service layer.
type ServiceDeps struct {
	Config *config.AppConfig
	Store  core.BatchJobStore
	Cache  core.CacheRepository
	Logger *slog.Logger
}

// ServiceContainer holds the constructed services.
type ServiceContainer struct {
	Batch   *service.BatchService
	Analyze *service.AnalyzeService
}

// NewServices constructs the analyzer, rate limiter, and service layer from
// configuration. The limiter is shared by batch and single-record paths so
// the provider budget is global to the process.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	cfg := deps.Config

	analyzer, err := anthropic.New(anthropic.Options{
		APIKey:      cfg.AI.AnthropicAPIKey,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
		Logger:      deps.Logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	limiter := ratelimit.New(cfg.AI.RequestsPerMinute, time.Minute)

	batchSvc, err := service.NewBatchService(service.BatchServiceOptions{
		Store:                       deps.Store,
		Analyzer:                    analyzer,
		Limiter:                     limiter,
		MaxConcurrent:               cfg.Batch.MaxConcurrentCalls,
		MaxRecords:                  cfg.Batch.MaxRecords,
		RetryCount:                  cfg.Batch.RecordRetryCount,
		CostPerThousandInputTokens:  cfg.Batch.CostPerThousandInputTokens,
		CostPerThousandOutputTokens: cfg.Batch.CostPerThousandOutputTokens,
		Logger:                      deps.Logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	analyzeSvc, err := service.NewAnalyzeService(service.AnalyzeServiceOptions{
		Analyzer: analyzer,
		Limiter:  limiter,
		Cache:    deps.Cache,
		CacheTTL: cfg.Cache.TTL,
		Logger:   deps.Logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	return ServiceContainer{Batch: batchSvc, Analyze: analyzeSvc}, nil
}
