package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/insightlab/insightd/internal/core"
	"github.com/insightlab/insightd/internal/domain/model"
)

// AnalyzeServiceOptions groups dependencies for AnalyzeService.
type AnalyzeServiceOptions struct {
	Analyzer core.Analyzer    // Required: analysis calls
	Limiter  core.RateLimiter // Required: provider rate limiting

	// Cache deduplicates identical requests. Optional; nil disables caching.
	Cache    core.CacheRepository
	CacheTTL time.Duration

	Logger *slog.Logger // Optional: structured logger
}

// AnalyzeService handles single-record analysis with cache deduplication:
// identical payloads within the TTL are served from the cache without
// spending a provider call.
type AnalyzeService struct {
	analyzer core.Analyzer
	limiter  core.RateLimiter
	cache    core.CacheRepository
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewAnalyzeService constructs an AnalyzeService.
func NewAnalyzeService(opts AnalyzeServiceOptions) (*AnalyzeService, error) {
	if opts.Analyzer == nil {
		return nil, errors.New("Analyzer is required")
	}
	if opts.Limiter == nil {
		return nil, errors.New("RateLimiter is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AnalyzeService{
		analyzer: opts.Analyzer,
		limiter:  opts.Limiter,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		logger:   logger.With("component", "analyze_service"),
	}, nil
}

// MustNewAnalyzeService constructs an AnalyzeService and panics on error.
func MustNewAnalyzeService(opts AnalyzeServiceOptions) *AnalyzeService {
	svc, err := NewAnalyzeService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create AnalyzeService: %v", err))
	}
	return svc
}

// Analyze runs one record through the analyzer, serving repeated payloads
// from the cache. The returned bool reports whether the response came from
// the cache. Cache failures degrade to a provider call rather than failing
// the request.
func (s *AnalyzeService) Analyze(ctx context.Context, req model.AnalyzeRequest) (*model.AnalyzeResponse, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, &invalidError{err: err}
	}

	key, keyErr := cacheKey(req)
	if s.cache != nil && keyErr == nil {
		if cached, err := s.cache.Get(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "cache read failed", "error", err)
		} else if cached != nil {
			var resp model.AnalyzeResponse
			if err := json.Unmarshal(cached, &resp); err == nil {
				s.logger.DebugContext(ctx, "cache hit", "key", key)
				return &resp, true, nil
			}
			s.logger.WarnContext(ctx, "cache entry undecodable, evicting", "key", key)
			_, _ = s.cache.Delete(ctx, key)
		}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, false, fmt.Errorf("acquire rate limit grant: %w", err)
	}

	resp, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil && keyErr == nil {
		if raw, err := json.Marshal(resp); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
				s.logger.WarnContext(ctx, "cache write failed", "error", err)
			}
		}
	}
	return resp, false, nil
}

// cacheKey derives a stable key from the request payload. json.Marshal sorts
// map keys, so equal payloads hash identically regardless of input order.
func cacheKey(req model.AnalyzeRequest) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return "analysis:" + hex.EncodeToString(sum[:]), nil
}
