// Package service implements the orchestration layer: batch job fan-out,
// single-record analysis with cache deduplication, and status assembly.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/insightlab/insightd/internal/core"
	"github.com/insightlab/insightd/internal/data"
	"github.com/insightlab/insightd/internal/domain/model"
)

// BatchServiceOptions groups dependencies for BatchService.
type BatchServiceOptions struct {
	Store    core.BatchJobStore // Required: job and result storage
	Analyzer core.Analyzer      // Required: per-record analysis calls
	Limiter  core.RateLimiter   // Required: provider rate limiting

	// MaxConcurrent bounds in-flight analysis calls per process. Required.
	MaxConcurrent int
	// MaxRecords caps the records accepted in one submission. Required.
	MaxRecords int
	// RetryCount is the number of extra attempts after a transient failure.
	RetryCount int

	// CostPerThousandInputTokens and CostPerThousandOutputTokens drive the
	// status endpoint's cost estimate. When both are zero the estimate is
	// omitted.
	CostPerThousandInputTokens  float64
	CostPerThousandOutputTokens float64

	Logger *slog.Logger // Optional: structured logger
}

// BatchService orchestrates batch analysis jobs: it accepts submissions,
// fans records out to the analyzer under the concurrency gate and rate
// limiter, and assembles polled status views.
type BatchService struct {
	store    core.BatchJobStore
	analyzer core.Analyzer
	limiter  core.RateLimiter
	gate     *semaphore.Weighted
	opts     BatchServiceOptions
	logger   *slog.Logger
}

// NewBatchService constructs a BatchService.
func NewBatchService(opts BatchServiceOptions) (*BatchService, error) {
	if opts.Store == nil {
		return nil, errors.New("BatchJobStore is required")
	}
	if opts.Analyzer == nil {
		return nil, errors.New("Analyzer is required")
	}
	if opts.Limiter == nil {
		return nil, errors.New("RateLimiter is required")
	}
	if opts.MaxConcurrent <= 0 {
		return nil, errors.New("MaxConcurrent must be positive")
	}
	if opts.MaxRecords <= 0 {
		return nil, errors.New("MaxRecords must be positive")
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &BatchService{
		store:    opts.Store,
		analyzer: opts.Analyzer,
		limiter:  opts.Limiter,
		gate:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		opts:     opts,
		logger:   logger.With("component", "batch_service"),
	}, nil
}

// MustNewBatchService constructs a BatchService and panics on error.
func MustNewBatchService(opts BatchServiceOptions) *BatchService {
	svc, err := NewBatchService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create BatchService: %v", err))
	}
	return svc
}

// Submit validates the batch, creates a pending job, and starts the runner in
// the background. It returns as soon as the job is durable; callers poll
// Status for progress.
func (s *BatchService) Submit(ctx context.Context, req *model.BatchSubmitRequest) (*model.BatchSubmitResponse, error) {
	if err := req.Validate(s.opts.MaxRecords); err != nil {
		return nil, &invalidError{err: err}
	}

	jobID, err := s.store.CreateJob(ctx, len(req.Records))
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.InfoContext(ctx, "batch accepted",
		"job_id", jobID,
		"total_records", len(req.Records),
	)

	// The runner outlives the submission request, so it gets its own context.
	go s.runBatch(context.Background(), jobID, req.Records)

	return &model.BatchSubmitResponse{
		JobID:        jobID,
		Status:       model.BatchJobPending,
		TotalRecords: len(req.Records),
		Message:      "batch accepted for processing",
	}, nil
}

// runBatch drives one job to a terminal status. Per-record failures are
// recorded in the store and never fail the job; only orchestration errors
// (store writes, context loss) abort the whole batch.
func (s *BatchService) runBatch(ctx context.Context, jobID string, records []model.AnalyzeRequest) {
	start := time.Now()

	if err := s.store.SetRunning(ctx, jobID); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark job running", "job_id", jobID, "error", err)
		s.failJob(ctx, jobID, fmt.Errorf("mark running: %w", err))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range records {
		g.Go(func() error {
			return s.processRecord(gctx, jobID, i, records[i])
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "batch aborted",
			"job_id", jobID,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		s.failJob(ctx, jobID, err)
		return
	}

	if err := s.store.SetCompleted(ctx, jobID); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark job completed", "job_id", jobID, "error", err)
		return
	}

	s.logger.InfoContext(ctx, "batch completed",
		"job_id", jobID,
		"total_records", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func (s *BatchService) failJob(ctx context.Context, jobID string, cause error) {
	if err := s.store.SetFailed(ctx, jobID, cause.Error()); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark job failed", "job_id", jobID, "error", err)
	}
}

// processRecord runs one record to a stored outcome. The concurrency gate is
// held for the record's whole lifetime including retries; the rate limiter is
// re-acquired per attempt so retries count against the provider budget.
//
// Analysis errors become failure results in the store. Only store append
// failures propagate upward, which aborts the batch.
func (s *BatchService) processRecord(ctx context.Context, jobID string, index int, record model.AnalyzeRequest) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("record %d: acquire concurrency slot: %w", index, err)
	}
	defer s.gate.Release(1)

	attempts := 1 + s.opts.RetryCount
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.limiter.Acquire(ctx); err != nil {
			return fmt.Errorf("record %d: acquire rate limit grant: %w", index, err)
		}

		resp, err := s.analyzer.Analyze(ctx, record)
		if err == nil {
			return s.appendResult(ctx, model.RecordResult{
				JobID:      jobID,
				Index:      index,
				Success:    true,
				Response:   resp,
				TokensUsed: resp.Metadata.TokensUsed,
			})
		}

		lastErr = err
		if !core.IsTransient(err) || attempt == attempts {
			break
		}
		s.logger.WarnContext(ctx, "record attempt failed, retrying",
			"job_id", jobID,
			"record_index", index,
			"attempt", attempt,
			"error", err,
		)
	}

	s.logger.WarnContext(ctx, "record failed",
		"job_id", jobID,
		"record_index", index,
		"error", lastErr,
	)
	return s.appendResult(ctx, model.RecordResult{
		JobID:   jobID,
		Index:   index,
		Success: false,
		Error:   lastErr.Error(),
	})
}

func (s *BatchService) appendResult(ctx context.Context, result model.RecordResult) error {
	if err := s.store.AppendResult(ctx, result); err != nil {
		return fmt.Errorf("record %d: persist result: %w", result.Index, err)
	}
	return nil
}

// Status assembles the polled view of a job: aggregate counters, derived
// progress and cost, and all results recorded so far in record-index order.
func (s *BatchService) Status(ctx context.Context, jobID string) (*model.BatchStatusResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	results, err := s.store.ListResults(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		// The results field is part of the polled contract even before the
		// first record settles.
		results = []model.RecordResult{}
	}

	resp := &model.BatchStatusResponse{
		JobID:           job.ID,
		Status:          job.Status,
		TotalRecords:    job.TotalRecords,
		CompletedCount:  job.CompletedCount,
		FailedCount:     job.FailedCount,
		TotalTokensUsed: job.TotalTokensUsed,
		FailureMessage:  job.FailureMessage,
		Results:         results,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	if job.TotalRecords > 0 {
		done := float64(job.CompletedCount + job.FailedCount)
		resp.ProgressPercent = math.Round(done/float64(job.TotalRecords)*10000) / 100
	}
	resp.EstimatedCost = s.estimateCost(job.TotalTokensUsed)
	return resp, nil
}

// estimateCost derives an approximate spend from the job's token total. The
// provider reports a combined count, so the split between input and output
// tokens is assumed to be even.
func (s *BatchService) estimateCost(totalTokens int) *float64 {
	inRate, outRate := s.opts.CostPerThousandInputTokens, s.opts.CostPerThousandOutputTokens
	if inRate <= 0 && outRate <= 0 {
		return nil
	}

	half := float64(totalTokens) / 2
	cost := half/1000*inRate + half/1000*outRate
	cost = math.Round(cost*1e6) / 1e6
	return &cost
}

// ListJobs returns recent jobs, newest first.
func (s *BatchService) ListJobs(ctx context.Context, limit int) (*model.BatchJobList, error) {
	jobs, err := s.store.ListJobs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if jobs == nil {
		jobs = []model.BatchJob{}
	}
	return &model.BatchJobList{Jobs: jobs}, nil
}

// IsNotFound reports whether err means the requested job does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, data.ErrJobNotFound)
}

// invalidError marks a request rejected by validation, as opposed to a
// processing or storage fault.
type invalidError struct {
	err error
}

func (e *invalidError) Error() string { return e.err.Error() }

func (e *invalidError) Unwrap() error { return e.err }

// IsInvalid reports whether err was caused by invalid caller input.
func IsInvalid(err error) bool {
	var ie *invalidError
	return errors.As(err, &ie)
}
