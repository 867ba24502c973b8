// Package core defines the interfaces between the orchestration layer and its
// collaborators. The core owns the contracts; adapters and the data layer
// provide implementations.
package core

import (
	"context"
	"time"

	"github.com/insightlab/insightd/internal/domain/model"
)

// BatchJobStore is the durable (or volatile) repository for batch jobs and
// per-record results. Implementations must serialize mutations to a given
// job's aggregate counters while letting different jobs proceed independently.
type BatchJobStore interface {
	// CreateJob initializes a job in pending status with zeroed counters and
	// returns its assigned ID.
	CreateJob(ctx context.Context, totalRecords int) (string, error)

	// SetRunning, SetCompleted, and SetFailed advance the job's status.
	// Each refreshes UpdatedAt. Transitions only move forward; attempts to
	// regress from a terminal status are rejected.
	SetRunning(ctx context.Context, jobID string) error
	SetCompleted(ctx context.Context, jobID string) error
	SetFailed(ctx context.Context, jobID, message string) error

	// AppendResult records one record's outcome and updates the job's
	// counters and token total. Appending is first-write-wins per index: a
	// second result for the same index is rejected with ErrResultExists so
	// counters stay monotone.
	AppendResult(ctx context.Context, result model.RecordResult) error

	// GetJob returns the job's aggregate state, or ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*model.BatchJob, error)

	// ListResults returns all results recorded so far for the job, ordered
	// by record index. The slice is a snapshot and safe to retain.
	ListResults(ctx context.Context, jobID string) ([]model.RecordResult, error)

	// ListJobs returns up to limit jobs, most recently created first.
	ListJobs(ctx context.Context, limit int) ([]model.BatchJob, error)

	// Health reports whether the backing storage is operational.
	Health(ctx context.Context) error
}

// Analyzer is the external analysis capability: one unary call per record.
// Implementations wrap transient provider conditions with Transient so the
// runner knows a retry may help.
type Analyzer interface {
	Analyze(ctx context.Context, req model.AnalyzeRequest) (*model.AnalyzeResponse, error)
}

// RateLimiter bounds calls to the external provider within a trailing window.
// Acquire blocks until a grant is available or ctx is done; it never fails
// for any other reason.
type RateLimiter interface {
	Acquire(ctx context.Context) error
}

// CacheRepository is the cache used to deduplicate identical analysis
// requests. Get returns nil with no error on a miss.
type CacheRepository interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}
