package data

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightlab/insightd/internal/domain/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "batch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	jobID, err := store.CreateJob(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, store.SetRunning(ctx, jobID))

	require.NoError(t, store.AppendResult(ctx, model.RecordResult{
		JobID:      jobID,
		Index:      0,
		Success:    true,
		Response:   &model.AnalyzeResponse{Summary: "stored"},
		TokensUsed: 90,
	}))
	require.NoError(t, store.AppendResult(ctx, model.RecordResult{
		JobID: jobID,
		Index: 1,
		Error: "record failed",
	}))
	require.NoError(t, store.SetCompleted(ctx, jobID))

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchJobCompleted, job.Status)
	assert.Equal(t, 1, job.CompletedCount)
	assert.Equal(t, 1, job.FailedCount)
	assert.Equal(t, 90, job.TotalTokensUsed)
	assert.False(t, job.CreatedAt.IsZero())
	assert.False(t, job.UpdatedAt.Before(job.CreatedAt))

	results, err := store.ListResults(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotNil(t, results[0].Response)
	assert.Equal(t, "stored", results[0].Response.Summary)
	assert.Nil(t, results[1].Response)
	assert.Equal(t, "record failed", results[1].Error)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "batch.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)

	jobID, err := store.CreateJob(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.SetRunning(ctx, jobID))
	require.NoError(t, store.AppendResult(ctx, model.RecordResult{
		JobID: jobID, Index: 0, Success: true, TokensUsed: 40,
	}))
	require.NoError(t, store.SetCompleted(ctx, jobID))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	job, err := reopened.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchJobCompleted, job.Status)
	assert.Equal(t, 1, job.CompletedCount)
	assert.Equal(t, 40, job.TotalTokensUsed)
}

func TestSQLiteStoreRejectsDuplicateIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	jobID, err := store.CreateJob(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.AppendResult(ctx, model.RecordResult{
		JobID: jobID, Index: 0, Success: true, TokensUsed: 7,
	}))

	err = store.AppendResult(ctx, model.RecordResult{JobID: jobID, Index: 0, Error: "late"})
	require.ErrorIs(t, err, ErrResultExists)

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.CompletedCount)
	assert.Zero(t, job.FailedCount)
	assert.Equal(t, 7, job.TotalTokensUsed)
}

func TestSQLiteStoreRejectsBackwardTransitions(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	jobID, err := store.CreateJob(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.SetRunning(ctx, jobID))
	require.NoError(t, store.SetFailed(ctx, jobID, "runner crashed"))

	assert.ErrorIs(t, store.SetRunning(ctx, jobID), ErrInvalidTransition)
	assert.ErrorIs(t, store.SetCompleted(ctx, jobID), ErrInvalidTransition)

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchJobFailed, job.Status)
	assert.Equal(t, "runner crashed", job.FailureMessage)
}

func TestSQLiteStoreUnknownJob(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	_, err := store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.ErrorIs(t, store.SetRunning(ctx, "missing"), ErrJobNotFound)
	assert.ErrorIs(t, store.AppendResult(ctx, model.RecordResult{JobID: "missing"}), ErrJobNotFound)
}

func TestSQLiteStoreConcurrentAppends(t *testing.T) {
	const records = 40

	ctx := context.Background()
	store := newTestSQLiteStore(t)

	jobID, err := store.CreateJob(ctx, records)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range records {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.AppendResult(ctx, model.RecordResult{
				JobID: jobID, Index: i, Success: true, TokensUsed: 1,
			}))
		}()
	}
	wg.Wait()

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, records, job.CompletedCount)
	assert.Equal(t, records, job.TotalTokensUsed)
}

func TestSQLiteStoreListJobsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var ids []string
	for i := range 5 {
		id, err := store.CreateJob(ctx, i+1)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	jobs, err := store.ListJobs(ctx, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, ids[4], jobs[0].ID, "newest job first")
	assert.Equal(t, ids[3], jobs[1].ID)
	assert.Equal(t, ids[2], jobs[2].ID)
}

func TestSQLiteStoreHealth(t *testing.T) {
	store := newTestSQLiteStore(t)
	assert.NoError(t, store.Health(context.Background()))
}
