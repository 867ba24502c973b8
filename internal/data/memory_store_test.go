package data

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightlab/insightd/internal/domain/model"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	jobID, err := store.CreateJob(ctx, 3)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchJobPending, job.Status)
	assert.Equal(t, 3, job.TotalRecords)
	assert.Zero(t, job.CompletedCount)
	assert.Zero(t, job.FailedCount)

	require.NoError(t, store.SetRunning(ctx, jobID))

	require.NoError(t, store.AppendResult(ctx, model.RecordResult{
		JobID:      jobID,
		Index:      0,
		Success:    true,
		Response:   &model.AnalyzeResponse{Summary: "ok"},
		TokensUsed: 120,
	}))
	require.NoError(t, store.AppendResult(ctx, model.RecordResult{
		JobID:   jobID,
		Index:   1,
		Success: false,
		Error:   "provider rejected the record",
	}))

	job, err = store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.CompletedCount)
	assert.Equal(t, 1, job.FailedCount)
	assert.Equal(t, 120, job.TotalTokensUsed)

	require.NoError(t, store.SetCompleted(ctx, jobID))
	job, err = store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchJobCompleted, job.Status)
}

func TestMemoryStoreUnknownJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetJob(ctx, "no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)

	err = store.AppendResult(ctx, model.RecordResult{JobID: "no-such-job", Index: 0})
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.ErrorIs(t, store.SetRunning(ctx, "no-such-job"), ErrJobNotFound)
}

func TestMemoryStoreRejectsDuplicateIndex(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	jobID, err := store.CreateJob(ctx, 1)
	require.NoError(t, err)

	first := model.RecordResult{JobID: jobID, Index: 0, Success: true, TokensUsed: 10}
	require.NoError(t, store.AppendResult(ctx, first))

	err = store.AppendResult(ctx, model.RecordResult{JobID: jobID, Index: 0, Success: false})
	require.ErrorIs(t, err, ErrResultExists)

	// Counters unchanged by the rejected append.
	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.CompletedCount)
	assert.Zero(t, job.FailedCount)
	assert.Equal(t, 10, job.TotalTokensUsed)
}

func TestMemoryStoreRejectsBackwardTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	jobID, err := store.CreateJob(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.SetRunning(ctx, jobID))
	require.NoError(t, store.SetCompleted(ctx, jobID))

	assert.ErrorIs(t, store.SetRunning(ctx, jobID), ErrInvalidTransition)
	assert.ErrorIs(t, store.SetFailed(ctx, jobID, "late failure"), ErrInvalidTransition)

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchJobCompleted, job.Status)
	assert.Empty(t, job.FailureMessage)
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	const records = 100

	ctx := context.Background()
	store := NewMemoryStore()

	jobID, err := store.CreateJob(ctx, records)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range records {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := model.RecordResult{JobID: jobID, Index: i}
			if i%2 == 0 {
				result.Success = true
				result.TokensUsed = 5
			} else {
				result.Error = "boom"
			}
			assert.NoError(t, store.AppendResult(ctx, result))
		}()
	}
	wg.Wait()

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, records/2, job.CompletedCount)
	assert.Equal(t, records/2, job.FailedCount)
	assert.Equal(t, records, job.CompletedCount+job.FailedCount)
	assert.Equal(t, records/2*5, job.TotalTokensUsed)

	results, err := store.ListResults(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, results, records)
	for i, r := range results {
		assert.Equal(t, i, r.Index, "results should be ordered by record index")
	}
}

func TestMemoryStoreListJobsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

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

func TestMemoryStoreResultsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	jobID, err := store.CreateJob(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, store.AppendResult(ctx, model.RecordResult{JobID: jobID, Index: 1, Success: true}))

	results, err := store.ListResults(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Later appends must not mutate a previously returned snapshot.
	require.NoError(t, store.AppendResult(ctx, model.RecordResult{
		JobID: jobID, Index: 0, Error: fmt.Sprintf("attempt %d failed", 1),
	}))
	assert.Len(t, results, 1)
}
