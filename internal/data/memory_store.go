package data

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insightlab/insightd/internal/domain/model"
)

// jobEntry pairs a job's aggregate state with its recorded results.
// The entry mutex serializes all mutation of one job so counter updates are
// atomic with result writes, while different jobs never contend.
type jobEntry struct {
	mu      sync.Mutex
	job     model.BatchJob
	results map[int]model.RecordResult
}

// MemoryStore is the volatile job store: all state lives in process memory
// and is lost on restart. Default backend for development.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*jobEntry),
		now:  time.Now,
	}
}

// CreateJob initializes a pending job and returns its ID.
func (s *MemoryStore) CreateJob(_ context.Context, totalRecords int) (string, error) {
	now := s.now().UTC()
	job := model.BatchJob{
		ID:           uuid.NewString(),
		Status:       model.BatchJobPending,
		TotalRecords: totalRecords,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = &jobEntry{
		job:     job,
		results: make(map[int]model.RecordResult),
	}
	s.mu.Unlock()

	return job.ID, nil
}

func (s *MemoryStore) entry(jobID string) (*jobEntry, error) {
	s.mu.RLock()
	e, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return e, nil
}

func (s *MemoryStore) setStatus(jobID string, status model.BatchJobStatus, message string) error {
	e, err := s.entry(jobID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.job.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.job.Status, status)
	}
	e.job.Status = status
	e.job.FailureMessage = message
	e.job.UpdatedAt = s.now().UTC()
	return nil
}

// SetRunning marks the job as running.
func (s *MemoryStore) SetRunning(_ context.Context, jobID string) error {
	return s.setStatus(jobID, model.BatchJobRunning, "")
}

// SetCompleted marks the job as completed.
func (s *MemoryStore) SetCompleted(_ context.Context, jobID string) error {
	return s.setStatus(jobID, model.BatchJobCompleted, "")
}

// SetFailed marks the job as failed with a message.
func (s *MemoryStore) SetFailed(_ context.Context, jobID, message string) error {
	return s.setStatus(jobID, model.BatchJobFailed, message)
}

// AppendResult records one record outcome and bumps the job's counters.
func (s *MemoryStore) AppendResult(_ context.Context, result model.RecordResult) error {
	e, err := s.entry(result.JobID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.results[result.Index]; exists {
		return fmt.Errorf("%w: index %d", ErrResultExists, result.Index)
	}
	e.results[result.Index] = result
	if result.Success {
		e.job.CompletedCount++
		e.job.TotalTokensUsed += result.TokensUsed
	} else {
		e.job.FailedCount++
	}
	e.job.UpdatedAt = s.now().UTC()
	return nil
}

// GetJob returns a copy of the job's aggregate state.
func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*model.BatchJob, error) {
	e, err := s.entry(jobID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	job := e.job
	e.mu.Unlock()
	return &job, nil
}

// ListResults returns the job's results ordered by record index.
func (s *MemoryStore) ListResults(_ context.Context, jobID string) ([]model.RecordResult, error) {
	e, err := s.entry(jobID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	results := make([]model.RecordResult, 0, len(e.results))
	for _, r := range e.results {
		results = append(results, r)
	}
	e.mu.Unlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results, nil
}

// ListJobs returns up to limit jobs, most recently created first.
func (s *MemoryStore) ListJobs(_ context.Context, limit int) ([]model.BatchJob, error) {
	s.mu.RLock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	jobs := make([]model.BatchJob, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		jobs = append(jobs, e.job)
		e.mu.Unlock()
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Health always succeeds: there is no external dependency to probe.
func (s *MemoryStore) Health(_ context.Context) error {
	return nil
}
