package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insightlab/insightd/internal/domain/model"
)

// persistedResult is the on-disk shape of one record result. Unlike the API
// shape it keeps per-result token counts so a reloaded job is identical to
// the one that was written.
type persistedResult struct {
	Index      int                    `json:"record_index"`
	Success    bool                   `json:"success"`
	Response   *model.AnalyzeResponse `json:"response,omitempty"`
	Error      string                 `json:"error,omitempty"`
	TokensUsed int                    `json:"tokens_used,omitempty"`
}

// persistedJob is the full on-disk state of one job: metadata plus all
// results collected so far.
type persistedJob struct {
	JobID           string                `json:"job_id"`
	Status          model.BatchJobStatus  `json:"status"`
	TotalRecords    int                   `json:"total_records"`
	CompletedCount  int                   `json:"completed_count"`
	FailedCount     int                   `json:"failed_count"`
	TotalTokensUsed int                   `json:"total_tokens_used"`
	FailureMessage  string                `json:"failure_message,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Results         []persistedResult    `json:"results"`
}

// FileStore persists each job to one JSON file named by job ID under a
// configured directory. Every mutation rewrites the job's file atomically
// (temp file + rename) before returning, so a restarted or concurrent reader
// always observes the latest durable state.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	cache map[string]*jobEntry
	now   func() time.Time
}

// NewFileStore creates a file-backed job store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FileStore{
		dir:   dir,
		cache: make(map[string]*jobEntry),
		now:   time.Now,
	}, nil
}

func (s *FileStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}

// CreateJob initializes a pending job, persists it, and returns its ID.
func (s *FileStore) CreateJob(_ context.Context, totalRecords int) (string, error) {
	now := s.now().UTC()
	e := &jobEntry{
		job: model.BatchJob{
			ID:           uuid.NewString(),
			Status:       model.BatchJobPending,
			TotalRecords: totalRecords,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		results: make(map[int]model.RecordResult),
	}

	if err := s.persistLocked(e); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.cache[e.job.ID] = e
	s.mu.Unlock()
	return e.job.ID, nil
}

// entry returns the cached job, loading it from disk on a miss so state
// written by a previous process run remains reachable.
func (s *FileStore) entry(jobID string) (*jobEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cache[jobID]; ok {
		return e, nil
	}

	e, err := s.load(jobID)
	if err != nil {
		return nil, err
	}
	s.cache[jobID] = e
	return e, nil
}

func (s *FileStore) load(jobID string) (*jobEntry, error) {
	raw, err := os.ReadFile(s.path(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("read job file: %w", err)
	}

	var p persistedJob
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode job file %s: %w", jobID, err)
	}

	e := &jobEntry{
		job: model.BatchJob{
			ID:              p.JobID,
			Status:          p.Status,
			TotalRecords:    p.TotalRecords,
			CompletedCount:  p.CompletedCount,
			FailedCount:     p.FailedCount,
			TotalTokensUsed: p.TotalTokensUsed,
			FailureMessage:  p.FailureMessage,
			CreatedAt:       p.CreatedAt,
			UpdatedAt:       p.UpdatedAt,
		},
		results: make(map[int]model.RecordResult, len(p.Results)),
	}
	for _, r := range p.Results {
		e.results[r.Index] = model.RecordResult{
			JobID:      p.JobID,
			Index:      r.Index,
			Success:    r.Success,
			Response:   r.Response,
			Error:      r.Error,
			TokensUsed: r.TokensUsed,
		}
	}
	return e, nil
}

// persistLocked writes the job's full state to disk atomically. Callers must
// hold the entry mutex (or own the entry exclusively, as in CreateJob).
func (s *FileStore) persistLocked(e *jobEntry) error {
	p := persistedJob{
		JobID:           e.job.ID,
		Status:          e.job.Status,
		TotalRecords:    e.job.TotalRecords,
		CompletedCount:  e.job.CompletedCount,
		FailedCount:     e.job.FailedCount,
		TotalTokensUsed: e.job.TotalTokensUsed,
		FailureMessage:  e.job.FailureMessage,
		CreatedAt:       e.job.CreatedAt,
		UpdatedAt:       e.job.UpdatedAt,
		Results:         make([]persistedResult, 0, len(e.results)),
	}
	for _, r := range e.results {
		p.Results = append(p.Results, persistedResult{
			Index:      r.Index,
			Success:    r.Success,
			Response:   r.Response,
			Error:      r.Error,
			TokensUsed: r.TokensUsed,
		})
	}
	sort.Slice(p.Results, func(i, j int) bool { return p.Results[i].Index < p.Results[j].Index })

	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job %s: %w", e.job.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, e.job.ID+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp job file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close job file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(e.job.ID)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace job file: %w", err)
	}
	return nil
}

func (s *FileStore) setStatus(jobID string, status model.BatchJobStatus, message string) error {
	e, err := s.entry(jobID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.job.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.job.Status, status)
	}
	prev := e.job
	e.job.Status = status
	e.job.FailureMessage = message
	e.job.UpdatedAt = s.now().UTC()
	if err := s.persistLocked(e); err != nil {
		e.job = prev
		return err
	}
	return nil
}

// SetRunning marks the job as running.
func (s *FileStore) SetRunning(_ context.Context, jobID string) error {
	return s.setStatus(jobID, model.BatchJobRunning, "")
}

// SetCompleted marks the job as completed.
func (s *FileStore) SetCompleted(_ context.Context, jobID string) error {
	return s.setStatus(jobID, model.BatchJobCompleted, "")
}

// SetFailed marks the job as failed with a message.
func (s *FileStore) SetFailed(_ context.Context, jobID, message string) error {
	return s.setStatus(jobID, model.BatchJobFailed, message)
}

// AppendResult records one record outcome, bumps counters, and rewrites the
// job file before returning so the result is durable once this call succeeds.
func (s *FileStore) AppendResult(_ context.Context, result model.RecordResult) error {
	e, err := s.entry(result.JobID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.results[result.Index]; exists {
		return fmt.Errorf("%w: index %d", ErrResultExists, result.Index)
	}

	prev := e.job
	e.results[result.Index] = result
	if result.Success {
		e.job.CompletedCount++
		e.job.TotalTokensUsed += result.TokensUsed
	} else {
		e.job.FailedCount++
	}
	e.job.UpdatedAt = s.now().UTC()

	if err := s.persistLocked(e); err != nil {
		delete(e.results, result.Index)
		e.job = prev
		return err
	}
	return nil
}

// GetJob returns the job's aggregate state, loading from disk if absent from
// the in-memory cache.
func (s *FileStore) GetJob(_ context.Context, jobID string) (*model.BatchJob, error) {
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
func (s *FileStore) ListResults(_ context.Context, jobID string) ([]model.RecordResult, error) {
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

// ListJobs scans the storage directory and returns up to limit jobs, most
// recently created first. Unparseable files are skipped rather than failing
// the whole listing.
func (s *FileStore) ListJobs(_ context.Context, limit int) ([]model.BatchJob, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage directory: %w", err)
	}

	jobs := make([]model.BatchJob, 0, len(entries))
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		e, loadErr := s.entry(strings.TrimSuffix(name, ".json"))
		if loadErr != nil {
			continue
		}
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

// Health verifies the storage directory is writable with a
// create-write-delete probe.
func (s *FileStore) Health(_ context.Context) error {
	probe, err := os.CreateTemp(s.dir, ".ready-probe-*")
	if err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	name := probe.Name()
	if _, err := probe.WriteString("ok"); err != nil {
		_ = probe.Close()
		_ = os.Remove(name)
		return fmt.Errorf("storage probe write: %w", err)
	}
	if err := probe.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("storage probe close: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("storage probe cleanup: %w", err)
	}
	return nil
}
