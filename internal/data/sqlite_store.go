package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the pure-Go "sqlite" driver

	"github.com/insightlab/insightd/internal/domain/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS batch_jobs (
  job_id            TEXT PRIMARY KEY,
  status            TEXT NOT NULL,
  total_records     INTEGER NOT NULL,
  completed_count   INTEGER NOT NULL DEFAULT 0,
  failed_count      INTEGER NOT NULL DEFAULT 0,
  total_tokens_used INTEGER NOT NULL DEFAULT 0,
  failure_message   TEXT NOT NULL DEFAULT '',
  created_at        TEXT NOT NULL,
  updated_at        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS batch_results (
  job_id        TEXT NOT NULL,
  record_index  INTEGER NOT NULL,
  success       INTEGER NOT NULL,
  response_json TEXT,
  error         TEXT,
  tokens_used   INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (job_id, record_index),
  FOREIGN KEY (job_id) REFERENCES batch_jobs(job_id)
);
CREATE INDEX IF NOT EXISTS idx_batch_results_job_id ON batch_results(job_id);
`

// sqliteTimeLayout is fixed-width (no trailing-zero trimming) so that
// lexicographic ORDER BY on the TEXT column matches chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists jobs and results to relational tables: one row per
// job in batch_jobs, one row per record result in batch_results keyed by
// (job_id, record_index). Counter updates and result inserts share one
// transaction, which serializes mutation per job.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// the schema exists. The parent directory is created when missing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under the runner's concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", closeErr))
		}
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateJob inserts a pending job row and returns its ID.
func (s *SQLiteStore) CreateJob(ctx context.Context, totalRecords int) (string, error) {
	id := uuid.NewString()
	now := s.now().UTC().Format(sqliteTimeLayout)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_jobs (job_id, status, total_records, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, model.BatchJobPending, totalRecords, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) setStatus(
	ctx context.Context,
	jobID string,
	status model.BatchJobStatus,
	message string,
) error {
	// The WHERE clause enforces forward-only transitions in the same
	// statement that applies them.
	var allowed []any
	switch status {
	case model.BatchJobRunning:
		allowed = []any{string(model.BatchJobPending)}
	case model.BatchJobCompleted, model.BatchJobFailed:
		allowed = []any{string(model.BatchJobPending), string(model.BatchJobRunning)}
	default:
		return fmt.Errorf("%w: cannot transition to %s", ErrInvalidTransition, status)
	}

	query := `
		UPDATE batch_jobs
		SET status = ?, failure_message = ?, updated_at = ?
		WHERE job_id = ? AND status IN (?` + repeatPlaceholders(len(allowed)-1) + `)`
	args := append(
		[]any{string(status), message, s.now().UTC().Format(sqliteTimeLayout), jobID},
		allowed...,
	)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.classifyStatusFailure(ctx, jobID, status)
	}
	return nil
}

func repeatPlaceholders(n int) string {
	out := ""
	for range n {
		out += ", ?"
	}
	return out
}

func (s *SQLiteStore) classifyStatusFailure(
	ctx context.Context,
	jobID string,
	status model.BatchJobStatus,
) error {
	var current string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM batch_jobs WHERE job_id = ?`, jobID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("query job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

// SetRunning marks the job as running.
func (s *SQLiteStore) SetRunning(ctx context.Context, jobID string) error {
	return s.setStatus(ctx, jobID, model.BatchJobRunning, "")
}

// SetCompleted marks the job as completed.
func (s *SQLiteStore) SetCompleted(ctx context.Context, jobID string) error {
	return s.setStatus(ctx, jobID, model.BatchJobCompleted, "")
}

// SetFailed marks the job as failed with a message.
func (s *SQLiteStore) SetFailed(ctx context.Context, jobID, message string) error {
	return s.setStatus(ctx, jobID, model.BatchJobFailed, message)
}

// AppendResult inserts the result row and bumps the job's counters in one
// transaction. A second append for the same index is rejected with
// ErrResultExists.
func (s *SQLiteStore) AppendResult(ctx context.Context, result model.RecordResult) error {
	var responseJSON sql.NullString
	if result.Response != nil {
		raw, err := json.Marshal(result.Response)
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		responseJSON = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM batch_jobs WHERE job_id = ?`, result.JobID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if exists == 0 {
		return ErrJobNotFound
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO batch_results (job_id, record_index, success, response_json, error, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id, record_index) DO NOTHING`,
		result.JobID, result.Index, boolToInt(result.Success), responseJSON, result.Error, result.TokensUsed,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if inserted == 0 {
		return fmt.Errorf("%w: index %d", ErrResultExists, result.Index)
	}

	completedDelta, failedDelta, tokensDelta := 0, 1, 0
	if result.Success {
		completedDelta, failedDelta, tokensDelta = 1, 0, result.TokensUsed
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE batch_jobs
		SET completed_count = completed_count + ?,
		    failed_count = failed_count + ?,
		    total_tokens_used = total_tokens_used + ?,
		    updated_at = ?
		WHERE job_id = ?`,
		completedDelta, failedDelta, tokensDelta,
		s.now().UTC().Format(sqliteTimeLayout), result.JobID,
	)
	if err != nil {
		return fmt.Errorf("update counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const jobColumns = `
  job_id, status, total_records, completed_count, failed_count,
  total_tokens_used, failure_message, created_at, updated_at
`

func scanJob(row interface{ Scan(...any) error }) (*model.BatchJob, error) {
	var (
		job                  model.BatchJob
		status               string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&job.ID, &status, &job.TotalRecords, &job.CompletedCount, &job.FailedCount,
		&job.TotalTokensUsed, &job.FailureMessage, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = model.BatchJobStatus(status)
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &job, nil
}

// GetJob returns the job's aggregate state, or ErrJobNotFound.
func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.BatchJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE job_id = ?`, jobID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

// ListResults returns the job's results ordered by record index.
func (s *SQLiteStore) ListResults(ctx context.Context, jobID string) ([]model.RecordResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_index, success, response_json, error, tokens_used
		FROM batch_results
		WHERE job_id = ?
		ORDER BY record_index`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.RecordResult
	for rows.Next() {
		var (
			r            model.RecordResult
			success      int
			responseJSON sql.NullString
		)
		if err := rows.Scan(&r.Index, &success, &responseJSON, &r.Error, &r.TokensUsed); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.JobID = jobID
		r.Success = success != 0
		if responseJSON.Valid && responseJSON.String != "" {
			var resp model.AnalyzeResponse
			if err := json.Unmarshal([]byte(responseJSON.String), &resp); err != nil {
				return nil, fmt.Errorf("decode response for index %d: %w", r.Index, err)
			}
			r.Response = &resp
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// ListJobs returns up to limit jobs, most recently created first.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]model.BatchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []model.BatchJob
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// Health pings the database.
func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
