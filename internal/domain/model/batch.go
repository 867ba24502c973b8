package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// BatchJobStatus represents the lifecycle state of a batch job.
type BatchJobStatus string

const (
	// BatchJobPending indicates a job was created but dispatch has not started.
	BatchJobPending BatchJobStatus = "pending"
	// BatchJobRunning indicates record tasks are being dispatched or in flight.
	BatchJobRunning BatchJobStatus = "running"
	// BatchJobCompleted indicates every record was attempted to exhaustion.
	// Per-record failures do not prevent this status; they only raise FailedCount.
	BatchJobCompleted BatchJobStatus = "completed"
	// BatchJobFailed indicates the orchestration itself broke outside the
	// per-record boundary. This is a whole-batch abort, not a record failure.
	BatchJobFailed BatchJobStatus = "failed"
)

// Valid returns true if the BatchJobStatus is valid.
func (s BatchJobStatus) Valid() bool {
	return s == BatchJobPending || s == BatchJobRunning || s == BatchJobCompleted ||
		s == BatchJobFailed
}

// Terminal returns true if the status will never change again.
func (s BatchJobStatus) Terminal() bool {
	return s == BatchJobCompleted || s == BatchJobFailed
}

// CanTransitionTo reports whether moving from s to next is a forward transition.
// Status only moves pending -> running -> (completed|failed); terminal states
// never regress.
func (s BatchJobStatus) CanTransitionTo(next BatchJobStatus) bool {
	switch s {
	case BatchJobPending:
		return next == BatchJobRunning || next == BatchJobCompleted || next == BatchJobFailed
	case BatchJobRunning:
		return next == BatchJobCompleted || next == BatchJobFailed
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so statuses parse from storage.
func (s *BatchJobStatus) UnmarshalText(text []byte) error {
	v := BatchJobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid BatchJobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// BatchJob is one submitted batch of records and its aggregate progress.
//
// CompletedCount, FailedCount, and TotalTokensUsed are mutated only through
// the store's AppendResult and only grow; UpdatedAt refreshes on every mutation.
type BatchJob struct {
	ID              string         `json:"job_id"`
	Status          BatchJobStatus `json:"status"`
	TotalRecords    int            `json:"total_records"`
	CompletedCount  int            `json:"completed_count"`
	FailedCount     int            `json:"failed_count"`
	TotalTokensUsed int            `json:"total_tokens_used"`
	FailureMessage  string         `json:"failure_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// RecordResult is the durable outcome for one record of a batch.
// Index is the record's position in the original input sequence and is the
// stable identity of the result regardless of completion order.
type RecordResult struct {
	JobID      string           `json:"-"`
	Index      int              `json:"record_index"`
	Success    bool             `json:"success"`
	Response   *AnalyzeResponse `json:"response,omitempty"`
	Error      string           `json:"error,omitempty"`
	TokensUsed int              `json:"-"`
}

// BatchSubmitRequest is the payload for batch submission.
type BatchSubmitRequest struct {
	Records []AnalyzeRequest `json:"records"`
}

// Validate validates the BatchSubmitRequest against the configured record cap.
func (r *BatchSubmitRequest) Validate(maxRecords int) error {
	if len(r.Records) == 0 {
		return errors.New("at least one record is required")
	}
	if maxRecords > 0 && len(r.Records) > maxRecords {
		return fmt.Errorf("too many records: %d exceeds limit of %d", len(r.Records), maxRecords)
	}
	for i := range r.Records {
		if err := r.Records[i].Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// BatchSubmitResponse acknowledges an accepted batch.
type BatchSubmitResponse struct {
	JobID        string         `json:"job_id"`
	Status       BatchJobStatus `json:"status"`
	TotalRecords int            `json:"total_records"`
	Message      string         `json:"message"`
}

// BatchStatusResponse is the polled view of a job: aggregate progress plus all
// results persisted so far, ordered by record index. The results list grows
// monotonically across polls while the job runs.
type BatchStatusResponse struct {
	JobID           string         `json:"job_id"`
	Status          BatchJobStatus `json:"status"`
	TotalRecords    int            `json:"total_records"`
	CompletedCount  int            `json:"completed_count"`
	FailedCount     int            `json:"failed_count"`
	ProgressPercent float64        `json:"progress_percent"`
	TotalTokensUsed int            `json:"total_tokens_used"`
	EstimatedCost   *float64       `json:"estimated_cost,omitempty"`
	FailureMessage  string         `json:"failure_message,omitempty"`
	Results         []RecordResult `json:"results"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// BatchJobList wraps job summaries for the jobs listing endpoint.
type BatchJobList struct {
	Jobs []BatchJob `json:"jobs"`
}
