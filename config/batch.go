package config

import (
	"fmt"
	"strings"
)

// StoreBackend selects the batch job storage implementation.
type StoreBackend string

const (
	// StoreMemory keeps jobs in process memory; state is lost on restart.
	StoreMemory StoreBackend = "memory"
	// StoreFile persists each job as a JSON file in a directory.
	StoreFile StoreBackend = "file"
	// StoreSQLite persists jobs in an embedded SQLite database.
	StoreSQLite StoreBackend = "sqlite"
)

// Valid returns true if the StoreBackend is a known value.
func (b StoreBackend) Valid() bool {
	return b == StoreMemory || b == StoreFile || b == StoreSQLite
}

// UnmarshalText implements encoding.TextUnmarshaler so the backend parses
// directly from the environment.
func (b *StoreBackend) UnmarshalText(text []byte) error {
	v := StoreBackend(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid store backend: %q (expected memory, file, or sqlite)", string(text))
	}
	*b = v
	return nil
}

// BatchConfig contains batch orchestration configuration.
type BatchConfig struct {
	// StoreBackend selects where jobs and results are stored.
	StoreBackend StoreBackend `env:"BATCH_STORE_BACKEND" envDefault:"memory"`

	// StorePath is the directory used by the file backend.
	StorePath string `env:"BATCH_STORE_PATH" envDefault:"data/batch_jobs"`

	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `env:"BATCH_SQLITE_PATH" envDefault:"data/batch.db"`

	// MaxConcurrentCalls bounds in-flight analysis calls per process.
	MaxConcurrentCalls int `env:"BATCH_MAX_CONCURRENT_CALLS" envDefault:"5"`

	// RecordRetryCount is the number of extra attempts after a transient
	// per-record failure.
	RecordRetryCount int `env:"BATCH_RECORD_RETRY_COUNT" envDefault:"1"`

	// MaxRecords caps the records accepted in one submission.
	MaxRecords int `env:"BATCH_MAX_RECORDS" envDefault:"500"`

	// CostPerThousandInputTokens and CostPerThousandOutputTokens drive the
	// status endpoint's cost estimate. Both zero disables the estimate.
	CostPerThousandInputTokens  float64 `env:"BATCH_COST_PER_1K_INPUT_TOKENS" envDefault:"0"`
	CostPerThousandOutputTokens float64 `env:"BATCH_COST_PER_1K_OUTPUT_TOKENS" envDefault:"0"`
}

// Sanitize applies guardrails to batch configuration values.
func (b *BatchConfig) Sanitize() {
	if !b.StoreBackend.Valid() {
		b.StoreBackend = StoreMemory
	}
	if b.MaxConcurrentCalls < 1 {
		b.MaxConcurrentCalls = 1
	}
	if b.RecordRetryCount < 0 {
		b.RecordRetryCount = 0
	}
	if b.MaxRecords < 1 {
		b.MaxRecords = 1
	}
	if b.CostPerThousandInputTokens < 0 {
		b.CostPerThousandInputTokens = 0
	}
	if b.CostPerThousandOutputTokens < 0 {
		b.CostPerThousandOutputTokens = 0
	}
}
