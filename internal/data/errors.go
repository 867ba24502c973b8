// Package data provides the storage backends for batch jobs and analysis
// result caching.
package data

import "errors"

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrResultExists is returned when a result for the same record index was
	// already recorded. Appends are first-write-wins so counters stay monotone.
	ErrResultExists = errors.New("result already recorded for record index")
	// ErrInvalidTransition is returned when a status change would move a job
	// backwards, e.g. from a terminal status back to running.
	ErrInvalidTransition = errors.New("invalid job status transition")
)
