// Package model defines the core data types used throughout the insight analysis service.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NoteList accepts either a single string or an array of strings on the wire.
// Blank notes are dropped during decoding so validation only sees real content.
type NoteList []string

// UnmarshalJSON implements json.Unmarshaler for NoteList.
func (n *NoteList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*n = nil
		if strings.TrimSpace(single) != "" {
			*n = NoteList{single}
		}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("notes must be a string or an array of strings: %w", err)
	}

	out := make(NoteList, 0, len(many))
	for _, note := range many {
		if strings.TrimSpace(note) != "" {
			out = append(out, note)
		}
	}
	*n = out
	return nil
}

// AnalyzeRequest is one unit of input: optional structured data plus free-text notes.
type AnalyzeRequest struct {
	StructuredData map[string]any `json:"structured_data,omitempty"`
	Notes          NoteList       `json:"notes"`
}

// Validate validates the AnalyzeRequest fields.
func (r *AnalyzeRequest) Validate() error {
	if len(r.Notes) == 0 {
		return errors.New("at least one note is required")
	}
	return nil
}

// Insight is a single extracted insight.
type Insight struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// NextAction is a suggested follow-up action.
type NextAction struct {
	Action    string `json:"action"`
	Priority  string `json:"priority"`
	Rationale string `json:"rationale,omitempty"`
}

// Metadata describes how an analysis was produced.
type Metadata struct {
	ConfidenceScore  float64   `json:"confidence_score"`
	ModelVersion     string    `json:"model_version"`
	ProcessingTimeMs float64   `json:"processing_time_ms,omitempty"`
	TokensUsed       int       `json:"tokens_used,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// AnalyzeResponse is the analysis outcome for a single record.
type AnalyzeResponse struct {
	Summary     string       `json:"summary"`
	Insights    []Insight    `json:"insights"`
	NextActions []NextAction `json:"next_actions"`
	Metadata    Metadata     `json:"metadata"`
}
