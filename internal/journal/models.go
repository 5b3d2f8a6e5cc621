package journal

import (
	"strings"
	"time"
)

// Status is the outcome of a journaled request.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ParseStatus converts a string into a known status.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusSucceeded:
		return StatusSucceeded, true
	case StatusFailed:
		return StatusFailed, true
	}
	return "", false
}

// Entry is one finished request. Converted bytes are never stored.
type Entry struct {
	ID           int64     `json:"id" yaml:"id"`
	RequestID    string    `json:"request_id" yaml:"request_id"`
	Operation    string    `json:"operation" yaml:"operation"`
	Source       string    `json:"source,omitempty" yaml:"source,omitempty"`
	Sink         string    `json:"sink,omitempty" yaml:"sink,omitempty"`
	TargetFormat string    `json:"target_format,omitempty" yaml:"target_format,omitempty"`
	ImportFilter string    `json:"import_filter,omitempty" yaml:"import_filter,omitempty"`
	ExportFilter string    `json:"export_filter,omitempty" yaml:"export_filter,omitempty"`
	Status       Status    `json:"status" yaml:"status"`
	ErrorCode    string    `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	OutputBytes  int64     `json:"output_bytes" yaml:"output_bytes"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time `json:"finished_at" yaml:"finished_at"`
}

// Duration is how long the request took once it reached the worker.
func (e Entry) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.FinishedAt.Before(e.StartedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Summary aggregates the journal for status output.
type Summary struct {
	Total       int        `json:"total" yaml:"total"`
	Succeeded   int        `json:"succeeded" yaml:"succeeded"`
	Failed      int        `json:"failed" yaml:"failed"`
	LastFailure *time.Time `json:"last_failure,omitempty" yaml:"last_failure,omitempty"`
}
