package models

import "time"

// Workspace is the materialized view of one request's or job's isolated
// working directory, owned by the Workspace Manager for the lifetime of a
// single request or job.
type Workspace struct {
	Path       string    `json:"path"`
	Files      []string  `json:"files"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	CleanupAt  time.Time `json:"cleanup_at"`
}

// ValidationResult is returned by the Workspace Manager's validate
// operation.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}
