// Package checkpoint provides persistent run-state storage for suspend/resume.
package checkpoint

import (
	"errors"
	"time"
)

// Store persists the latest checkpoint per run.
// A run has exactly one checkpoint; Put overwrites the previous snapshot.
// Implementations must be safe for concurrent use across runs. Concurrent
// writers for the same run must be serialized by the caller.
type Store interface {
	// Put stores the checkpoint for a run, replacing any previous one.
	Put(runID string, data []byte) error

	// Get retrieves the checkpoint for a run.
	// Returns ErrNotFound if the run has no checkpoint.
	Get(runID string) ([]byte, error)

	// List returns metadata for all stored runs, newest first.
	List() ([]Info, error)

	// Delete removes a run's checkpoint.
	// Returns nil if the run doesn't exist.
	Delete(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides run metadata without loading the full snapshot.
type Info struct {
	RunID     string
	UpdatedAt time.Time
	Size      int64
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates no checkpoint exists for the run.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)
