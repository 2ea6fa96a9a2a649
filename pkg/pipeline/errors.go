package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine construction.
var (
	// ErrNilRouter indicates the engine was constructed without a model router.
	ErrNilRouter = errors.New("model router cannot be nil")

	// ErrNilGenerator indicates the engine was constructed without an image generator.
	ErrNilGenerator = errors.New("image generator cannot be nil")

	// ErrNilStore indicates the engine was constructed without a checkpoint store.
	ErrNilStore = errors.New("checkpoint store cannot be nil")
)

// Sentinel errors for execution and resume.
var (
	// ErrEmptyTopic indicates Execute was called with no topic.
	ErrEmptyTopic = errors.New("topic cannot be empty")

	// ErrRunNotFound indicates no checkpoint exists for the run.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinalized indicates a resume was attempted on a completed run.
	ErrRunFinalized = errors.New("run already finalized")

	// ErrRunFailed indicates a resume was attempted on a run in error state.
	ErrRunFailed = errors.New("run is in error state")

	// ErrInvalidDecision indicates a review patch carried a status other
	// than approved or rejected.
	ErrInvalidDecision = errors.New("review decision must be approved or rejected")
)

// StageError wraps an error with the stage that produced it.
type StageError struct {
	// Stage is the name of the stage that failed.
	Stage string
	// Err is the underlying error from the stage function.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StageError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised inside a stage function.
type PanicError struct {
	// Stage is the stage that panicked.
	Stage string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("stage %s panicked: %v", e.Stage, e.Value)
}

// CheckpointError wraps a checkpoint persistence failure. Checkpoint
// writes are load-bearing for suspend/resume, so these are always fatal
// for the run.
type CheckpointError struct {
	// RunID identifies the run whose checkpoint failed.
	RunID string
	// Op is the operation that failed ("serialize", "marshal", "put", "get").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s for run %s: %v", e.Op, e.RunID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// StageTableError reports an invalid stage table at engine construction.
type StageTableError struct {
	// Stage is the stage whose definition is invalid.
	Stage string
	// Reason describes the problem.
	Reason string
}

// Error implements the error interface.
func (e *StageTableError) Error() string {
	return fmt.Sprintf("stage table: %s: %s", e.Stage, e.Reason)
}
