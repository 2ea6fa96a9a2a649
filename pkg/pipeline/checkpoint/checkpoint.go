package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Checkpoint is the persisted snapshot of a run.
// It contains everything needed to resume execution after a restart.
type Checkpoint struct {
	// Metadata
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	// Execution position
	Stage     string `json:"stage"`      // last completed stage
	NextStage string `json:"next_stage"` // stage to enter on resume, if suspended
	Pass      int    `json:"pass"`       // generation pass (0 = initial, +1 per regeneration)
	Status    string `json:"status"`     // run status at save time

	// Workflow state, serialized by the engine
	State json.RawMessage `json:"state"`
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// New creates a checkpoint for a run.
// State must already be JSON-serialized.
func New(runID string, sequence int, state []byte) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		RunID:     runID,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		State:     state,
	}
}

// WithPosition records the execution position.
func (c *Checkpoint) WithPosition(stage, nextStage string, pass int) *Checkpoint {
	c.Stage = stage
	c.NextStage = nextStage
	c.Pass = pass
	return c
}

// WithStatus records the run status at save time.
func (c *Checkpoint) WithStatus(status string) *Checkpoint {
	c.Status = status
	return c
}
