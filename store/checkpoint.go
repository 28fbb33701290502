package store

import (
	"context"
	"errors"
	"time"
)

// ErrCheckpointNotFound is returned when a checkpoint ID does not exist.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Checkpoint is a snapshot of the workflow state after one node step.
// ThreadID groups the checkpoints of all runs belonging to one conversation,
// RunID groups the steps of a single invocation.
type Checkpoint struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	RunID     string         `json:"run_id"`
	NodeName  string         `json:"node_name"`
	State     any            `json:"state"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Step      int            `json:"step"`
}

// CheckpointStore defines the interface for checkpoint persistence.
type CheckpointStore interface {
	// Save stores a checkpoint.
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID.
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// List returns all checkpoints for a thread, ordered by step then timestamp.
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// Delete removes a checkpoint.
	Delete(ctx context.Context, checkpointID string) error

	// Clear removes all checkpoints for a thread.
	Clear(ctx context.Context, threadID string) error
}
