package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"shopchat/store"
)

// MemoryCheckpointStore implements store.CheckpointStore in process memory.
// Safe for concurrent use by multiple runs.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint
	threads     map[string][]string // thread ID -> checkpoint IDs in insert order
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates a new in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
		threads:     make(map[string][]string),
	}
}

// Save stores a checkpoint.
func (s *MemoryCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("checkpoint must have an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *checkpoint
	if _, exists := s.checkpoints[cp.ID]; !exists && cp.ThreadID != "" {
		s.threads[cp.ThreadID] = append(s.threads[cp.ThreadID], cp.ID)
	}
	s.checkpoints[cp.ID] = &cp
	return nil
}

// Load retrieves a checkpoint by ID.
func (s *MemoryCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
	}
	out := *cp
	return &out, nil
}

// List returns all checkpoints for a thread, ordered by step then timestamp.
func (s *MemoryCheckpointStore) List(ctx context.Context, threadID string) ([]*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.threads[threadID]
	out := make([]*store.Checkpoint, 0, len(ids))
	for _, id := range ids {
		if cp, ok := s.checkpoints[id]; ok {
			c := *cp
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Step != out[j].Step {
			return out[i].Step < out[j].Step
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Delete removes a checkpoint.
func (s *MemoryCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
	}
	delete(s.checkpoints, checkpointID)

	ids := s.threads[cp.ThreadID]
	for i, id := range ids {
		if id == checkpointID {
			s.threads[cp.ThreadID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes all checkpoints for a thread.
func (s *MemoryCheckpointStore) Clear(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.threads[threadID] {
		delete(s.checkpoints, id)
	}
	delete(s.threads, threadID)
	return nil
}
