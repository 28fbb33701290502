// Package memstore provides the long-term memory store: an append-only,
// write-mostly record of every node's request/response exchange, keyed by a
// namespace and a timestamp. It is never consulted by routing logic; it
// exists as an audit trail for later inspection.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Entry is a single audit record.
type Entry struct {
	// Namespace identifies the writer, e.g. ("user", "queries") or
	// ("condition", "errors").
	Namespace []string `json:"namespace"`

	// Key is the entry timestamp in RFC3339Nano, unique within a namespace
	// for practical purposes and sortable chronologically.
	Key string `json:"key"`

	// Value is the recorded payload: request text, response text, or a
	// structured state snapshot.
	Value any `json:"value"`
}

// Store is the long-term memory interface. Put must be safe for concurrent
// use by independent runs without cross-run coordination; entries are never
// updated in place.
type Store interface {
	// Put appends a record under the namespace.
	Put(ctx context.Context, namespace []string, key string, value any) error

	// List returns all records of a namespace in insertion order.
	List(ctx context.Context, namespace []string) ([]Entry, error)
}

// Key returns a fresh chronological entry key.
func Key() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func namespaceKey(namespace []string) string {
	return strings.Join(namespace, "/")
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory long-term store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]Entry),
	}
}

// Put appends a record under the namespace.
func (s *MemoryStore) Put(ctx context.Context, namespace []string, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nk := namespaceKey(namespace)
	s.entries[nk] = append(s.entries[nk], Entry{
		Namespace: append([]string(nil), namespace...),
		Key:       key,
		Value:     value,
	})
	return nil
}

// List returns all records of a namespace in insertion order.
func (s *MemoryStore) List(ctx context.Context, namespace []string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.entries[namespaceKey(namespace)]
	out := make([]Entry, len(src))
	copy(out, src)
	return out, nil
}
