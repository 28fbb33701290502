package session

import (
	"context"
	"errors"
	"sync"

	"shopchat/log"
)

// Status describes which backend a store is serving from.
type Status struct {
	Backend  string `json:"backend"`
	Degraded bool   `json:"degraded"`
}

// FallbackStore serves from a durable primary store and degrades to an
// ephemeral fallback for the remainder of the process lifetime when the
// primary becomes unreachable. The transition is one-way and logged once;
// ErrNotFound is a normal answer and never triggers it.
type FallbackStore struct {
	primary  Store
	fallback Store
	name     string
	logger   log.Logger

	mu       sync.RWMutex
	degraded bool
}

var _ Store = (*FallbackStore)(nil)

// NewFallbackStore wraps primary with fallback. name labels the primary
// backend in the health surface (e.g. "dynamodb"). The primary is pinged
// immediately so a store that is down at startup degrades before serving.
func NewFallbackStore(ctx context.Context, primary, fallback Store, name string, logger log.Logger) *FallbackStore {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	s := &FallbackStore{
		primary:  primary,
		fallback: fallback,
		name:     name,
		logger:   logger,
	}
	if err := primary.Ping(ctx); err != nil {
		s.degrade(err)
	}
	return s
}

// Status reports the active backend and whether degradation has occurred.
func (s *FallbackStore) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.degraded {
		return Status{Backend: "memory", Degraded: true}
	}
	return Status{Backend: s.name, Degraded: false}
}

func (s *FallbackStore) active() (Store, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.degraded {
		return s.fallback, true
	}
	return s.primary, false
}

// degrade flips to the fallback store permanently.
func (s *FallbackStore) degrade(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return
	}
	s.degraded = true
	s.logger.Warn("session: %s unreachable, falling back to in-memory store: %v", s.name, cause)
}

// retryable reports whether an error should trigger degradation. Not-found
// and caller mistakes are answers, not outages.
func retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound)
}

// CreateSession creates a session on the active backend.
func (s *FallbackStore) CreateSession(ctx context.Context, sessionID string, metadata map[string]string) (*Session, error) {
	st, degraded := s.active()
	sess, err := st.CreateSession(ctx, sessionID, metadata)
	if !degraded && retryable(err) {
		s.degrade(err)
		return s.fallback.CreateSession(ctx, sessionID, metadata)
	}
	return sess, err
}

// GetSession returns a session from the active backend.
func (s *FallbackStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	st, degraded := s.active()
	sess, err := st.GetSession(ctx, sessionID)
	if !degraded && retryable(err) {
		s.degrade(err)
		return s.fallback.GetSession(ctx, sessionID)
	}
	return sess, err
}

// ListSessions lists sessions from the active backend.
func (s *FallbackStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	st, degraded := s.active()
	sessions, err := st.ListSessions(ctx, limit)
	if !degraded && retryable(err) {
		s.degrade(err)
		return s.fallback.ListSessions(ctx, limit)
	}
	return sessions, err
}

// DeleteSession deletes from the active backend.
func (s *FallbackStore) DeleteSession(ctx context.Context, sessionID string) error {
	st, degraded := s.active()
	err := st.DeleteSession(ctx, sessionID)
	if !degraded && retryable(err) {
		s.degrade(err)
		return s.fallback.DeleteSession(ctx, sessionID)
	}
	return err
}

// AddMessage appends to the active backend.
func (s *FallbackStore) AddMessage(ctx context.Context, msg *ChatMessage) error {
	st, degraded := s.active()
	err := st.AddMessage(ctx, msg)
	if !degraded && retryable(err) {
		s.degrade(err)
		return s.fallback.AddMessage(ctx, msg)
	}
	return err
}

// GetMessages reads from the active backend.
func (s *FallbackStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	st, degraded := s.active()
	msgs, err := st.GetMessages(ctx, sessionID, limit)
	if !degraded && retryable(err) {
		s.degrade(err)
		return s.fallback.GetMessages(ctx, sessionID, limit)
	}
	return msgs, err
}

// Ping reports reachability of the active backend.
func (s *FallbackStore) Ping(ctx context.Context) error {
	st, _ := s.active()
	return st.Ping(ctx)
}
