package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store implementation, used in tests and as
// the degraded-mode target when durable storage is unreachable.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]ChatMessage
	lastTS   map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]ChatMessage),
		lastTS:   make(map[string]string),
	}
}

// CreateSession creates a session, generating an identifier when none is given.
func (s *MemoryStore) CreateSession(ctx context.Context, sessionID string, metadata map[string]string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if _, exists := s.sessions[sessionID]; exists {
		return nil, fmt.Errorf("session %s already exists", sessionID)
	}

	now := Now()
	sess := &Session{
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}
	s.sessions[sessionID] = sess

	copied := *sess
	return &copied, nil
}

// GetSession returns a session or ErrNotFound.
func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	copied := *sess
	return &copied, nil
}

// ListSessions returns up to limit sessions, most recently updated first.
func (s *MemoryStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = DefaultSessionLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		copied := *sess
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt > out[j].UpdatedAt
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteSession removes a session and all its messages.
func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	delete(s.lastTS, sessionID)
	return nil
}

// AddMessage appends a message and bumps the session's activity marker.
func (s *MemoryStore) AddMessage(ctx context.Context, msg *ChatMessage) error {
	if msg.SessionID == "" {
		return fmt.Errorf("message session_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[msg.SessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, msg.SessionID)
	}

	if msg.Timestamp == "" {
		msg.Timestamp = NextTimestamp(s.lastTS[msg.SessionID])
	}
	if msg.MessageID == "" {
		msg.MessageID = NewMessageID()
	}
	s.lastTS[msg.SessionID] = msg.Timestamp

	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], *msg)
	sess.MessageCount++
	sess.UpdatedAt = Now()
	return nil
}

// GetMessages returns the most recent limit messages in chronological order.
func (s *MemoryStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.messages[sessionID]
	if len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]ChatMessage, len(src))
	copy(out, src)
	return out, nil
}

// Ping always succeeds for the in-process store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
