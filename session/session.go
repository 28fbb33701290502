// Package session provides the durable store for chat sessions and their
// message history. The primary backend is DynamoDB; an in-process backend
// covers tests and environments without durable storage, and FallbackStore
// degrades from one to the other at runtime.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// TimestampLayout is the fixed-width ISO-8601 format used for message sort
// keys. Fixed width keeps lexicographic and chronological order identical,
// which the history sort key depends on.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// Default page sizes at the session-management boundary.
const (
	DefaultSessionLimit = 20
	DefaultMessageLimit = 50
)

// Session is a durable, caller-visible conversation identity spanning
// multiple runs.
type Session struct {
	SessionID    string            `json:"session_id"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at"`
	MessageCount int               `json:"message_count"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ChatMessage is one persisted conversation turn. (SessionID, Timestamp) is
// the natural composite key; Timestamp is monotonically increasing per
// session so retrieval order is chronological.
type ChatMessage struct {
	SessionID string            `json:"session_id"`
	Timestamp string            `json:"timestamp"`
	MessageID string            `json:"message_id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Store is the session persistence interface. Implementations serialize
// reads and writes per session; no cross-session coordination is required.
type Store interface {
	// CreateSession creates a session. A generated identifier is assigned
	// when sessionID is empty.
	CreateSession(ctx context.Context, sessionID string, metadata map[string]string) (*Session, error)

	// GetSession returns a session or ErrNotFound.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// ListSessions returns up to limit sessions, most recently updated
	// first. limit <= 0 uses DefaultSessionLimit.
	ListSessions(ctx context.Context, limit int) ([]*Session, error)

	// DeleteSession removes a session and all its messages.
	DeleteSession(ctx context.Context, sessionID string) error

	// AddMessage appends a message to a session's history, assigning the
	// timestamp and message ID when unset, and bumps the session's
	// message count and activity marker.
	AddMessage(ctx context.Context, msg *ChatMessage) error

	// GetMessages returns the most recent limit messages of a session in
	// chronological order. limit <= 0 uses DefaultMessageLimit.
	GetMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// Now returns the current time in the store's timestamp format.
func Now() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// NextTimestamp returns a timestamp strictly greater than last. Needed when
// two messages of one session land inside clock resolution, which would
// otherwise collide on the (session_id, timestamp) composite key.
func NextTimestamp(last string) string {
	candidate := Now()
	if last == "" || candidate > last {
		return candidate
	}
	prev, err := time.Parse(TimestampLayout, last)
	if err != nil {
		return candidate
	}
	return prev.Add(time.Nanosecond).Format(TimestampLayout)
}

// NewMessageID generates a message identifier.
func NewMessageID() string {
	return uuid.New().String()
}
