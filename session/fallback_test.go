package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/log"
)

// flakyStore fails every operation, standing in for an unreachable backend.
type flakyStore struct {
	pingErr error
	opErr   error
}

func (f *flakyStore) CreateSession(ctx context.Context, sessionID string, metadata map[string]string) (*Session, error) {
	return nil, f.opErr
}
func (f *flakyStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return nil, f.opErr
}
func (f *flakyStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	return nil, f.opErr
}
func (f *flakyStore) DeleteSession(ctx context.Context, sessionID string) error { return f.opErr }
func (f *flakyStore) AddMessage(ctx context.Context, msg *ChatMessage) error    { return f.opErr }
func (f *flakyStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	return nil, f.opErr
}
func (f *flakyStore) Ping(ctx context.Context) error { return f.pingErr }

func TestFallbackStore_HealthyPrimary(t *testing.T) {
	primary := NewMemoryStore()
	s := NewFallbackStore(context.Background(), primary, NewMemoryStore(), "dynamodb", &log.NoOpLogger{})

	status := s.Status()
	assert.Equal(t, "dynamodb", status.Backend)
	assert.False(t, status.Degraded)

	sess, err := s.CreateSession(context.Background(), "", nil)
	require.NoError(t, err)

	// The write landed on the primary.
	_, err = primary.GetSession(context.Background(), sess.SessionID)
	assert.NoError(t, err)
}

func TestFallbackStore_DegradesAtStartup(t *testing.T) {
	down := &flakyStore{pingErr: errors.New("unreachable"), opErr: errors.New("unreachable")}
	s := NewFallbackStore(context.Background(), down, NewMemoryStore(), "dynamodb", &log.NoOpLogger{})

	status := s.Status()
	assert.Equal(t, "memory", status.Backend)
	assert.True(t, status.Degraded)

	// Operations serve from the fallback.
	sess, err := s.CreateSession(context.Background(), "", nil)
	require.NoError(t, err)
	_, err = s.GetSession(context.Background(), sess.SessionID)
	assert.NoError(t, err)
}

func TestFallbackStore_DegradesMidFlight(t *testing.T) {
	// Ping succeeds at startup, then the backend goes away.
	down := &flakyStore{opErr: errors.New("connection reset")}
	s := NewFallbackStore(context.Background(), down, NewMemoryStore(), "dynamodb", &log.NoOpLogger{})
	require.False(t, s.Status().Degraded)

	_, err := s.CreateSession(context.Background(), "", nil)
	require.NoError(t, err)

	status := s.Status()
	assert.True(t, status.Degraded)
	assert.Equal(t, "memory", status.Backend)
}

func TestFallbackStore_NotFoundIsNotAnOutage(t *testing.T) {
	primary := NewMemoryStore()
	s := NewFallbackStore(context.Background(), primary, NewMemoryStore(), "dynamodb", &log.NoOpLogger{})

	_, err := s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, s.Status().Degraded)
}
