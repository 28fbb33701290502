package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SessionLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "", map[string]string{"source": "test"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.SessionID)
	assert.Equal(t, 0, created.MessageCount)

	loaded, err := s.GetSession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, created.SessionID, loaded.SessionID)
	assert.Equal(t, "test", loaded.Metadata["source"])

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_CreateWithExplicitID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "my-session", nil)
	require.NoError(t, err)
	assert.Equal(t, "my-session", created.SessionID)

	_, err = s.CreateSession(ctx, "my-session", nil)
	assert.Error(t, err)
}

// Two sequential calls on one session: the second call's loaded history
// contains exactly the two messages persisted by the first, chronologically.
func TestMemoryStore_HistoryAcrossCalls(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "", nil)
	require.NoError(t, err)

	require.NoError(t, s.AddMessage(ctx, &ChatMessage{
		SessionID: created.SessionID,
		Role:      "user",
		Content:   "Hello",
	}))
	require.NoError(t, s.AddMessage(ctx, &ChatMessage{
		SessionID: created.SessionID,
		Role:      "assistant",
		Content:   "Hi there!",
	}))

	msgs, err := s.GetMessages(ctx, created.SessionID, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, "Hi there!", msgs[1].Content)
	assert.Less(t, msgs[0].Timestamp, msgs[1].Timestamp)
	assert.NotEmpty(t, msgs[0].MessageID)

	sess, err := s.GetSession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, sess.MessageCount)
}

func TestMemoryStore_AddMessageUnknownSession(t *testing.T) {
	s := NewMemoryStore()
	err := s.AddMessage(context.Background(), &ChatMessage{SessionID: "nope", Role: "user", Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetMessagesLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "", nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AddMessage(ctx, &ChatMessage{
			SessionID: created.SessionID,
			Role:      "user",
			Content:   "m",
		}))
	}

	msgs, err := s.GetMessages(ctx, created.SessionID, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	// Most recent messages survive the limit, oldest are cut.
	for i := 1; i < len(msgs); i++ {
		assert.Less(t, msgs[i-1].Timestamp, msgs[i].Timestamp)
	}
}

func TestMemoryStore_ListSessionsMostRecentFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.CreateSession(ctx, "first", nil)
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, "second", nil)
	require.NoError(t, err)

	// Touch the first session so it becomes the most recently updated.
	require.NoError(t, s.AddMessage(ctx, &ChatMessage{
		SessionID: first.SessionID,
		Role:      "user",
		Content:   "bump",
	}))

	sessions, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "first", sessions[0].SessionID)
}

// Deleting a session removes it from listing and cascades to its history.
func TestMemoryStore_DeleteCascades(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "", nil)
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(ctx, &ChatMessage{
		SessionID: created.SessionID,
		Role:      "user",
		Content:   "hello",
	}))

	require.NoError(t, s.DeleteSession(ctx, created.SessionID))

	_, err = s.GetSession(ctx, created.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)

	sessions, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	msgs, err := s.GetMessages(ctx, created.SessionID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, s.DeleteSession(ctx, created.SessionID), ErrNotFound)
}

func TestNextTimestamp_Monotonic(t *testing.T) {
	last := ""
	for i := 0; i < 100; i++ {
		ts := NextTimestamp(last)
		assert.Greater(t, ts, last)
		last = ts
	}
}
