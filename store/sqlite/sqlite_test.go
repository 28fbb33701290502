package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/store"
)

func newTestStore(t *testing.T) *SqliteCheckpointStore {
	t.Helper()
	s, err := NewSqliteCheckpointStore(SqliteOptions{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func checkpointFor(id, threadID, node string, step int) *store.Checkpoint {
	return &store.Checkpoint{
		ID:        id,
		ThreadID:  threadID,
		RunID:     "run-1",
		NodeName:  node,
		State:     map[string]any{"next": node},
		Timestamp: time.Now().UTC(),
		Step:      step,
	}
}

func TestSqliteCheckpointStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp := checkpointFor("cp-1", "thread-1", "intent_recognizer", 1)
	cp.Metadata = map[string]any{"source": "test"}
	require.NoError(t, s.Save(ctx, cp))

	loaded, err := s.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", loaded.ThreadID)
	assert.Equal(t, "intent_recognizer", loaded.NodeName)
	assert.Equal(t, 1, loaded.Step)
	assert.Equal(t, "test", loaded.Metadata["source"])

	state, ok := loaded.State.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "intent_recognizer", state["next"])
}

func TestSqliteCheckpointStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)
}

func TestSqliteCheckpointStore_SaveUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, checkpointFor("cp-1", "thread-1", "intent_recognizer", 1)))
	require.NoError(t, s.Save(ctx, checkpointFor("cp-1", "thread-1", "general_agent", 2)))

	loaded, err := s.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "general_agent", loaded.NodeName)
	assert.Equal(t, 2, loaded.Step)
}

func TestSqliteCheckpointStore_ListOrderedByStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, checkpointFor("cp-2", "thread-1", "general_agent", 2)))
	require.NoError(t, s.Save(ctx, checkpointFor("cp-1", "thread-1", "intent_recognizer", 1)))
	require.NoError(t, s.Save(ctx, checkpointFor("cp-3", "thread-2", "other_agent", 1)))

	list, err := s.List(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "intent_recognizer", list[0].NodeName)
	assert.Equal(t, "general_agent", list[1].NodeName)
}

func TestSqliteCheckpointStore_DeleteAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, checkpointFor("cp-1", "thread-1", "intent_recognizer", 1)))
	require.NoError(t, s.Save(ctx, checkpointFor("cp-2", "thread-1", "general_agent", 2)))

	require.NoError(t, s.Delete(ctx, "cp-1"))
	_, err := s.Load(ctx, "cp-1")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)

	require.NoError(t, s.Clear(ctx, "thread-1"))
	list, err := s.List(ctx, "thread-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
