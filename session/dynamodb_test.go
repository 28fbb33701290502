package session

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	getOut      *dynamodb.GetItemOutput
	getErr      error
	putErr      error
	updateErr   error
	deleteErr   error
	queryOut    *dynamodb.QueryOutput
	queryErr    error
	scanOut     *dynamodb.ScanOutput
	scanErr     error
	describeErr error

	lastPut     *dynamodb.PutItemInput
	lastUpdate  *dynamodb.UpdateItemInput
	lastQuery   *dynamodb.QueryInput
	deletedKeys []map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getOut == nil {
		return &dynamodb.GetItemOutput{}, f.getErr
	}
	return f.getOut, f.getErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdate = in
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletedKeys = append(f.deletedKeys, in.Key)
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQuery = in
	if f.queryOut == nil {
		return &dynamodb.QueryOutput{}, f.queryErr
	}
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if f.scanOut == nil {
		return &dynamodb.ScanOutput{}, f.scanErr
	}
	return f.scanOut, f.scanErr
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, f.describeErr
}

func sessionItemFor(id, updatedAt string, count int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id":    &types.AttributeValueMemberS{Value: id},
		"created_at":    &types.AttributeValueMemberS{Value: "2026-08-29T10:00:00.000000000Z"},
		"updated_at":    &types.AttributeValueMemberS{Value: updatedAt},
		"message_count": &types.AttributeValueMemberN{Value: strconv.Itoa(count)},
	}
}

func messageItemFor(sessionID, ts, role, content string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: sessionID},
		"timestamp":  &types.AttributeValueMemberS{Value: ts},
		"message_id": &types.AttributeValueMemberS{Value: "msg-1"},
		"role":       &types.AttributeValueMemberS{Value: role},
		"content":    &types.AttributeValueMemberS{Value: content},
	}
}

func mustStore(t *testing.T, db *fakeDynamo) *DynamoDBStore {
	t.Helper()
	s, err := NewDynamoDBStore(db, "sessions-test", "history-test")
	require.NoError(t, err)
	return s
}

func TestNewDynamoDBStore_Validation(t *testing.T) {
	_, err := NewDynamoDBStore(nil, "a", "b")
	assert.Error(t, err)

	_, err = NewDynamoDBStore(&fakeDynamo{}, " ", "b")
	assert.Error(t, err)
}

func TestDynamoDBStore_CreateSession(t *testing.T) {
	db := &fakeDynamo{}
	s := mustStore(t, db)

	sess, err := s.CreateSession(context.Background(), "", map[string]string{"source": "api"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.SessionID)

	require.NotNil(t, db.lastPut)
	assert.Equal(t, "sessions-test", *db.lastPut.TableName)
	assert.Equal(t, "attribute_not_exists(session_id)", *db.lastPut.ConditionExpression)
	meta := db.lastPut.Item["metadata"].(*types.AttributeValueMemberM)
	assert.Equal(t, "api", meta.Value["source"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoDBStore_GetSession(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{
		Item: sessionItemFor("sess-1", "2026-08-29T11:00:00.000000000Z", 4),
	}}
	s := mustStore(t, db)

	sess, err := s.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.SessionID)
	assert.Equal(t, 4, sess.MessageCount)
}

func TestDynamoDBStore_GetSessionMissing(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	s := mustStore(t, db)

	_, err := s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoDBStore_ListSessionsSorted(t *testing.T) {
	db := &fakeDynamo{scanOut: &dynamodb.ScanOutput{
		Items: []map[string]types.AttributeValue{
			sessionItemFor("older", "2026-08-29T10:00:00.000000000Z", 1),
			sessionItemFor("newer", "2026-08-29T12:00:00.000000000Z", 2),
		},
	}}
	s := mustStore(t, db)

	sessions, err := s.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "newer", sessions[0].SessionID)
	assert.Equal(t, "older", sessions[1].SessionID)
}

func TestDynamoDBStore_AddMessage(t *testing.T) {
	db := &fakeDynamo{}
	s := mustStore(t, db)

	msg := &ChatMessage{SessionID: "sess-1", Role: "user", Content: "hello"}
	require.NoError(t, s.AddMessage(context.Background(), msg))

	assert.NotEmpty(t, msg.Timestamp)
	assert.NotEmpty(t, msg.MessageID)

	require.NotNil(t, db.lastPut)
	assert.Equal(t, "history-test", *db.lastPut.TableName)
	assert.Equal(t, "hello", db.lastPut.Item["content"].(*types.AttributeValueMemberS).Value)

	require.NotNil(t, db.lastUpdate)
	assert.Equal(t, "SET updated_at = :u ADD message_count :inc", *db.lastUpdate.UpdateExpression)
}

func TestDynamoDBStore_AddMessageTimestampsMonotonic(t *testing.T) {
	db := &fakeDynamo{}
	s := mustStore(t, db)

	first := &ChatMessage{SessionID: "sess-1", Role: "user", Content: "a"}
	second := &ChatMessage{SessionID: "sess-1", Role: "assistant", Content: "b"}
	require.NoError(t, s.AddMessage(context.Background(), first))
	require.NoError(t, s.AddMessage(context.Background(), second))

	assert.Less(t, first.Timestamp, second.Timestamp)
}

func TestDynamoDBStore_GetMessagesChronological(t *testing.T) {
	// The query runs newest-first; the store must reverse before returning.
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			messageItemFor("sess-1", "2026-08-29T12:00:00.000000000Z", "assistant", "newer"),
			messageItemFor("sess-1", "2026-08-29T11:00:00.000000000Z", "user", "older"),
		},
	}}
	s := mustStore(t, db)

	msgs, err := s.GetMessages(context.Background(), "sess-1", 20)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "older", msgs[0].Content)
	assert.Equal(t, "newer", msgs[1].Content)

	require.NotNil(t, db.lastQuery)
	assert.False(t, *db.lastQuery.ScanIndexForward)
}

func TestDynamoDBStore_DeleteSessionCascades(t *testing.T) {
	db := &fakeDynamo{
		getOut: &dynamodb.GetItemOutput{
			Item: sessionItemFor("sess-1", "2026-08-29T11:00:00.000000000Z", 2),
		},
		queryOut: &dynamodb.QueryOutput{
			Items: []map[string]types.AttributeValue{
				messageItemFor("sess-1", "ts-1", "user", "a"),
				messageItemFor("sess-1", "ts-2", "assistant", "b"),
			},
		},
	}
	s := mustStore(t, db)

	require.NoError(t, s.DeleteSession(context.Background(), "sess-1"))

	// Two history items plus the session record.
	assert.Len(t, db.deletedKeys, 3)
}

func TestDynamoDBStore_DeleteSessionMissing(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	s := mustStore(t, db)

	err := s.DeleteSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, db.deletedKeys)
}

func TestDynamoDBStore_Ping(t *testing.T) {
	s := mustStore(t, &fakeDynamo{})
	assert.NoError(t, s.Ping(context.Background()))

	down := mustStore(t, &fakeDynamo{describeErr: errors.New("ResourceNotFoundException")})
	assert.Error(t, down.Ping(context.Background()))
}
