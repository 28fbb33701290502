package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoDBStore.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoDBStore persists sessions and message history in two tables: a
// session table keyed by session_id and a history table keyed by
// (session_id, timestamp).
type DynamoDBStore struct {
	api          dynamodbAPI
	sessionTable string
	historyTable string

	// Per-session last timestamp handed out by this process, so messages
	// written within clock resolution still get distinct sort keys.
	mu     sync.Mutex
	lastTS map[string]string
}

var _ Store = (*DynamoDBStore)(nil)

// NewDynamoDBStore creates a session store over the given tables.
func NewDynamoDBStore(api dynamodbAPI, sessionTable, historyTable string) (*DynamoDBStore, error) {
	if api == nil {
		return nil, errors.New("session: dynamodb api must not be nil")
	}
	if strings.TrimSpace(sessionTable) == "" || strings.TrimSpace(historyTable) == "" {
		return nil, errors.New("session: table names must not be empty")
	}
	return &DynamoDBStore{
		api:          api,
		sessionTable: sessionTable,
		historyTable: historyTable,
		lastTS:       make(map[string]string),
	}, nil
}

// CreateSession creates a session, generating an identifier when none is given.
func (s *DynamoDBStore) CreateSession(ctx context.Context, sessionID string, metadata map[string]string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := Now()
	sess := &Session{
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.sessionTable),
		Item:                sessionItem(sess),
		ConditionExpression: aws.String("attribute_not_exists(session_id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("session: CreateSession: %w", err)
	}
	return sess, nil
}

// GetSession returns a session or ErrNotFound.
func (s *DynamoDBStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.sessionTable),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session: GetSession: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return itemToSession(out.Item)
}

// ListSessions scans the session table and sorts client-side by most recent
// activity. The session table has no index on updated_at; list volume is
// small enough that a scan is the simpler trade.
func (s *DynamoDBStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = DefaultSessionLimit
	}

	out, err := s.api.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.sessionTable),
	})
	if err != nil {
		return nil, fmt.Errorf("session: ListSessions: %w", err)
	}

	sessions := make([]*Session, 0, len(out.Items))
	for _, item := range out.Items {
		sess, err := itemToSession(item)
		if err != nil {
			return nil, fmt.Errorf("session: ListSessions: %w", err)
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt > sessions[j].UpdatedAt
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// DeleteSession removes the session record and every history item under it.
func (s *DynamoDBStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}

	// Cascade: collect the history keys, then delete item by item.
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.historyTable),
		KeyConditionExpression: aws.String("session_id = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: sessionID},
		},
		ProjectionExpression:     aws.String("session_id, #ts"),
		ExpressionAttributeNames: map[string]string{"#ts": "timestamp"},
	})
	if err != nil {
		return fmt.Errorf("session: DeleteSession query history: %w", err)
	}

	for _, item := range out.Items {
		ts, err := strAttr(item, "timestamp")
		if err != nil {
			return fmt.Errorf("session: DeleteSession: %w", err)
		}
		_, err = s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.historyTable),
			Key: map[string]types.AttributeValue{
				"session_id": &types.AttributeValueMemberS{Value: sessionID},
				"timestamp":  &types.AttributeValueMemberS{Value: ts},
			},
		})
		if err != nil {
			return fmt.Errorf("session: DeleteSession delete message: %w", err)
		}
	}

	_, err = s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.sessionTable),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return fmt.Errorf("session: DeleteSession delete session: %w", err)
	}

	s.mu.Lock()
	delete(s.lastTS, sessionID)
	s.mu.Unlock()
	return nil
}

// AddMessage writes a history item and bumps the session's count and
// activity marker.
func (s *DynamoDBStore) AddMessage(ctx context.Context, msg *ChatMessage) error {
	if msg.SessionID == "" {
		return errors.New("session: AddMessage: session_id is required")
	}

	if msg.Timestamp == "" {
		s.mu.Lock()
		msg.Timestamp = NextTimestamp(s.lastTS[msg.SessionID])
		s.lastTS[msg.SessionID] = msg.Timestamp
		s.mu.Unlock()
	}
	if msg.MessageID == "" {
		msg.MessageID = NewMessageID()
	}

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.historyTable),
		Item:      messageItem(msg),
	})
	if err != nil {
		return fmt.Errorf("session: AddMessage put: %w", err)
	}

	_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.sessionTable),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: msg.SessionID},
		},
		UpdateExpression: aws.String("SET updated_at = :u ADD message_count :inc"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":   &types.AttributeValueMemberS{Value: Now()},
			":inc": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		return fmt.Errorf("session: AddMessage update session: %w", err)
	}
	return nil
}

// GetMessages queries newest-first so the limit favors recent context, then
// reverses to chronological order.
func (s *DynamoDBStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.historyTable),
		KeyConditionExpression: aws.String("session_id = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: sessionID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("session: GetMessages: %w", err)
	}

	msgs := make([]ChatMessage, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("session: GetMessages: %w", err)
		}
		msgs = append(msgs, msg)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Ping verifies the session table is reachable.
func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.sessionTable),
	})
	if err != nil {
		return fmt.Errorf("session: ping: %w", err)
	}
	return nil
}

func sessionItem(sess *Session) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"session_id":    &types.AttributeValueMemberS{Value: sess.SessionID},
		"created_at":    &types.AttributeValueMemberS{Value: sess.CreatedAt},
		"updated_at":    &types.AttributeValueMemberS{Value: sess.UpdatedAt},
		"message_count": &types.AttributeValueMemberN{Value: strconv.Itoa(sess.MessageCount)},
	}
	if len(sess.Metadata) > 0 {
		item["metadata"] = metadataAttr(sess.Metadata)
	}
	return item
}

func messageItem(msg *ChatMessage) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: msg.SessionID},
		"timestamp":  &types.AttributeValueMemberS{Value: msg.Timestamp},
		"message_id": &types.AttributeValueMemberS{Value: msg.MessageID},
		"role":       &types.AttributeValueMemberS{Value: msg.Role},
		"content":    &types.AttributeValueMemberS{Value: msg.Content},
	}
	if len(msg.Metadata) > 0 {
		item["metadata"] = metadataAttr(msg.Metadata)
	}
	return item
}

func metadataAttr(metadata map[string]string) *types.AttributeValueMemberM {
	m := make(map[string]types.AttributeValue, len(metadata))
	for k, v := range metadata {
		m[k] = &types.AttributeValueMemberS{Value: v}
	}
	return &types.AttributeValueMemberM{Value: m}
}

func itemToSession(item map[string]types.AttributeValue) (*Session, error) {
	sessionID, err := strAttr(item, "session_id")
	if err != nil {
		return nil, err
	}
	createdAt, err := strAttr(item, "created_at")
	if err != nil {
		return nil, err
	}
	updatedAt, err := strAttr(item, "updated_at")
	if err != nil {
		return nil, err
	}
	count, err := intAttr(item, "message_count")
	if err != nil {
		return nil, err
	}

	return &Session{
		SessionID:    sessionID,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		MessageCount: count,
		Metadata:     metadataValue(item),
	}, nil
}

func itemToMessage(item map[string]types.AttributeValue) (ChatMessage, error) {
	sessionID, err := strAttr(item, "session_id")
	if err != nil {
		return ChatMessage{}, err
	}
	ts, err := strAttr(item, "timestamp")
	if err != nil {
		return ChatMessage{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return ChatMessage{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return ChatMessage{}, err
	}
	messageID, _ := strAttr(item, "message_id") // allow empty

	return ChatMessage{
		SessionID: sessionID,
		Timestamp: ts,
		MessageID: messageID,
		Role:      role,
		Content:   content,
		Metadata:  metadataValue(item),
	}, nil
}

func metadataValue(item map[string]types.AttributeValue) map[string]string {
	raw, ok := item["metadata"].(*types.AttributeValueMemberM)
	if !ok || len(raw.Value) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw.Value))
	for k, v := range raw.Value {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			out[k] = s.Value
		}
	}
	return out
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, nil
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
