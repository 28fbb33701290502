package memstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed Store. Each namespace maps to a Redis list and
// records are appended with RPUSH, so concurrent appends from multiple runs
// need no coordination.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// RedisStoreOptions configuration for the Redis connection.
type RedisStoreOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // Key prefix, default "shopchat:mem:"
}

// NewRedisStore creates a Redis-backed long-term store.
func NewRedisStore(opts RedisStoreOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "shopchat:mem:"
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) listKey(namespace []string) string {
	return s.prefix + namespaceKey(namespace)
}

// Put appends a record under the namespace.
func (s *RedisStore) Put(ctx context.Context, namespace []string, key string, value any) error {
	entry := Entry{
		Namespace: namespace,
		Key:       key,
		Value:     value,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal memory entry: %w", err)
	}
	if err := s.client.RPush(ctx, s.listKey(namespace), data).Err(); err != nil {
		return fmt.Errorf("failed to append memory entry: %w", err)
	}
	return nil
}

// List returns all records of a namespace in insertion order.
func (s *RedisStore) List(ctx context.Context, namespace []string) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, s.listKey(namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list memory entries: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal memory entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
