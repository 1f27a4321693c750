package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix namespaces document logs in a shared Redis instance.
const defaultKeyPrefix = "collab:doc:"

// RedisStore persists delta logs as Redis lists, one list per session.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the key prefix for document logs.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a document store over an existing Redis client.
// The store takes ownership of the client; Close closes it.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Load reads the session's full record list and folds it into a delta log.
func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis load %q: %w", sessionID, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}

	records := make([][]byte, len(raw))
	for i, r := range raw {
		records[i] = []byte(r)
	}
	return buildLog(records), nil
}

// Append pushes one record onto the session's list.
func (s *RedisStore) Append(ctx context.Context, sessionID string, delta []byte) error {
	raw, err := encodeRecord(delta)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.key(sessionID), raw).Err(); err != nil {
		return fmt.Errorf("store: redis append %q: %w", sessionID, err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
