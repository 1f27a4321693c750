package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory document store. It is the default backend and
// suitable for single-server deployments and tests; for anything that must
// survive a restart, use RedisStore or S3Store.
type MemoryStore struct {
	mu     sync.RWMutex
	logs   map[string][][]byte // session id -> raw record encodings
	closed bool
}

// NewMemoryStore creates a new in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][][]byte)}
}

// Load returns the session's delta log.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	records, ok := m.logs[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return buildLog(records), nil
}

// Append adds one delta to the session's log.
func (m *MemoryStore) Append(ctx context.Context, sessionID string, delta []byte) error {
	raw, err := encodeRecord(delta)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.logs[sessionID] = append(m.logs[sessionID], raw)
	return nil
}

// Close shuts down the store. Further operations fail with ErrStoreClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.logs = nil
	return nil
}

// Count returns the number of persisted deltas for a session.
// For monitoring and tests.
func (m *MemoryStore) Count(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs[sessionID])
}
