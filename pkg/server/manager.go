package server

import (
	"log/slog"
	"sync"
)

// Manager tracks the live connections.
type Manager struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	closed bool

	maxConns int
	logger   *slog.Logger
}

// NewManager creates a connection manager. maxConns of zero means no limit.
func NewManager(maxConns int, logger *slog.Logger) *Manager {
	return &Manager{
		conns:    make(map[string]*Conn),
		maxConns: maxConns,
		logger:   logger.With("component", "manager"),
	}
}

// Add registers a connection. Returns ErrMaxConnections at the limit and
// ErrServerClosed during shutdown.
func (m *Manager) Add(c *Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrServerClosed
	}
	if m.maxConns > 0 && len(m.conns) >= m.maxConns {
		return ErrMaxConnections
	}

	m.conns[c.ID()] = c
	promMetrics().activeConnections.Set(float64(len(m.conns)))
	return nil
}

// Remove unregisters a connection. Idempotent.
func (m *Manager) Remove(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[connID]; !ok {
		return
	}
	delete(m.conns, connID)
	promMetrics().activeConnections.Set(float64(len(m.conns)))
}

// Get returns a connection by id, or nil.
func (m *Manager) Get(connID string) *Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[connID]
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Shutdown closes every connection and refuses new ones.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	// Close outside the lock; each Close cascades into Remove.
	for _, c := range conns {
		c.Close()
	}
	m.logger.Info("all connections closed", "count", len(conns))
}
