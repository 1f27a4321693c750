// Package persist decouples the live update path from the document store.
// Accepted deltas are handed to the bridge, which appends them to the
// store from per-session workers so a slow or failing backend never
// blocks a broadcast.
//
// Each session gets its own ordered queue; deltas reach the store in the
// order the room accepted them. Append failures are retried with capped
// exponential backoff behind a circuit breaker, and a delta that exhausts
// its retries is logged and dropped rather than wedging the session.
package persist

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/peercode/collab/pkg/store"
)

// ErrBridgeClosed is returned by Enqueue after Close.
var ErrBridgeClosed = errors.New("persist: bridge is closed")

// Config configures a Bridge.
type Config struct {
	// QueueSize is the per-session buffer. A full queue drops the delta.
	QueueSize int

	// MaxAttempts bounds the tries per delta, including the first.
	MaxAttempts int

	// InitialBackoff is the delay after the first failure; it doubles per
	// attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// AppendTimeout bounds a single store call.
	AppendTimeout time.Duration

	// IdleTimeout is how long a session worker lingers without traffic
	// before shutting down. Zero keeps workers alive until Close.
	IdleTimeout time.Duration

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit; BreakerTimeout is how long it stays open.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration

	// OnDrop fires when a delta is abandoned, with the reason label.
	// Used for metrics; may be nil.
	OnDrop func(sessionID, reason string)

	Logger *slog.Logger
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:        256,
		MaxAttempts:      5,
		InitialBackoff:   50 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
		AppendTimeout:    5 * time.Second,
		IdleTimeout:      time.Minute,
		BreakerThreshold: 5,
		BreakerTimeout:   10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.AppendTimeout <= 0 {
		c.AppendTimeout = def.AppendTimeout
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = def.BreakerThreshold
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = def.BreakerTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Bridge is the async path from rooms to the document store.
type Bridge struct {
	store   store.DocStore
	config  Config
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[string]*sessionQueue
	closed bool

	shutdown chan struct{}
	wg       sync.WaitGroup
}

type sessionQueue struct {
	ch chan []byte
}

// NewBridge creates a bridge writing to st.
func NewBridge(st store.DocStore, config Config) *Bridge {
	config = config.withDefaults()
	logger := config.Logger.With("component", "persist")

	b := &Bridge{
		store:    st,
		config:   config,
		logger:   logger,
		queues:   make(map[string]*sessionQueue),
		shutdown: make(chan struct{}),
	}

	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "docstore",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return b
}

// Enqueue hands a delta to the session's writer. It never blocks: a full
// queue or a closed bridge drops the delta with a log line. Deltas for
// the same session reach the store in enqueue order.
func (b *Bridge) Enqueue(sessionID string, delta []byte) {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		b.drop(sessionID, "bridge_closed")
		return
	}

	q, ok := b.queues[sessionID]
	if !ok {
		q = &sessionQueue{ch: make(chan []byte, b.config.QueueSize)}
		b.queues[sessionID] = q
		b.wg.Add(1)
		go b.worker(sessionID, q)
	}

	select {
	case q.ch <- delta:
		b.mu.Unlock()
	default:
		b.mu.Unlock()
		b.drop(sessionID, "queue_full")
	}
}

// worker drains one session's queue in order until idle or shutdown.
func (b *Bridge) worker(sessionID string, q *sessionQueue) {
	defer b.wg.Done()

	logger := b.logger.With("session_id", sessionID)

	var idle *time.Timer
	var idleC <-chan time.Time
	if b.config.IdleTimeout > 0 {
		idle = time.NewTimer(b.config.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case delta := <-q.ch:
			b.appendWithRetry(logger, sessionID, delta)
			if idle != nil {
				if !idle.Stop() {
					<-idle.C
				}
				idle.Reset(b.config.IdleTimeout)
			}

		case <-idleC:
			// Enqueue sends only while holding the lock, so checking the
			// buffer under the lock and removing the queue is race-free.
			b.mu.Lock()
			if len(q.ch) > 0 {
				b.mu.Unlock()
				idle.Reset(b.config.IdleTimeout)
				continue
			}
			delete(b.queues, sessionID)
			b.mu.Unlock()
			return

		case <-b.shutdown:
			b.drain(logger, sessionID, q)
			return
		}
	}
}

// drain flushes whatever is buffered at shutdown, then exits.
func (b *Bridge) drain(logger *slog.Logger, sessionID string, q *sessionQueue) {
	for {
		select {
		case delta := <-q.ch:
			b.appendWithRetry(logger, sessionID, delta)
		default:
			return
		}
	}
}

// appendWithRetry pushes one delta to the store, retrying with capped
// exponential backoff. After MaxAttempts the delta is dropped; the next
// bootstrap simply misses it, which the merge contract tolerates.
func (b *Bridge) appendWithRetry(logger *slog.Logger, sessionID string, delta []byte) {
	backoff := b.config.InitialBackoff

	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		_, err := b.breaker.Execute(func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), b.config.AppendTimeout)
			defer cancel()
			return nil, b.store.Append(ctx, sessionID, delta)
		})
		if err == nil {
			return
		}

		if attempt == b.config.MaxAttempts {
			logger.Error("dropping delta after retries exhausted",
				"attempts", attempt,
				"error", err)
			b.drop(sessionID, "retries_exhausted")
			return
		}

		logger.Warn("store append failed, backing off",
			"attempt", attempt,
			"backoff", backoff,
			"error", err)

		select {
		case <-time.After(backoff):
		case <-b.shutdown:
			// Give the remaining attempts one immediate try each during
			// shutdown instead of sleeping through the drain window.
		}

		backoff *= 2
		if backoff > b.config.MaxBackoff {
			backoff = b.config.MaxBackoff
		}
	}
}

func (b *Bridge) drop(sessionID, reason string) {
	b.logger.Warn("delta dropped", "session_id", sessionID, "reason", reason)
	if b.config.OnDrop != nil {
		b.config.OnDrop(sessionID, reason)
	}
}

// QueueDepth reports the buffered delta count for a session. Diagnostics
// and tests.
func (b *Bridge) QueueDepth(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[sessionID]; ok {
		return len(q.ch)
	}
	return 0
}

// Close rejects further enqueues, flushes buffered deltas, and waits for
// the workers to finish or the context to expire.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	b.closed = true
	b.mu.Unlock()

	close(b.shutdown)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
