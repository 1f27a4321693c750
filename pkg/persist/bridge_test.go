package persist

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// flakyStore fails the first failures appends per session, then succeeds.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	attempts int
	appends  map[string][][]byte
}

func newFlakyStore(failures int) *flakyStore {
	return &flakyStore{failures: failures, appends: make(map[string][][]byte)}
}

func (s *flakyStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *flakyStore) Append(ctx context.Context, sessionID string, delta []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.attempts <= s.failures {
		return errors.New("backend unavailable")
	}
	cp := make([]byte, len(delta))
	copy(cp, delta)
	s.appends[sessionID] = append(s.appends[sessionID], cp)
	return nil
}

func (s *flakyStore) Close() error { return nil }

func (s *flakyStore) appended(sessionID string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.appends[sessionID]))
	copy(out, s.appends[sessionID])
	return out
}

func (s *flakyStore) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func fastConfig() Config {
	return Config{
		QueueSize:        16,
		MaxAttempts:      4,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
		AppendTimeout:    time.Second,
		BreakerThreshold: 100,
		BreakerTimeout:   time.Second,
		Logger:           testLogger(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEnqueueReachesStore(t *testing.T) {
	st := newFlakyStore(0)
	b := NewBridge(st, fastConfig())
	defer b.Close(context.Background())

	b.Enqueue("session-1", []byte("delta-1"))

	waitFor(t, func() bool { return len(st.appended("session-1")) == 1 })
	if got := st.appended("session-1")[0]; !bytes.Equal(got, []byte("delta-1")) {
		t.Errorf("appended %q, want %q", got, "delta-1")
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	st := newFlakyStore(2)
	b := NewBridge(st, fastConfig())
	defer b.Close(context.Background())

	b.Enqueue("session-1", []byte("delta-1"))

	waitFor(t, func() bool { return len(st.appended("session-1")) == 1 })
	if got := st.attemptCount(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestDropAfterRetriesExhausted(t *testing.T) {
	var mu sync.Mutex
	var drops []string

	st := newFlakyStore(1000)
	cfg := fastConfig()
	cfg.OnDrop = func(sessionID, reason string) {
		mu.Lock()
		drops = append(drops, reason)
		mu.Unlock()
	}
	b := NewBridge(st, cfg)
	defer b.Close(context.Background())

	b.Enqueue("session-1", []byte("doomed"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(drops) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if drops[0] != "retries_exhausted" {
		t.Errorf("drop reason = %q, want retries_exhausted", drops[0])
	}
	if got := st.attemptCount(); got != cfg.MaxAttempts {
		t.Errorf("attempts = %d, want %d", got, cfg.MaxAttempts)
	}
}

func TestPerSessionOrderPreserved(t *testing.T) {
	st := newFlakyStore(0)
	b := NewBridge(st, fastConfig())
	defer b.Close(context.Background())

	want := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	for _, d := range want {
		b.Enqueue("session-1", d)
	}

	waitFor(t, func() bool { return len(st.appended("session-1")) == len(want) })
	got := st.appended("session-1")
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("position %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	var mu sync.Mutex
	var drops []string

	// A store that blocks until released keeps the worker busy so the
	// queue actually fills.
	release := make(chan struct{})
	st := &blockingStore{release: release, inner: newFlakyStore(0)}

	cfg := fastConfig()
	cfg.QueueSize = 2
	cfg.OnDrop = func(sessionID, reason string) {
		mu.Lock()
		drops = append(drops, reason)
		mu.Unlock()
	}
	b := NewBridge(st, cfg)

	// One in flight at the worker, two buffered, the rest dropped.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 6; i++ {
			b.Enqueue("session-1", []byte{byte(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}

	close(release)
	b.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(drops) == 0 {
		t.Error("expected at least one queue_full drop")
	}
	for _, reason := range drops {
		if reason != "queue_full" {
			t.Errorf("drop reason = %q, want queue_full", reason)
		}
	}
}

type blockingStore struct {
	release chan struct{}
	inner   *flakyStore
}

func (s *blockingStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	return s.inner.Load(ctx, sessionID)
}

func (s *blockingStore) Append(ctx context.Context, sessionID string, delta []byte) error {
	<-s.release
	return s.inner.Append(ctx, sessionID, delta)
}

func (s *blockingStore) Close() error { return nil }

func TestCloseFlushesBufferedDeltas(t *testing.T) {
	st := newFlakyStore(0)
	b := NewBridge(st, fastConfig())

	for i := 0; i < 5; i++ {
		b.Enqueue("session-1", []byte{byte(i)})
	}

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := len(st.appended("session-1")); got != 5 {
		t.Errorf("appended %d deltas after Close, want 5", got)
	}
}

func TestEnqueueAfterCloseDrops(t *testing.T) {
	var mu sync.Mutex
	var drops []string

	cfg := fastConfig()
	cfg.OnDrop = func(sessionID, reason string) {
		mu.Lock()
		drops = append(drops, reason)
		mu.Unlock()
	}
	b := NewBridge(newFlakyStore(0), cfg)
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b.Enqueue("session-1", []byte("late"))

	mu.Lock()
	defer mu.Unlock()
	if len(drops) != 1 || drops[0] != "bridge_closed" {
		t.Errorf("drops = %v, want [bridge_closed]", drops)
	}
}

func TestIdleWorkerShutsDownAndRestarts(t *testing.T) {
	st := newFlakyStore(0)
	cfg := fastConfig()
	cfg.IdleTimeout = 10 * time.Millisecond
	b := NewBridge(st, cfg)
	defer b.Close(context.Background())

	b.Enqueue("session-1", []byte("first"))
	waitFor(t, func() bool { return len(st.appended("session-1")) == 1 })

	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.queues) == 0
	})

	b.Enqueue("session-1", []byte("second"))
	waitFor(t, func() bool { return len(st.appended("session-1")) == 2 })
}
