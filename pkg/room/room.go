// Package room maintains the live collaboration rooms: one registry entry
// per active session, each owning the authoritative document, the
// participant set, and the ephemeral awareness table.
//
// All mutation of a room goes through its lock, which is the per-session
// serialization point required for coherent document versions and
// persistence ordering. Different rooms share nothing and proceed fully in
// parallel.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/peercode/collab/pkg/doc"
	"github.com/peercode/collab/pkg/protocol"
	"github.com/peercode/collab/pkg/store"
)

// Peer is a live connection as seen by a room. Deliver must be
// fire-and-forget: enqueue and report success, never block on the peer's
// socket. A false return means the peer could not accept the frame (queue
// full or closed); the room counts it and moves on.
type Peer interface {
	ID() string
	Deliver(f *protocol.Frame) bool
}

// Room is one live collaboration session.
type Room struct {
	id string

	mu        sync.Mutex
	peers     map[string]Peer
	awareness map[string][]byte
	document  *doc.Document
	closed    bool

	loadOnce sync.Once
	loadErr  error

	// persist, when set, is invoked under the room lock for every accepted
	// update so the durable log sees the same order as the document.
	// It must not block.
	persist func(sessionID string, delta []byte)

	logger *slog.Logger
}

func newRoom(id string, merger doc.Merger, persist func(string, []byte), logger *slog.Logger) *Room {
	return &Room{
		id:        id,
		peers:     make(map[string]Peer),
		awareness: make(map[string][]byte),
		document:  doc.New(merger),
		persist:   persist,
		logger:    logger.With("session_id", id),
	}
}

// ID returns the session id this room serves.
func (r *Room) ID() string {
	return r.id
}

// ensureLoaded seeds the document from the store's delta log exactly once,
// on first join. A session with no durable history starts empty; corrupt
// log entries are skipped so one bad record cannot strand the session.
func (r *Room) ensureLoaded(ctx context.Context, st store.DocStore) error {
	r.loadOnce.Do(func() {
		if st == nil {
			return
		}

		log, err := st.Load(ctx, r.id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return
			}
			r.loadErr = fmt.Errorf("room: loading session %q: %w", r.id, err)
			return
		}

		applied, skipped, err := r.document.Bootstrap(log)
		if err != nil {
			r.loadErr = fmt.Errorf("room: bootstrapping session %q: %w", r.id, err)
			return
		}
		if skipped > 0 {
			r.logger.Warn("skipped corrupt deltas during bootstrap",
				"applied", applied,
				"skipped", skipped)
		}
		r.logger.Info("room seeded from store", "deltas", applied)
	})
	return r.loadErr
}

// join adds a peer and returns the current document snapshot.
// Returns false if the room has been evicted and the caller must retry
// against the registry.
func (r *Room) join(p Peer) (snapshot []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false
	}
	r.peers[p.ID()] = p
	return r.document.Bytes(), true
}

// leave removes a peer and its awareness entry, returning the remaining
// participant count. When the last participant leaves, the room is marked
// closed in the same critical section, so a join racing with the eviction
// observes the flag and retries against the registry instead of being
// admitted to a room about to be dropped.
func (r *Room) leave(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.peers, connID)
	delete(r.awareness, connID)
	if len(r.peers) == 0 {
		r.closed = true
	}
	return len(r.peers)
}

// ApplyUpdate merges the delta into the room document, hands it to the
// persistence hook, and relays it to every peer except the originator.
// A delta that fails to decode returns doc.ErrInvalidUpdate with the
// document untouched and nothing relayed.
func (r *Room) ApplyUpdate(originID string, delta []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}

	if _, err := r.document.Apply(delta); err != nil {
		return err
	}

	if r.persist != nil {
		r.persist(r.id, delta)
	}

	r.broadcastLocked(originID, protocol.NewFrame(protocol.FrameUpdate, delta))
	return nil
}

// Awareness records the peer's latest presence payload and relays it to
// the other participants. Never persisted, never merged.
func (r *Room) Awareness(originID string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.awareness[originID] = payload
	r.broadcastLocked(originID, protocol.NewFrame(protocol.FrameAwareness, payload))
}

// Broadcast relays a frame to every participant except excludeID.
func (r *Room) Broadcast(excludeID string, f *protocol.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(excludeID, f)
}

// broadcastLocked fans out to peer queues. Deliver is non-blocking, so
// holding the room lock here never waits on peer sockets; a slow or dead
// peer only loses its own frames.
func (r *Room) broadcastLocked(excludeID string, f *protocol.Frame) {
	for id, p := range r.peers {
		if id == excludeID {
			continue
		}
		if !p.Deliver(f) {
			r.logger.Warn("dropped frame for slow peer",
				"conn_id", id,
				"frame_type", f.Type.String())
		}
	}
}

// Members returns the current participant connection ids.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns the current merged document bytes.
func (r *Room) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.document.Bytes()
}

// Version returns the document's update counter. Diagnostics only.
func (r *Room) Version() uint64 {
	return r.document.Version()
}

// markClosed flags the room as evicted so late joins retry.
// Caller must hold the registry lock.
func (r *Room) markClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *Room) memberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
