package room

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/peercode/collab/pkg/doc"
	"github.com/peercode/collab/pkg/store"
)

// Registry errors.
var (
	ErrRoomClosed      = errors.New("room: room has been evicted")
	ErrRegistryClosed  = errors.New("room: registry is closed")
	ErrPeerNotInRoom   = errors.New("room: peer is not a participant")
	ErrSessionNotFound = errors.New("room: no such session")
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Merger builds document state from deltas. Defaults to doc.SetMerger.
	Merger doc.Merger

	// Persist, when set, receives every accepted update in document order.
	// Must not block; wire it to the persistence bridge's enqueue.
	Persist func(sessionID string, delta []byte)

	// OnRoomCreate and OnRoomEvict fire on registry transitions.
	// Used for metrics; either may be nil.
	OnRoomCreate func(sessionID string)
	OnRoomEvict  func(sessionID string)

	Logger *slog.Logger
}

// Registry owns the set of live rooms. Rooms come into existence when the
// first participant joins and are evicted when the last one leaves; the
// session id is the only key.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	closed bool

	store  store.DocStore
	config RegistryConfig
	logger *slog.Logger
}

// NewRegistry creates a registry backed by the given document store.
// The store seeds newly created rooms and may be shared with the
// persistence bridge.
func NewRegistry(st store.DocStore, config RegistryConfig) *Registry {
	if config.Merger == nil {
		config.Merger = doc.NewSetMerger()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Registry{
		rooms:  make(map[string]*Room),
		store:  st,
		config: config,
		logger: config.Logger.With("component", "registry"),
	}
}

// Join adds the peer to the session's room, creating and seeding the room
// if this is the first participant, and returns the document snapshot the
// peer must receive before any relayed update.
func (reg *Registry) Join(ctx context.Context, sessionID string, p Peer) (snapshot []byte, err error) {
	for {
		r, err := reg.getOrCreate(sessionID)
		if err != nil {
			return nil, err
		}

		if err := r.ensureLoaded(ctx, reg.store); err != nil {
			return nil, err
		}

		snapshot, ok := r.join(p)
		if !ok {
			// Lost a race with eviction; the registry entry is gone,
			// so the next iteration creates a fresh room.
			continue
		}
		return snapshot, nil
	}
}

// Leave removes the peer from the session's room. When the last
// participant leaves, the room is evicted and its memory released; the
// durable log in the store is untouched.
func (reg *Registry) Leave(sessionID, connID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[sessionID]
	if !ok {
		return
	}

	// leave marks the room closed in the same critical section that drops
	// the last participant, so no join can slip in between the count check
	// and the eviction below.
	if r.leave(connID) > 0 {
		return
	}

	delete(reg.rooms, sessionID)
	reg.logger.Info("room evicted", "session_id", sessionID)
	if reg.config.OnRoomEvict != nil {
		reg.config.OnRoomEvict(sessionID)
	}
}

// Get returns the live room for a session, or ErrSessionNotFound.
// Never creates.
func (reg *Registry) Get(sessionID string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return r, nil
}

// getOrCreate returns the room for sessionID, inserting a new one if
// absent. Store loading happens later, outside the registry lock, so a
// slow backend for one session never stalls the others.
func (reg *Registry) getOrCreate(sessionID string) (*Room, error) {
	reg.mu.RLock()
	r, ok := reg.rooms[sessionID]
	closed := reg.closed
	reg.mu.RUnlock()

	if closed {
		return nil, ErrRegistryClosed
	}
	if ok {
		return r, nil
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.closed {
		return nil, ErrRegistryClosed
	}
	if r, ok := reg.rooms[sessionID]; ok {
		return r, nil
	}

	r = newRoom(sessionID, reg.config.Merger, reg.config.Persist, reg.logger)
	reg.rooms[sessionID] = r
	reg.logger.Info("room created", "session_id", sessionID)
	if reg.config.OnRoomCreate != nil {
		reg.config.OnRoomCreate(sessionID)
	}
	return r, nil
}

// ListMembership reports every live room and its participant connection
// ids, sorted for stable output.
func (reg *Registry) ListMembership() map[string][]string {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.RUnlock()

	out := make(map[string][]string, len(rooms))
	for _, r := range rooms {
		members := r.Members()
		sort.Strings(members)
		out[r.ID()] = members
	}
	return out
}

// Count returns the number of live rooms.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Close evicts every room and refuses further joins.
func (reg *Registry) Close() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.closed {
		return
	}
	reg.closed = true

	for id, r := range reg.rooms {
		r.markClosed()
		delete(reg.rooms, id)
		if reg.config.OnRoomEvict != nil {
			reg.config.OnRoomEvict(id)
		}
	}
}
