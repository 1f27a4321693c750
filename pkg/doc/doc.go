// Package doc holds the authoritative merged document state for a session
// and the merge contract that any replication algorithm plugged into it
// must satisfy.
//
// The contract is algebraic, not algorithmic: Merge must be commutative for
// causally independent deltas, idempotent under duplication, and convergent
// (replicas that received the same delta set in any order reach byte-identical
// state). The default implementation is a content-addressed delta set; a CRDT
// or OT engine satisfying the same contract can be swapped in.
package doc

import (
	"errors"
	"sync"
)

// Errors returned by the document container.
var (
	// ErrInvalidUpdate is returned when a delta payload fails to decode.
	// The document is left unchanged.
	ErrInvalidUpdate = errors.New("doc: invalid update payload")

	// ErrCorruptState is returned when the current document bytes cannot
	// be decoded. This indicates a bug or corrupted persistence, not a
	// client error.
	ErrCorruptState = errors.New("doc: corrupt document state")
)

// Merger merges a delta into the current document bytes.
//
// Implementations must be commutative for independent deltas, idempotent
// under duplication, and convergent, and must return the current bytes
// unchanged alongside an error when the delta is rejected.
type Merger interface {
	Merge(current []byte, delta []byte) ([]byte, error)
}

// Document is the authoritative merged state for one session. It is owned
// exclusively by that session's room; Apply calls are serialized by the
// room lock, but Document carries its own mutex so snapshot reads never
// observe a torn write.
type Document struct {
	mu      sync.RWMutex
	merger  Merger
	bytes   []byte
	version uint64
}

// New creates an empty document using the given merger.
// A nil merger selects the default content-addressed set merger.
func New(merger Merger) *Document {
	if merger == nil {
		merger = NewSetMerger()
	}
	return &Document{merger: merger}
}

// Apply merges delta into the document and returns the merged bytes.
// On error the document is left unchanged (no partial application).
func (d *Document) Apply(delta []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	merged, err := d.merger.Merge(d.bytes, delta)
	if err != nil {
		return nil, err
	}
	d.bytes = merged
	d.version++
	return merged, nil
}

// Bootstrap replays a persisted delta log into the document. Structurally
// invalid logs fail outright; individually invalid delta envelopes inside a
// well-formed log are skipped so one bad record cannot brick a session.
// Returns the number of deltas applied and the number skipped.
func (d *Document) Bootstrap(log []byte) (applied, skipped int, err error) {
	deltas, err := DecodeLog(log)
	if err != nil {
		return 0, 0, err
	}
	for _, delta := range deltas {
		if _, err := d.Apply(delta); err != nil {
			skipped++
			continue
		}
		applied++
	}
	return applied, skipped, nil
}

// Bytes returns a copy of the current merged document bytes.
func (d *Document) Bytes() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]byte, len(d.bytes))
	copy(out, d.bytes)
	return out
}

// Version returns the number of updates applied. Diagnostics only; ordering
// correctness never depends on it.
func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Len returns the size of the merged document bytes.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.bytes)
}
