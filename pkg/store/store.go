// Package store provides Document Store adapters: durable append-only delta
// logs keyed by session id.
//
// The collab core only consumes this interface; durability beyond
// best-effort is explicitly out of scope. Three backends ship: an in-memory
// store for single-process deployments and tests, a Redis store, and an S3
// store. All wrap each delta in a CBOR record carrying a BLAKE3 checksum so
// a corrupted record can be detected and skipped on load instead of
// poisoning the session.
package store

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/peercode/collab/pkg/doc"
)

// Errors returned by document stores.
var (
	// ErrNotFound is returned by Load when no deltas exist for the session.
	ErrNotFound = errors.New("store: session not found")

	// ErrStoreClosed is returned when operations are attempted on a
	// closed store.
	ErrStoreClosed = errors.New("store: closed")
)

// DocStore is the persistence adapter consumed by the collab core.
// Implementations must be safe for concurrent use.
type DocStore interface {
	// Load returns the session's full delta log (doc.DecodeLog format),
	// or ErrNotFound if the session has never been persisted.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Append durably appends one delta to the session's log.
	Append(ctx context.Context, sessionID string, delta []byte) error

	// Close releases any resources held by the store.
	Close() error
}

// record is the durable envelope around one delta.
type record struct {
	Delta []byte `cbor:"d"`
	Sum   []byte `cbor:"h"` // BLAKE3-256 of Delta
	At    int64  `cbor:"t"` // Unix milliseconds at append time
}

// encodeRecord wraps a delta in a checksummed CBOR record.
func encodeRecord(delta []byte) ([]byte, error) {
	sum := blake3.Sum256(delta)
	return cbor.Marshal(&record{
		Delta: delta,
		Sum:   sum[:],
		At:    time.Now().UnixMilli(),
	})
}

// decodeRecord unpacks a record and verifies its checksum.
func decodeRecord(data []byte) ([]byte, error) {
	var r record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	sum := blake3.Sum256(r.Delta)
	if !bytes.Equal(r.Sum, sum[:]) {
		return nil, errors.New("store: record checksum mismatch")
	}
	return r.Delta, nil
}

// buildLog folds raw record encodings into a delta log, skipping records
// that fail to decode or verify.
func buildLog(records [][]byte) []byte {
	var log []byte
	for _, raw := range records {
		delta, err := decodeRecord(raw)
		if err != nil {
			continue
		}
		log = doc.AppendLog(log, delta)
	}
	return log
}
