package doc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
)

// deltaVersion is the envelope version byte every delta must start with.
const deltaVersion = 0x01

// EncodeDelta wraps raw change content in a delta envelope:
// version byte, varint content length, content.
func EncodeDelta(content []byte) []byte {
	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(content))
	buf = append(buf, deltaVersion)
	buf = binary.AppendUvarint(buf, uint64(len(content)))
	return append(buf, content...)
}

// DecodeDelta validates a delta envelope and returns its content.
// Any structural defect (wrong version, short buffer, trailing bytes)
// fails with ErrInvalidUpdate.
func DecodeDelta(delta []byte) ([]byte, error) {
	if len(delta) < 2 || delta[0] != deltaVersion {
		return nil, ErrInvalidUpdate
	}
	n, read := binary.Uvarint(delta[1:])
	if read <= 0 {
		return nil, ErrInvalidUpdate
	}
	content := delta[1+read:]
	if uint64(len(content)) != n {
		return nil, ErrInvalidUpdate
	}
	return content, nil
}

// ValidateDelta reports whether delta is a well-formed envelope.
func ValidateDelta(delta []byte) error {
	_, err := DecodeDelta(delta)
	return err
}

// SetMerger merges deltas as a content-addressed set.
//
// The merged document encoding is canonical: a varint delta count followed
// by each delta length-prefixed, ordered by the BLAKE3 hash of its bytes.
// Duplicate deltas collapse onto one entry, so the merge is idempotent;
// the hash ordering makes it commutative and convergent byte-for-byte.
type SetMerger struct{}

// NewSetMerger creates the default merger.
func NewSetMerger() *SetMerger {
	return &SetMerger{}
}

// Merge adds delta to the set encoded in current and re-encodes canonically.
func (m *SetMerger) Merge(current []byte, delta []byte) ([]byte, error) {
	if err := ValidateDelta(delta); err != nil {
		return nil, err
	}

	deltas, err := decodeSet(current)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	key := blake3.Sum256(delta)
	if _, dup := deltas[key]; dup {
		return current, nil
	}
	cp := make([]byte, len(delta))
	copy(cp, delta)
	deltas[key] = cp

	return encodeSet(deltas), nil
}

// decodeSet decodes the canonical set encoding into a hash-keyed map.
// Empty input is the empty set.
func decodeSet(data []byte) (map[[32]byte][]byte, error) {
	set := make(map[[32]byte][]byte)
	if len(data) == 0 {
		return set, nil
	}

	count, read := binary.Uvarint(data)
	if read <= 0 {
		return nil, fmt.Errorf("bad count prefix")
	}
	rest := data[read:]

	for i := uint64(0); i < count; i++ {
		n, read := binary.Uvarint(rest)
		if read <= 0 || uint64(len(rest[read:])) < n {
			return nil, fmt.Errorf("truncated entry %d", i)
		}
		entry := rest[read : read+int(n)]
		set[blake3.Sum256(entry)] = entry
		rest = rest[read+int(n):]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d trailing bytes", len(rest))
	}
	return set, nil
}

// encodeSet produces the canonical encoding: hash-sorted, length-prefixed.
func encodeSet(set map[[32]byte][]byte) []byte {
	keys := make([][32]byte, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})

	buf := binary.AppendUvarint(nil, uint64(len(keys)))
	for _, k := range keys {
		entry := set[k]
		buf = binary.AppendUvarint(buf, uint64(len(entry)))
		buf = append(buf, entry...)
	}
	return buf
}

// AppendLog appends a delta to a persisted delta log:
// each entry is varint length + delta bytes, in append order.
func AppendLog(log []byte, delta []byte) []byte {
	log = binary.AppendUvarint(log, uint64(len(delta)))
	return append(log, delta...)
}

// DecodeLog splits a delta log into its entries.
func DecodeLog(log []byte) ([][]byte, error) {
	var deltas [][]byte
	rest := log
	for len(rest) > 0 {
		n, read := binary.Uvarint(rest)
		if read <= 0 || uint64(len(rest[read:])) < n {
			return nil, fmt.Errorf("doc: truncated delta log entry %d", len(deltas))
		}
		deltas = append(deltas, rest[read:read+int(n)])
		rest = rest[read+int(n):]
	}
	return deltas, nil
}
