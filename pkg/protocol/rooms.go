package protocol

import "sort"

// RoomsListing is the diagnostic membership table: session id to the
// connection ids currently joined. A client requests it with an empty
// Rooms frame; the server answers with an encoded listing.
type RoomsListing struct {
	Rooms map[string][]string
}

// EncodeRoomsListing encodes a RoomsListing to bytes. Sessions and members
// are written in sorted order so the encoding is deterministic.
func EncodeRoomsListing(rl *RoomsListing) []byte {
	e := NewEncoder()

	ids := make([]string, 0, len(rl.Rooms))
	for id := range rl.Rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	e.WriteUvarint(uint64(len(ids)))
	for _, id := range ids {
		members := append([]string(nil), rl.Rooms[id]...)
		sort.Strings(members)

		e.WriteString(id)
		e.WriteUvarint(uint64(len(members)))
		for _, m := range members {
			e.WriteString(m)
		}
	}
	return e.Bytes()
}

// DecodeRoomsListing decodes a RoomsListing from bytes.
func DecodeRoomsListing(data []byte) (*RoomsListing, error) {
	d := NewDecoder(data)

	n, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if n > MaxCollectionCount {
		return nil, ErrCollectionTooLarge
	}

	rl := &RoomsListing{Rooms: make(map[string][]string, n)}
	for i := uint64(0); i < n; i++ {
		id, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		m, err := d.ReadUvarint()
		if err != nil {
			return nil, err
		}
		if m > MaxCollectionCount {
			return nil, ErrCollectionTooLarge
		}
		members := make([]string, 0, m)
		for j := uint64(0); j < m; j++ {
			member, err := d.ReadString()
			if err != nil {
				return nil, err
			}
			members = append(members, member)
		}
		rl.Rooms[id] = members
	}
	return rl, nil
}
