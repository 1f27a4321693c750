package protocol

// HandshakeStatus is the result of a connection handshake.
type HandshakeStatus uint8

const (
	HandshakeOK             HandshakeStatus = 0x00
	HandshakeUnauthorized   HandshakeStatus = 0x01 // Missing or invalid credential
	HandshakeMissingSession HandshakeStatus = 0x02 // Missing or empty session id
	HandshakeInvalidFormat  HandshakeStatus = 0x03 // Malformed handshake message
	HandshakeServerBusy     HandshakeStatus = 0x04 // Connection limit reached
	HandshakeInternalError  HandshakeStatus = 0x05 // Server error
)

// String returns the string representation of the handshake status.
func (hs HandshakeStatus) String() string {
	switch hs {
	case HandshakeOK:
		return "OK"
	case HandshakeUnauthorized:
		return "Unauthorized"
	case HandshakeMissingSession:
		return "MissingSession"
	case HandshakeInvalidFormat:
		return "InvalidFormat"
	case HandshakeServerBusy:
		return "ServerBusy"
	case HandshakeInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// ClientHello is the first frame a client sends after the WebSocket
// connection is established. It carries the bearer credential and the
// session the client wants to join.
type ClientHello struct {
	Token     string // Opaque bearer credential
	SessionID string // Target session (room) id
}

// EncodeClientHello encodes a ClientHello to bytes.
func EncodeClientHello(ch *ClientHello) []byte {
	e := NewEncoder()
	e.WriteString(ch.Token)
	e.WriteString(ch.SessionID)
	return e.Bytes()
}

// DecodeClientHello decodes a ClientHello from bytes.
func DecodeClientHello(data []byte) (*ClientHello, error) {
	d := NewDecoder(data)
	ch := &ClientHello{}
	var err error

	if ch.Token, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ch.SessionID, err = d.ReadString(); err != nil {
		return nil, err
	}
	return ch, nil
}

// Connected is the server's join acknowledgement, sent after the snapshot.
type Connected struct {
	UserID    string
	SessionID string
}

// EncodeConnected encodes a Connected message to bytes.
func EncodeConnected(c *Connected) []byte {
	e := NewEncoder()
	e.WriteString(c.UserID)
	e.WriteString(c.SessionID)
	return e.Bytes()
}

// DecodeConnected decodes a Connected message from bytes.
func DecodeConnected(data []byte) (*Connected, error) {
	d := NewDecoder(data)
	c := &Connected{}
	var err error

	if c.UserID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if c.SessionID, err = d.ReadString(); err != nil {
		return nil, err
	}
	return c, nil
}
