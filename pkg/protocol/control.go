package protocol

import "io"

// ControlType identifies the kind of control message.
type ControlType uint8

const (
	ControlPing  ControlType = 0x01
	ControlPong  ControlType = 0x02
	ControlClose ControlType = 0x03
)

// String returns the string representation of the control type.
func (ct ControlType) String() string {
	switch ct {
	case ControlPing:
		return "Ping"
	case ControlPong:
		return "Pong"
	case ControlClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// PingPong carries the timestamp echoed between peer and server for
// liveness checks.
type PingPong struct {
	Timestamp uint64 // Unix milliseconds at the sender
}

// CloseReason categorizes why a connection is being closed.
type CloseReason uint8

const (
	CloseNormal      CloseReason = 0x00
	CloseGoingAway   CloseReason = 0x01
	CloseProtocolErr CloseReason = 0x02
	CloseServerShutd CloseReason = 0x03
)

// CloseMessage tells the peer the connection is about to close.
type CloseMessage struct {
	Reason  CloseReason
	Message string
}

// EncodeControl encodes a control message. data must be *PingPong for
// ping/pong or *CloseMessage for close; other types produce a bare header.
func EncodeControl(ct ControlType, data any) []byte {
	e := NewEncoder()
	e.WriteByte(byte(ct))

	switch v := data.(type) {
	case *PingPong:
		e.WriteUint64(v.Timestamp)
	case *CloseMessage:
		e.WriteByte(byte(v.Reason))
		e.WriteString(v.Message)
	}
	return e.Bytes()
}

// DecodeControl decodes a control message, returning the control type and
// the typed payload (*PingPong, *CloseMessage, or nil).
func DecodeControl(data []byte) (ControlType, any, error) {
	d := NewDecoder(data)

	b, err := d.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	ct := ControlType(b)

	switch ct {
	case ControlPing, ControlPong:
		ts, err := d.ReadUint64()
		if err != nil {
			return ct, nil, err
		}
		return ct, &PingPong{Timestamp: ts}, nil

	case ControlClose:
		reason, err := d.ReadByte()
		if err != nil {
			return ct, nil, err
		}
		msg, err := d.ReadString()
		if err != nil {
			return ct, nil, err
		}
		return ct, &CloseMessage{Reason: CloseReason(reason), Message: msg}, nil

	default:
		return ct, nil, io.ErrUnexpectedEOF
	}
}

// NewPing creates a ping control payload.
func NewPing(timestamp uint64) (ControlType, *PingPong) {
	return ControlPing, &PingPong{Timestamp: timestamp}
}

// NewPong creates a pong control payload echoing the ping timestamp.
func NewPong(timestamp uint64) (ControlType, *PingPong) {
	return ControlPong, &PingPong{Timestamp: timestamp}
}

// NewClose creates a close control payload.
func NewClose(reason CloseReason, message string) (ControlType, *CloseMessage) {
	return ControlClose, &CloseMessage{Reason: reason, Message: message}
}
