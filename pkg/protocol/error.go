package protocol

// ErrorCode categorizes error notices sent to a client.
type ErrorCode uint8

const (
	ErrCodeUnauthorized   ErrorCode = 0x01 // Handshake credential rejected
	ErrCodeMissingSession ErrorCode = 0x02 // Handshake session id missing
	ErrCodeInvalidUpdate  ErrorCode = 0x03 // Delta payload failed to decode
	ErrCodeNotJoined      ErrorCode = 0x04 // Message before join completed
	ErrCodeInternal       ErrorCode = 0x05 // Unclassified server error
)

// String returns the string representation of the error code.
func (ec ErrorCode) String() string {
	switch ec {
	case ErrCodeUnauthorized:
		return "Unauthorized"
	case ErrCodeMissingSession:
		return "MissingSession"
	case ErrCodeInvalidUpdate:
		return "InvalidUpdate"
	case ErrCodeNotJoined:
		return "NotJoined"
	case ErrCodeInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// ErrorMessage is an error notice delivered to a single client. In-session
// errors go only to the originating connection; handshake errors precede
// the connection close.
type ErrorMessage struct {
	Code    ErrorCode
	Message string
}

// EncodeError encodes an ErrorMessage to bytes.
func EncodeError(em *ErrorMessage) []byte {
	e := NewEncoder()
	e.WriteByte(byte(em.Code))
	e.WriteString(em.Message)
	return e.Bytes()
}

// DecodeError decodes an ErrorMessage from bytes.
func DecodeError(data []byte) (*ErrorMessage, error) {
	d := NewDecoder(data)

	code, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	msg, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	return &ErrorMessage{Code: ErrorCode(code), Message: msg}, nil
}
