package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for common gateway error conditions.
var (
	// ErrConnClosed is returned when an operation is attempted on a closed connection.
	ErrConnClosed = errors.New("server: connection closed")

	// ErrNotJoined is returned when a data frame arrives before the handshake completed.
	ErrNotJoined = errors.New("server: connection has not joined a session")

	// ErrInvalidHandshake is returned when the first frame is not a well-formed handshake.
	ErrInvalidHandshake = errors.New("server: invalid handshake")

	// ErrMissingSession is returned when the handshake carries no session id.
	ErrMissingSession = errors.New("server: missing session id")

	// ErrMaxConnections is returned when the connection limit is reached.
	ErrMaxConnections = errors.New("server: max connections reached")

	// ErrSendQueueFull is returned when a frame is dropped because the
	// connection's outbound queue is full.
	ErrSendQueueFull = errors.New("server: send queue full")

	// ErrServerClosed is returned when the gateway is shutting down.
	ErrServerClosed = errors.New("server: server closed")
)

// ConnError wraps an error with connection context for debugging.
type ConnError struct {
	ConnID    string
	SessionID string
	Op        string
	Err       error
}

// Error returns the error message with connection context.
func (e *ConnError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("server: conn %s: %s: %v", e.ConnID, e.Op, e.Err)
	}
	return fmt.Sprintf("server: conn %s session %s: %s: %v", e.ConnID, e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// NewConnError creates a new ConnError.
func NewConnError(connID, sessionID, op string, err error) *ConnError {
	return &ConnError{
		ConnID:    connID,
		SessionID: sessionID,
		Op:        op,
		Err:       err,
	}
}
