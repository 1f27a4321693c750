package server

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peercode/collab/pkg/protocol"
)

// ConnState is the lifecycle state of one connection.
type ConnState int32

const (
	StateConnecting  ConnState = iota // Upgraded, handshake not yet seen
	StateHandshaking                  // Handshake frame received, verifying
	StateJoined                       // Member of a session, relay eligible
	StateClosed                       // Terminal
)

// String returns the string representation of the connection state.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateHandshaking:
		return "Handshaking"
	case StateJoined:
		return "Joined"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Conn is a single client connection.
//
// All outbound traffic goes through the send queue and the write pump
// goroutine, so the room's broadcast never blocks on this peer's socket.
// The id is assigned at upgrade; userID and sessionID are set exactly
// once, when the handshake succeeds.
type Conn struct {
	id        string
	userID    string
	sessionID string

	ws     *websocket.Conn
	config *ConnConfig

	state  atomic.Int32
	send   chan *protocol.Frame
	done   chan struct{}
	closed atomic.Bool

	closeOnce sync.Once

	// onClose runs exactly once when the connection dies, regardless of
	// which side initiated it. The gateway uses it to cascade removal
	// into the room and the manager.
	onClose func(*Conn)

	logger *slog.Logger
}

func newConn(id string, ws *websocket.Conn, config *ConnConfig, logger *slog.Logger) *Conn {
	c := &Conn{
		id:     id,
		ws:     ws,
		config: config,
		send:   make(chan *protocol.Frame, config.SendQueueSize),
		done:   make(chan struct{}),
		logger: logger.With("conn_id", id),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// ID returns the connection id.
func (c *Conn) ID() string {
	return c.id
}

// UserID returns the authenticated user, empty before the handshake.
func (c *Conn) UserID() string {
	return c.userID
}

// SessionID returns the joined session, empty before the handshake.
func (c *Conn) SessionID() string {
	return c.sessionID
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Conn) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Deliver enqueues a frame for the write pump. It never blocks; a closed
// connection or a full queue returns false and the frame is dropped.
func (c *Conn) Deliver(f *protocol.Frame) bool {
	if c.closed.Load() {
		return false
	}

	select {
	case c.send <- f:
		return true
	default:
		promMetrics().framesDropped.WithLabelValues("queue_full").Inc()
		return false
	}
}

// writeNow writes a frame synchronously with the write deadline. Used
// during the handshake, before the write pump owns the socket, and for
// the final error frame on a failed handshake.
func (c *Conn) writeNow(f *protocol.Frame) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, f.Encode())
}

// writePump owns the socket's write side: queued frames and periodic
// pings. Runs until the connection closes.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case f := <-c.send:
			if err := c.writeNow(f); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			ct, pp := protocol.NewPing(uint64(time.Now().UnixMilli()))
			f := protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(ct, pp))
			if err := c.writeNow(f); err != nil {
				c.logger.Debug("heartbeat failed", "error", err)
				c.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}

// sendError delivers an error notice to this client only.
func (c *Conn) sendError(code protocol.ErrorCode, message string) {
	payload := protocol.EncodeError(&protocol.ErrorMessage{Code: code, Message: message})
	c.Deliver(protocol.NewFrame(protocol.FrameError, payload))
}

// Close tears the connection down. Safe to call from any goroutine and
// any state; the first caller wins and the cleanup callback runs once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.setState(StateClosed)
		close(c.done)

		if c.onClose != nil {
			c.onClose(c)
		}
		c.ws.Close()
	})
}
