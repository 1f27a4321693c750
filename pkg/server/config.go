package server

import (
	"net/http"
	"time"
)

// ServerConfig configures the gateway.
type ServerConfig struct {
	// Address is the listen address.
	Address string

	// WSPath is the WebSocket endpoint path.
	WSPath string

	// ReadBufferSize and WriteBufferSize size the upgrader's buffers.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the Origin header during the upgrade.
	CheckOrigin func(*http.Request) bool

	// MaxConnections caps concurrent connections. Zero means unlimited.
	MaxConnections int

	// ConnConfig holds the per-connection settings.
	ConnConfig *ConnConfig

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// HTTP server timeouts.
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

// ConnConfig configures an individual connection.
type ConnConfig struct {
	// HandshakeTimeout is how long a fresh connection may take to deliver
	// a valid handshake frame before it is dropped.
	HandshakeTimeout time.Duration

	// ReadTimeout is the idle read deadline; heartbeats keep it fresh.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// HeartbeatInterval is the server ping cadence. Must be shorter than
	// ReadTimeout on the client side for the connection to stay up.
	HeartbeatInterval time.Duration

	// MaxMessageSize caps an inbound WebSocket message.
	MaxMessageSize int64

	// SendQueueSize is the outbound frame buffer. A full queue marks the
	// peer slow and its frames are dropped, never the room's.
	SendQueueSize int
}

// DefaultServerConfig returns the default gateway configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":8090",
		WSPath:            "/ws",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       func(*http.Request) bool { return true },
		ConnConfig:        DefaultConnConfig(),
		ShutdownTimeout:   30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// DefaultConnConfig returns the default per-connection configuration.
func DefaultConnConfig() *ConnConfig {
	return &ConnConfig{
		HandshakeTimeout:  10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    1 << 20,
		SendQueueSize:     256,
	}
}

// fillDefaults fills unset fields from the defaults.
func (c *ServerConfig) fillDefaults() {
	defaults := DefaultServerConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.WSPath == "" {
		c.WSPath = defaults.WSPath
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = defaults.CheckOrigin
	}
	if c.ConnConfig == nil {
		c.ConnConfig = defaults.ConnConfig
	} else {
		c.ConnConfig.fillDefaults()
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
}

func (c *ConnConfig) fillDefaults() {
	defaults := DefaultConnConfig()
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.SendQueueSize == 0 {
		c.SendQueueSize = defaults.SendQueueSize
	}
}
