package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/peercode/collab/pkg/auth"
	"github.com/peercode/collab/pkg/doc"
	"github.com/peercode/collab/pkg/persist"
	"github.com/peercode/collab/pkg/protocol"
	"github.com/peercode/collab/pkg/room"
	"github.com/peercode/collab/pkg/store"
)

var tracer = otel.Tracer("collab/server")

// Server is the WebSocket gateway.
type Server struct {
	config   *ServerConfig
	verifier auth.Verifier
	registry *room.Registry
	bridge   *persist.Bridge
	manager  *Manager

	upgrader websocket.Upgrader

	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a gateway on top of the given verifier and document store.
// A nil config uses the defaults.
func New(config *ServerConfig, verifier auth.Verifier, st store.DocStore, logger *slog.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	} else {
		config.fillDefaults()
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := logger
	logger = logger.With("component", "server")

	bridge := persist.NewBridge(st, persist.Config{
		Logger: base,
		OnDrop: func(_, reason string) {
			promMetrics().persistDrops.WithLabelValues(reason).Inc()
		},
	})

	registry := room.NewRegistry(st, room.RegistryConfig{
		Merger:  doc.NewSetMerger(),
		Persist: bridge.Enqueue,
		Logger:  base,
		OnRoomCreate: func(string) {
			promMetrics().activeRooms.Inc()
		},
		OnRoomEvict: func(string) {
			promMetrics().activeRooms.Dec()
		},
	})

	return &Server{
		config:   config,
		verifier: verifier,
		registry: registry,
		bridge:   bridge,
		manager:  NewManager(config.MaxConnections, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: logger,
	}
}

// Registry returns the room registry.
func (s *Server) Registry() *room.Registry {
	return s.registry
}

// Manager returns the connection manager.
func (s *Server) Manager() *Manager {
	return s.manager
}

// Handler returns the HTTP surface: the WebSocket endpoint plus health,
// metrics, and diagnostics. Mountable in an external router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get(s.config.WSPath, s.HandleWebSocket)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/rooms", s.handleDebugRooms)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": s.manager.Count(),
		"rooms":       s.registry.Count(),
	})
}

func (s *Server) handleDebugRooms(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.registry.ListMembership())
}

// HandleWebSocket upgrades the request and runs the connection to
// completion: handshake, join, then the read loop until disconnect.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := newConn(uuid.NewString(), ws, s.config.ConnConfig, s.logger)

	if !s.handshake(r.Context(), conn) {
		ws.Close()
		return
	}

	go conn.writePump()
	s.readLoop(r.Context(), conn)
}

// handshake drives Connecting → Handshaking → Joined. On any failure it
// sends a final error frame and reports false; the connection never
// touches room membership.
func (s *Server) handshake(ctx context.Context, conn *Conn) bool {
	ws := conn.ws
	cfg := s.config.ConnConfig

	ws.SetReadLimit(cfg.MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout))

	// Wait for the handshake frame. Anything else that arrives first is
	// ignored; the deadline bounds the whole exchange.
	var hello *protocol.ClientHello
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			s.failHandshake(conn, "timeout", 0, "")
			return false
		}

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			s.failHandshake(conn, "invalid_format", protocol.ErrCodeInternal, "malformed frame")
			return false
		}
		if frame.Type != protocol.FrameHandshake {
			conn.logger.Debug("ignoring pre-handshake frame", "frame_type", frame.Type.String())
			continue
		}

		conn.setState(StateHandshaking)
		hello, err = protocol.DecodeClientHello(frame.Payload)
		if err != nil {
			s.failHandshake(conn, "invalid_format", protocol.ErrCodeInternal, "malformed handshake")
			return false
		}
		break
	}

	userID, err := s.verifier.Verify(ctx, hello.Token)
	if err != nil {
		conn.logger.Info("handshake rejected", "error", err)
		s.failHandshake(conn, "unauthorized", protocol.ErrCodeUnauthorized, "credential rejected")
		return false
	}

	if hello.SessionID == "" {
		s.failHandshake(conn, "missing_session", protocol.ErrCodeMissingSession, "session id required")
		return false
	}

	if err := s.manager.Add(conn); err != nil {
		reason := "server_busy"
		if errors.Is(err, ErrServerClosed) {
			reason = "shutting_down"
		}
		s.failHandshake(conn, reason, protocol.ErrCodeInternal, "server unavailable")
		return false
	}

	conn.userID = userID
	conn.sessionID = hello.SessionID
	conn.onClose = func(c *Conn) {
		s.registry.Leave(c.sessionID, c.id)
		s.manager.Remove(c.id)
		c.logger.Info("connection closed",
			"session_id", c.sessionID,
			"user_id", c.userID)
	}

	snapshot, err := s.registry.Join(ctx, hello.SessionID, conn)
	if err != nil {
		s.manager.Remove(conn.id)
		conn.logger.Error("join failed", "session_id", hello.SessionID, "error", err)
		s.failHandshake(conn, "join_error", protocol.ErrCodeInternal, "could not join session")
		return false
	}

	// Snapshot first, then the ack; the client may apply relayed updates
	// only after both.
	if err := conn.writeNow(protocol.NewFrame(protocol.FrameState, snapshot)); err != nil {
		conn.Close()
		return false
	}
	ack := protocol.EncodeConnected(&protocol.Connected{
		UserID:    userID,
		SessionID: hello.SessionID,
	})
	if err := conn.writeNow(protocol.NewFrame(protocol.FrameConnected, ack)); err != nil {
		conn.Close()
		return false
	}

	conn.setState(StateJoined)
	promMetrics().connectionsTotal.Inc()
	conn.logger.Info("connection joined",
		"session_id", hello.SessionID,
		"user_id", userID)
	return true
}

// failHandshake records the failure and sends the final error frame when
// there is a code to send. The caller closes the socket.
func (s *Server) failHandshake(conn *Conn, reason string, code protocol.ErrorCode, message string) {
	promMetrics().handshakeFailures.WithLabelValues(reason).Inc()
	if code != 0 {
		payload := protocol.EncodeError(&protocol.ErrorMessage{Code: code, Message: message})
		conn.writeNow(protocol.NewFrame(protocol.FrameError, payload))
	}
}

// readLoop routes inbound frames for a joined connection until it dies.
// ctx is the upgrade request's context; spans started for inbound frames
// parent under any trace the client propagated on the upgrade.
func (s *Server) readLoop(ctx context.Context, conn *Conn) {
	defer conn.Close()

	ws := conn.ws
	cfg := s.config.ConnConfig

	for {
		ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				conn.logger.Error("read error", "error", err)
			}
			return
		}

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			conn.logger.Error("frame decode error", "error", err)
			continue
		}

		switch frame.Type {
		case protocol.FrameUpdate:
			s.handleUpdate(ctx, conn, frame.Payload)

		case protocol.FrameAwareness:
			s.handleAwareness(conn, frame.Payload)

		case protocol.FrameControl:
			if !s.handleControl(conn, frame.Payload) {
				return
			}

		case protocol.FrameRooms:
			s.handleRoomsRequest(conn)

		default:
			conn.logger.Warn("unexpected frame type", "type", frame.Type.String())
		}
	}
}

// handleUpdate applies a delta to the connection's room. An undecodable
// delta earns an error notice to this sender only; the room and the
// other participants never see it.
func (s *Server) handleUpdate(ctx context.Context, conn *Conn, delta []byte) {
	_, span := tracer.Start(ctx, "gateway.update")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", conn.sessionID),
		attribute.String("conn.id", conn.id),
		attribute.Int("delta.bytes", len(delta)),
	)

	rm, err := s.registry.Get(conn.sessionID)
	if err != nil {
		// The room can only disappear after this connection left it.
		span.SetStatus(codes.Error, "room gone")
		return
	}

	start := time.Now()
	err = rm.ApplyUpdate(conn.id, delta)
	promMetrics().applyDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, doc.ErrInvalidUpdate) {
			promMetrics().updateErrors.Inc()
			span.SetStatus(codes.Error, "invalid update")
			conn.sendError(protocol.ErrCodeInvalidUpdate, "update failed to decode")
			return
		}
		span.SetStatus(codes.Error, err.Error())
		conn.logger.Error("update apply failed", "error", err)
		return
	}

	promMetrics().updatesTotal.Inc()
}

func (s *Server) handleAwareness(conn *Conn, payload []byte) {
	rm, err := s.registry.Get(conn.sessionID)
	if err != nil {
		return
	}
	rm.Awareness(conn.id, payload)
	promMetrics().awarenessTotal.Inc()
}

// handleControl answers pings and honors client-initiated close. Returns
// false when the read loop should stop.
func (s *Server) handleControl(conn *Conn, payload []byte) bool {
	ct, data, err := protocol.DecodeControl(payload)
	if err != nil {
		conn.logger.Error("control decode error", "error", err)
		return true
	}

	switch ct {
	case protocol.ControlPing:
		if pp, ok := data.(*protocol.PingPong); ok {
			_, pong := protocol.NewPong(pp.Timestamp)
			conn.Deliver(protocol.NewFrame(protocol.FrameControl,
				protocol.EncodeControl(protocol.ControlPong, pong)))
		}
		return true

	case protocol.ControlPong:
		conn.logger.Debug("received pong")
		return true

	case protocol.ControlClose:
		if cm, ok := data.(*protocol.CloseMessage); ok {
			conn.logger.Info("client closing",
				"reason", cm.Reason,
				"message", cm.Message)
		}
		return false

	default:
		return true
	}
}

func (s *Server) handleRoomsRequest(conn *Conn) {
	listing := &protocol.RoomsListing{Rooms: s.registry.ListMembership()}
	conn.Deliver(protocol.NewFrame(protocol.FrameRooms, protocol.EncodeRoomsListing(listing)))
}

// Run starts the server and blocks until a shutdown signal or a listener
// error.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes connections, evicts rooms, flushes the persistence
// bridge, and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.manager.Shutdown()
	s.registry.Close()

	if err := s.bridge.Close(ctx); err != nil && !errors.Is(err, persist.ErrBridgeClosed) {
		s.logger.Error("persistence flush incomplete", "error", err)
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}
