// Package server is the WebSocket gateway for collaborative sessions.
//
// Each accepted connection walks a fixed state machine:
//
//	Connecting → Handshaking → Joined → Closed
//
// The first frame after the upgrade must be a handshake carrying the
// bearer credential and the target session id. Once verified, the client
// receives the document snapshot, then a connected acknowledgement, and
// from that point participates in the room's update and awareness relay.
// A connection that fails the handshake gets an error frame and is closed
// without ever touching room membership.
package server
