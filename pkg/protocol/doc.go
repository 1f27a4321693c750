// Package protocol implements the binary wire protocol spoken between the
// collab gateway and its clients.
//
// Every WebSocket message is a single frame: a fixed 4-byte header followed
// by a type-specific payload. Handshake, control, error, and room-listing
// payloads are encoded with the length-prefixed binary codec in this package;
// document update, awareness, and snapshot payloads are opaque byte sequences
// passed through untouched.
//
// The decoder enforces allocation caps so a malicious length prefix cannot
// force a large allocation before the payload is validated.
package protocol
