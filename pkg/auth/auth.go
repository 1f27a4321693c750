// Package auth verifies the bearer credential presented at connection
// handshake and resolves it to a stable user identifier.
//
// The gateway only consumes the pass/fail verdict and the identity claim;
// everything else about the token is this package's concern. The production
// verifier checks an HS256-signed JWT; a static verifier exists for tests
// and local development.
package auth

import (
	"context"
	"errors"
)

// Sentinel errors for credential verification.
var (
	// ErrMissingToken is returned when no credential was presented.
	ErrMissingToken = errors.New("auth: missing token")

	// ErrInvalidToken is returned when the credential fails verification
	// or carries no usable identity claim.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Verifier validates a bearer credential and yields the user id it belongs
// to. Implementations must be safe for concurrent use.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (string, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}
