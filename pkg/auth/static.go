package auth

import "context"

// StaticVerifier resolves tokens from a fixed table. It exists for tests
// and local development where no signing secret is configured; it must be
// selected explicitly, never as a fallback.
type StaticVerifier struct {
	tokens map[string]string // token -> user id
}

// NewStaticVerifier creates a verifier over a fixed token table.
// The map is copied; later mutation of the argument has no effect.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &StaticVerifier{tokens: cp}
}

// Verify looks the token up in the table.
func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	userID, ok := v.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return userID, nil
}
