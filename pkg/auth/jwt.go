package auth

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWTVerifier verifies HS256-signed JWTs against a shared secret and
// resolves the subject claim to the user id.
type JWTVerifier struct {
	secret   []byte
	audience string
	issuer   string
}

// JWTOption configures a JWTVerifier.
type JWTOption func(*JWTVerifier)

// WithAudience requires the token's aud claim to match.
func WithAudience(aud string) JWTOption {
	return func(v *JWTVerifier) {
		v.audience = aud
	}
}

// WithIssuer requires the token's iss claim to match.
func WithIssuer(iss string) JWTOption {
	return func(v *JWTVerifier) {
		v.issuer = iss
	}
}

// NewJWTVerifier creates a verifier for HS256 tokens signed with secret.
func NewJWTVerifier(secret []byte, opts ...JWTOption) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("auth: empty JWT secret")
	}
	v := &JWTVerifier{secret: secret}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify parses and validates the token, returning the subject claim.
// Expiry and not-before are checked during validation; a token without a
// subject is rejected even if its signature is valid.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}

	parseOpts := []jwt.ParseOption{
		jwt.WithContext(ctx),
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
	}
	if v.audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(v.issuer))
	}

	tok, err := jwt.Parse([]byte(token), parseOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub := tok.Subject()
	if sub == "" {
		return "", fmt.Errorf("%w: no subject claim", ErrInvalidToken)
	}
	return sub, nil
}
