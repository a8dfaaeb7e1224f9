package middleware

import (
	"context"

	"github.com/pyjobs/jobauth/jwt"
)

// Verifier authenticates a bearer token. *jobauth.Engine implements it.
type Verifier interface {
	Verify(ctx context.Context, token string) (*jwt.Claims, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (*jwt.Claims, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (*jwt.Claims, error) {
	return f(ctx, token)
}

// AudienceVerifier verifies a token for an explicit audience.
type AudienceVerifier interface {
	VerifyAudience(ctx context.Context, token, audience string) (*jwt.Claims, error)
}

// ForAudience returns a Verifier that checks tokens against audience instead of the
// engine's configured one. Use it for routes serving a second API.
func ForAudience(v AudienceVerifier, audience string) Verifier {
	return VerifierFunc(func(ctx context.Context, token string) (*jwt.Claims, error) {
		return v.VerifyAudience(ctx, token, audience)
	})
}

// ForJWTVerifier wraps a bare *jwt.Verifier, for services that do not build an Engine.
func ForJWTVerifier(v *jwt.Verifier, audience string) Verifier {
	return VerifierFunc(func(_ context.Context, token string) (*jwt.Claims, error) {
		return v.Verify(token, audience)
	})
}
