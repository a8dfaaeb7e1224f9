package jobauth

import (
	"context"

	"github.com/pyjobs/jobauth/jwt"
)

type claimsContextKey struct{}
type subjectContextKey struct{}

// WithClaims attaches verified claims to ctx. The subject is attached as well.
func WithClaims(ctx context.Context, claims *jwt.Claims) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey{}, claims)
	if claims != nil {
		ctx = WithSubject(ctx, claims.Subject)
	}
	return ctx
}

// WithSubject attaches an authenticated subject to ctx without claims. The request guard
// uses it when authentication is switched off.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// ClaimsFromContext returns the claims attached by WithClaims.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.Claims)
	return claims, ok && claims != nil
}

// SubjectFromContext returns the authenticated principal identifier.
func SubjectFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	subject, ok := ctx.Value(subjectContextKey{}).(string)
	return subject, ok
}
