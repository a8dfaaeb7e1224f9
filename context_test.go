package jobauth

import (
	"context"
	"testing"

	"github.com/pyjobs/jobauth/jwt"
)

func TestClaimsContextRoundTrip(t *testing.T) {
	claims := &jwt.Claims{Subject: "42", Issuer: "https://auth.example/"}
	ctx := WithClaims(context.Background(), claims)

	got, ok := ClaimsFromContext(ctx)
	if !ok || got != claims {
		t.Fatalf("expected claims back, got %v %v", got, ok)
	}
	subject, ok := SubjectFromContext(ctx)
	if !ok || subject != "42" {
		t.Fatalf("expected subject 42, got %q %v", subject, ok)
	}
}

func TestSubjectWithoutClaims(t *testing.T) {
	ctx := WithSubject(context.Background(), "test")
	if _, ok := ClaimsFromContext(ctx); ok {
		t.Fatal("expected no claims")
	}
	if subject, ok := SubjectFromContext(ctx); !ok || subject != "test" {
		t.Fatalf("expected subject test, got %q", subject)
	}
}

func TestContextLookupsOnEmptyContext(t *testing.T) {
	//lint:ignore SA1012 nil context is part of the contract
	if _, ok := ClaimsFromContext(nil); ok {
		t.Fatal("nil context must not carry claims")
	}
	if _, ok := SubjectFromContext(context.Background()); ok {
		t.Fatal("empty context must not carry a subject")
	}
	if _, ok := ClaimsFromContext(WithClaims(context.Background(), nil)); ok {
		t.Fatal("nil claims must not be reported")
	}
}
