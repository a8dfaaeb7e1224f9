package jwt

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pyjobs/jobauth/keyset"
)

func decodeJSONSegment(t *testing.T, seg string) map[string]any {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		t.Fatalf("decode segment: %v", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal segment: %v", err)
	}
	return out
}

func TestIssueDefaults(t *testing.T) {
	c := newClock()
	iss := newTestIssuer(t, "", 0, c)

	token, claims, err := iss.Issue("1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if iss.Algorithm() != keyset.AlgRS256 {
		t.Fatalf("expected RS256, got %s", iss.Algorithm())
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != DefaultTTL {
		t.Fatalf("expected default ttl %s, got %s", DefaultTTL, got)
	}
	if !claims.IssuedAt.Equal(c.Now()) {
		t.Fatalf("expected iat %s, got %s", c.Now(), claims.IssuedAt)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected compact token, got %d segments", len(parts))
	}
	hdr := decodeJSONSegment(t, parts[0])
	if hdr["alg"] != "RS256" {
		t.Fatalf("unexpected header %v", hdr)
	}
	if _, ok := hdr["kid"]; ok {
		t.Fatal("kid must be absent when not configured")
	}

	payload := decodeJSONSegment(t, parts[1])
	for _, name := range []string{"iss", "sub", "aud", "iat", "exp"} {
		if _, ok := payload[name]; !ok {
			t.Fatalf("payload missing %s: %v", name, payload)
		}
	}
	if payload["aud"] != testAudience || payload["iss"] != testIssuer || payload["sub"] != "1" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["exp"].(float64) != float64(c.Now().Add(time.Hour).Unix()) {
		t.Fatalf("unexpected exp %v", payload["exp"])
	}
}

func TestIssueWithKeyIDAndOverrides(t *testing.T) {
	c := newClock()
	iss := newTestIssuer(t, "k1", 0, c)

	token, claims, err := iss.IssueWith("9", IssueOptions{Audience: "https://other/api", TTL: 5 * time.Minute})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if claims.Audience != "https://other/api" || claims.ExpiresAt.Sub(claims.IssuedAt) != 5*time.Minute {
		t.Fatalf("overrides not applied: %+v", claims)
	}
	if hdr := decodeJSONSegment(t, strings.Split(token, ".")[0]); hdr["kid"] != "k1" {
		t.Fatalf("expected kid k1, got %v", hdr)
	}
	if pk := iss.PublicKey(); pk.KeyID != "k1" || pk.Algorithm != keyset.AlgRS256 {
		t.Fatalf("unexpected public key %+v", pk)
	}
}

func TestIssueTruncatesToSeconds(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 750_000_000, time.UTC)
	iss, err := NewIssuer(IssuerConfig{PrivateKey: rsaKey(t, 0), Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	_, claims, err := iss.Issue("1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if claims.IssuedAt.Nanosecond() != 0 {
		t.Fatalf("expected whole seconds, got %s", claims.IssuedAt)
	}
}

func TestNewIssuerRejectsUnusableKey(t *testing.T) {
	if _, err := NewIssuer(IssuerConfig{}); !errors.Is(err, ErrSigning) {
		t.Fatalf("nil key: expected ErrSigning, got %v", err)
	}

	broken := *rsaKey(t, 0)
	broken.Primes = nil
	broken.D = big.NewInt(3)
	if _, err := NewIssuer(IssuerConfig{PrivateKey: &broken}); !errors.Is(err, ErrSigning) {
		t.Fatalf("invalid rsa key: expected ErrSigning, got %v", err)
	}

	if _, err := NewIssuer(IssuerConfig{PrivateKey: rsaKey(t, 0), Algorithm: keyset.AlgES256}); !errors.Is(err, ErrSigning) {
		t.Fatalf("algorithm mismatch: expected ErrSigning, got %v", err)
	}

	if _, err := NewIssuer(IssuerConfig{PrivateKey: rsaKey(t, 0), TTL: -time.Second}); err == nil {
		t.Fatal("expected negative ttl to be rejected")
	}
}

func TestParsePrivateKeyPEM(t *testing.T) {
	priv := rsaKey(t, 0)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec: %v", err)
	}
	ecDER, err := x509.MarshalECPrivateKey(ec)
	if err != nil {
		t.Fatalf("marshal ec: %v", err)
	}
	_, ed, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519: %v", err)
	}
	edDER, err := x509.MarshalPKCS8PrivateKey(ed)
	if err != nil {
		t.Fatalf("marshal ed25519: %v", err)
	}

	cases := []struct {
		name string
		pem  []byte
		alg  string
	}{
		{"pkcs1 rsa", pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}), keyset.AlgRS256},
		{"pkcs8 rsa", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}), keyset.AlgRS256},
		{"ec", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: ecDER}), keyset.AlgES256},
		{"ed25519", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: edDER}), keyset.AlgEdDSA},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := ParsePrivateKeyPEM(tc.pem)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			iss, err := NewIssuer(IssuerConfig{PrivateKey: key})
			if err != nil {
				t.Fatalf("new issuer: %v", err)
			}
			if iss.Algorithm() != tc.alg {
				t.Fatalf("expected %s, got %s", tc.alg, iss.Algorithm())
			}
		})
	}

	if _, err := ParsePrivateKeyPEM([]byte("garbage")); !errors.Is(err, ErrSigning) {
		t.Fatalf("garbage: expected ErrSigning, got %v", err)
	}
}

func TestLoadPrivateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey(t, 0))})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPrivateKey(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := LoadPrivateKey(filepath.Join(t.TempDir(), "missing.pem")); !errors.Is(err, ErrSigning) {
		t.Fatalf("missing: expected ErrSigning, got %v", err)
	}
}
