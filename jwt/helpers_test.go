package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/pyjobs/jobauth/keyset"
)

const (
	testIssuer   = "https://auth.example/"
	testAudience = "https://example/jobs"
)

var (
	rsaOnce sync.Once
	rsaPool []*rsa.PrivateKey
)

func rsaKey(t testing.TB, i int) *rsa.PrivateKey {
	t.Helper()
	rsaOnce.Do(func() {
		for n := 0; n < 2; n++ {
			k, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(err)
			}
			rsaPool = append(rsaPool, k)
		}
	})
	return rsaPool[i]
}

// clock is a settable time source shared by an Issuer and a Verifier in tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestIssuer(t testing.TB, kid string, keyIndex int, c *clock) *Issuer {
	t.Helper()
	cfg := IssuerConfig{
		PrivateKey: rsaKey(t, keyIndex),
		Issuer:     testIssuer,
		Audience:   testAudience,
		KeyID:      kid,
	}
	if c != nil {
		cfg.Now = c.Now
	}
	iss, err := NewIssuer(cfg)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return iss
}

func newTestVerifier(t testing.TB, set *keyset.Set, c *clock) *Verifier {
	t.Helper()
	cfg := VerifierConfig{}
	if c != nil {
		cfg.Now = c.Now
	}
	v, err := NewVerifier(set, cfg)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func mustSet(t testing.TB, keys ...keyset.VerificationKey) *keyset.Set {
	t.Helper()
	set, err := keyset.NewSet(keys...)
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	return set
}
