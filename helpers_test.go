package jobauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pyjobs/jobauth/keyset"
)

var (
	keyOnce sync.Once
	keyPool []*rsa.PrivateKey
)

func testKey(t testing.TB, i int) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		for n := 0; n < 2; n++ {
			k, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(err)
			}
			keyPool = append(keyPool, k)
		}
	})
	return keyPool[i]
}

func privatePEM(k *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}))
}

func publicPEM(t *testing.T, k *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&k.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

type fixedClock struct {
	now atomic.Int64
}

func newFixedClock() *fixedClock {
	c := &fixedClock{}
	c.now.Store(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Unix())
	return c
}

func (c *fixedClock) Now() time.Time          { return time.Unix(c.now.Load(), 0) }
func (c *fixedClock) Advance(d time.Duration) { c.now.Add(int64(d / time.Second)) }

// jwksServer serves a JWKS document over TLS and counts requests.
type jwksServer struct {
	*httptest.Server
	hits atomic.Int64
	doc  atomic.Value
}

func newJWKSServer(t *testing.T, keys ...keyset.VerificationKey) *jwksServer {
	t.Helper()
	s := &jwksServer{}
	s.publish(t, keys...)
	s.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(s.doc.Load().([]byte))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) publish(t *testing.T, keys ...keyset.VerificationKey) {
	t.Helper()
	doc, err := keyset.MarshalJWKS(keys...)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	s.doc.Store(doc)
}

func buildEngine(t *testing.T, b *Builder) *Engine {
	t.Helper()
	e, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}
