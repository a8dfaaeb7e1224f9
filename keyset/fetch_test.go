package keyset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type jwksServer struct {
	*httptest.Server
	hits atomic.Int64
	body atomic.Value
}

func newJWKSServer(t *testing.T, body string) *jwksServer {
	t.Helper()
	s := &jwksServer{}
	s.body.Store(body)
	s.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(s.body.Load().(string)))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setBody(body string) { s.body.Store(body) }

func singleKeyDoc(t *testing.T, kid string, i int) string {
	return `{"keys":[` + rsaJWK(kid, "RS256", &testRSAKey(t, i).PublicKey) + `]}`
}

func TestFetcherFetchesDocument(t *testing.T) {
	srv := newJWKSServer(t, singleKeyDoc(t, "k1", 0))

	f := NewFetcher(FetcherConfig{Client: srv.Client()})
	doc, err := f.Fetch(context.Background(), srv.URL+"/.well-known/jwks.json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, ok := doc.Set.Lookup("k1"); !ok {
		t.Fatal("expected k1")
	}
}

func TestFetcherRejectsBadStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFetcher(FetcherConfig{Client: srv.Client()}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrKeySetFetch) {
		t.Fatalf("expected ErrKeySetFetch, got %v", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestFetcherTimeout(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Client: srv.Client(), Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrKeySetFetch) {
		t.Fatalf("expected ErrKeySetFetch, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("fetch did not honor timeout, took %s", time.Since(start))
	}
}

func TestFetcherRejectsOversizedDocument(t *testing.T) {
	srv := newJWKSServer(t, singleKeyDoc(t, "k1", 0))

	f := NewFetcher(FetcherConfig{Client: srv.Client(), MaxDocumentBytes: 64})
	if _, err := f.Fetch(context.Background(), srv.URL); !errors.Is(err, ErrKeySetFetch) {
		t.Fatalf("expected ErrKeySetFetch, got %v", err)
	}
}

func TestFetcherURLPolicy(t *testing.T) {
	f := NewFetcher(FetcherConfig{})
	for _, u := range []string{"http://idp.example/jwks", "ftp://idp.example/jwks", "https:///jwks", "::bad"} {
		if _, err := f.Fetch(context.Background(), u); !errors.Is(err, ErrKeySetFetch) {
			t.Fatalf("%s: expected ErrKeySetFetch, got %v", u, err)
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(singleKeyDoc(t, "k1", 0)))
	}))
	defer srv.Close()

	dev := NewFetcher(FetcherConfig{AllowHTTP: true})
	if _, err := dev.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("AllowHTTP fetch: %v", err)
	}
}

func TestFetcherUsesMemoryCache(t *testing.T) {
	srv := newJWKSServer(t, singleKeyDoc(t, "k1", 0))
	f := NewFetcher(FetcherConfig{Client: srv.Client(), Cache: NewMemoryCache(), CacheTTL: time.Minute})

	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := srv.hits.Load(); got != 1 {
		t.Fatalf("expected one network fetch, got %d", got)
	}
}

func TestFetcherSkipsUnusableCachedDocument(t *testing.T) {
	srv := newJWKSServer(t, singleKeyDoc(t, "k1", 0))
	cache := NewMemoryCache()
	cache.Set(context.Background(), srv.URL, []byte("garbage"), 0)

	f := NewFetcher(FetcherConfig{Client: srv.Client(), Cache: cache})
	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if srv.hits.Load() != 1 {
		t.Fatal("expected refetch after unusable cache entry")
	}
	cached, ok := cache.Get(context.Background(), srv.URL)
	if !ok || string(cached) == "garbage" {
		t.Fatal("cache should hold the fresh document")
	}
}

func TestRedisCacheSharesDocuments(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	srv := newJWKSServer(t, singleKeyDoc(t, "k1", 0))

	first := NewFetcher(FetcherConfig{Client: srv.Client(), Cache: NewRedisCache(client, "", nil), CacheTTL: time.Minute})
	second := NewFetcher(FetcherConfig{Client: srv.Client(), Cache: NewRedisCache(client, "", nil), CacheTTL: time.Minute})

	if _, err := first.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	doc, err := second.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if _, ok := doc.Set.Lookup("k1"); !ok {
		t.Fatal("expected k1 from shared cache")
	}
	if srv.hits.Load() != 1 {
		t.Fatalf("expected one network fetch across replicas, got %d", srv.hits.Load())
	}
	if !mr.Exists("jobauth:jwks:" + srv.URL) {
		t.Fatal("expected document under default prefix")
	}
	if ttl := mr.TTL("jobauth:jwks:" + srv.URL); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %s", ttl)
	}
}

func TestRedisCacheToleratesOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	srv := newJWKSServer(t, singleKeyDoc(t, "k1", 0))
	f := NewFetcher(FetcherConfig{Client: srv.Client(), Cache: NewRedisCache(client, "", nil)})
	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("fetch should succeed without cache: %v", err)
	}
}

func TestFetchRemoteRequiresHTTPS(t *testing.T) {
	if _, err := FetchRemote(context.Background(), "http://127.0.0.1:1/jwks"); !errors.Is(err, ErrKeySetFetch) {
		t.Fatalf("expected ErrKeySetFetch, got %v", err)
	}
}
