package keyset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultFetchTimeout bounds a single key-set request. A hung identity provider
	// surfaces as a fetch failure instead of holding the caller.
	DefaultFetchTimeout = 5 * time.Second
	// DefaultMaxDocumentBytes caps the size of a key-set response body.
	DefaultMaxDocumentBytes int64 = 1 << 20
)

// FetcherConfig configures a Fetcher. Zero values select the defaults.
type FetcherConfig struct {
	Client           *http.Client
	Timeout          time.Duration
	MaxDocumentBytes int64
	// AllowHTTP permits plain-http URLs, for local development only.
	AllowHTTP bool
	// Cache, when set, is consulted by Fetch before the network and filled after every
	// successful download.
	Cache    Cache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Fetcher retrieves and parses remote key-set documents. It performs exactly one
// request per call and never retries.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	allowHTTP bool
	cache     Cache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewFetcher returns a Fetcher for cfg.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		client:    cfg.Client,
		timeout:   cfg.Timeout,
		maxBytes:  cfg.MaxDocumentBytes,
		allowHTTP: cfg.AllowHTTP,
		cache:     cfg.Cache,
		cacheTTL:  cfg.CacheTTL,
		logger:    cfg.Logger,
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.timeout <= 0 {
		f.timeout = DefaultFetchTimeout
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxDocumentBytes
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f
}

// FetchRemote fetches the key set at rawURL with default settings.
func FetchRemote(ctx context.Context, rawURL string) (*Set, error) {
	doc, err := NewFetcher(FetcherConfig{}).Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return doc.Set, nil
}

// Fetch returns the parsed document at rawURL, served from the cache when it holds a
// usable copy. Skipped entries are logged and returned in Document.Skipped; they do not
// fail the fetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	return f.fetch(ctx, rawURL, true)
}

// fetch downloads rawURL unless useCache is set and the cache holds a usable copy. The
// cache is written after every successful download either way.
func (f *Fetcher) fetch(ctx context.Context, rawURL string, useCache bool) (*Document, error) {
	if err := f.checkURL(rawURL); err != nil {
		return nil, err
	}

	if useCache && f.cache != nil {
		if data, ok := f.cache.Get(ctx, rawURL); ok {
			doc, err := ParseJWKS(data)
			if err == nil {
				f.logSkipped(rawURL, doc)
				return doc, nil
			}
			f.logger.Warn("cached jwks unusable, refetching", zap.String("url", rawURL), zap.Error(err))
		}
	}

	data, err := f.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := ParseJWKS(data)
	if err != nil {
		return nil, err
	}
	f.logSkipped(rawURL, doc)

	if f.cache != nil {
		f.cache.Set(ctx, rawURL, data, f.cacheTTL)
	}
	return doc, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrKeySetFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: unexpected status %d", ErrKeySetFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrKeySetFetch, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrKeySetFetch, f.maxBytes)
	}
	return data, nil
}

func (f *Fetcher) checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid url: %v", ErrKeySetFetch, err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !f.allowHTTP {
			return fmt.Errorf("%w: refusing plain http url %q", ErrKeySetFetch, rawURL)
		}
	default:
		return fmt.Errorf("%w: unsupported url scheme %q", ErrKeySetFetch, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", ErrKeySetFetch)
	}
	return nil
}

func (f *Fetcher) logSkipped(rawURL string, doc *Document) {
	for _, err := range doc.Skipped {
		f.logger.Warn("skipping jwks entry", zap.String("url", rawURL), zap.Error(err))
	}
}
