package keyset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RefreshResult describes one completed refresh attempt.
type RefreshResult struct {
	URL      string
	Keys     int
	Skipped  int
	Duration time.Duration
	Err      error
}

// RemoteConfig configures a Remote key source.
type RemoteConfig struct {
	URL     string
	Fetcher *Fetcher
	// RefreshInterval enables a background refresh loop when positive. Zero keeps the
	// keys fetched at startup for the life of the process, refreshed only by Refresh.
	RefreshInterval time.Duration
	Logger          *zap.Logger
	// OnRefresh is called after every refresh attempt.
	OnRefresh func(RefreshResult)
}

// Remote is a Resolver backed by a remote key-set document.
type Remote struct {
	url       string
	fetcher   *Fetcher
	store     *Store
	interval  time.Duration
	logger    *zap.Logger
	onRefresh func(RefreshResult)

	// loaded is set after the first successful refresh. Until then a cached document
	// may stand in for the network.
	loaded    atomic.Bool
	group     singleflight.Group
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewRemote returns a Remote with an empty key set. Call Refresh before serving traffic.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote key set url required")
	}
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(FetcherConfig{Logger: cfg.Logger})
	}
	if err := fetcher.checkURL(cfg.URL); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remote{
		url:       cfg.URL,
		fetcher:   fetcher,
		store:     NewStore(nil),
		interval:  cfg.RefreshInterval,
		logger:    logger,
		onRefresh: cfg.OnRefresh,
		done:      make(chan struct{}),
	}, nil
}

// Lookup resolves kid against the most recently fetched set. It never performs I/O.
func (r *Remote) Lookup(kid string) (VerificationKey, bool) {
	return r.store.Lookup(kid)
}

// Snapshot returns the current set, nil before the first successful refresh.
func (r *Remote) Snapshot() *Set {
	return r.store.Snapshot()
}

// URL returns the key-set location.
func (r *Remote) URL() string {
	return r.url
}

// Refresh fetches the document and swaps the new set in. Concurrent callers share one
// fetch. The first successful refresh may be served from the Fetcher's cache; every
// later one goes to the network and rewrites the cache. On failure the previous set
// stays in place.
func (r *Remote) Refresh(ctx context.Context) error {
	_, err, _ := r.group.Do(r.url, func() (interface{}, error) {
		start := time.Now()
		doc, err := r.fetcher.fetch(ctx, r.url, !r.loaded.Load())
		res := RefreshResult{URL: r.url, Duration: time.Since(start), Err: err}
		if err == nil {
			r.store.Replace(doc.Set)
			r.loaded.Store(true)
			res.Keys = doc.Set.Len()
			res.Skipped = len(doc.Skipped)
			r.logger.Info("jwks refreshed",
				zap.String("url", r.url),
				zap.Int("keys", res.Keys),
				zap.Int("skipped", res.Skipped),
				zap.Duration("took", res.Duration),
			)
		} else {
			r.logger.Error("jwks refresh failed", zap.String("url", r.url), zap.Error(err))
		}
		if r.onRefresh != nil {
			r.onRefresh(res)
		}
		return nil, err
	})
	return err
}

// Start launches the background refresh loop when a refresh interval is configured.
// The loop ends when ctx is done or Close is called.
func (r *Remote) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.loop(ctx)
	})
}

func (r *Remote) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = r.Refresh(ctx)
		case <-ctx.Done():
			return
		case <-r.done:
			return
		}
	}
}

// Close stops the background loop and waits for it to exit.
func (r *Remote) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}
