package jobauth

import (
	"context"
	"crypto"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pyjobs/jobauth/jwt"
	"github.com/pyjobs/jobauth/keyset"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config     Config
	logger     *zap.Logger
	redis      redis.UniversalClient
	httpClient *http.Client
	auditSink  AuditSink
	signingKey crypto.Signer
	keys       *keyset.Set
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithRedis supplies the client used when Cache.Mode is "redis". Without it, Build dials
// Cache.RedisAddr.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHTTPClient sets the client used to fetch the JWKS document.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithSigningKey enables issuing with key, overriding Token.PrivateKeyPath/PrivateKeyPEM.
func (b *Builder) WithSigningKey(key crypto.Signer) *Builder {
	b.signingKey = key
	return b
}

// WithKeySet verifies against a fixed set, overriding the Keys configuration.
func (b *Builder) WithKeySet(set *keyset.Set) *Builder {
	b.keys = set
	return b
}

// WithClock replaces time.Now for issuing and expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and loads the verification keys. With a JWKS URL the
// document is fetched before Build returns; a fetch failure fails Build, since no token
// can be verified without keys.
func (b *Builder) Build(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.validate(b.keys != nil || b.signingKey != nil); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	backend, err := jwt.BackendByName(cfg.Token.Backend)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink, b.now, logger),
	}

	// -------- SIGNING KEY --------
	signingKey := b.signingKey
	if signingKey == nil {
		signingKey, err = loadSigningKey(cfg.Token)
		if err != nil {
			engine.Close()
			return nil, err
		}
	}
	if signingKey != nil {
		engine.issuer, err = jwt.NewIssuer(jwt.IssuerConfig{
			PrivateKey: signingKey,
			Issuer:     cfg.Token.Issuer,
			Audience:   cfg.Token.Audience,
			TTL:        cfg.Token.TTL,
			KeyID:      cfg.Token.SigningKeyID,
			Algorithm:  cfg.Token.Algorithm,
			Backend:    backend,
			Now:        b.now,
		})
		if err != nil {
			engine.Close()
			return nil, err
		}
	}

	// -------- VERIFICATION KEYS --------
	var resolver keyset.Resolver
	switch {
	case b.keys != nil:
		engine.static = b.keys
		resolver = b.keys
	case cfg.Keys.JWKSURL != "":
		remote, err := b.buildRemote(ctx, cfg, engine)
		if err != nil {
			engine.Close()
			return nil, err
		}
		engine.remote = remote
		resolver = remote
	case cfg.Keys.PublicKeyPath != "" || cfg.Keys.PublicKeyPEM != "":
		set, err := loadLocalKeys(cfg)
		if err != nil {
			engine.Close()
			return nil, err
		}
		engine.static = set
		resolver = set
	case engine.issuer != nil:
		set, err := keyset.NewSet(engine.issuer.PublicKey())
		if err != nil {
			engine.Close()
			return nil, err
		}
		engine.static = set
		resolver = set
	default:
		engine.Close()
		return nil, ErrNoKeySource
	}

	engine.verifier, err = jwt.NewVerifier(resolver, jwt.VerifierConfig{
		Backend:        backend,
		Leeway:         cfg.Token.Leeway,
		AllowedIssuers: cfg.Token.AllowedIssuers,
		Now:            b.now,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}

	b.built = true
	logger.Info("jobauth engine ready",
		zap.Int("keys", engine.KeySet().Len()),
		zap.Bool("issuing", engine.issuer != nil),
		zap.String("backend", backend.Name()),
	)
	return engine, nil
}

func (b *Builder) buildRemote(ctx context.Context, cfg Config, engine *Engine) (*keyset.Remote, error) {
	var cache keyset.Cache
	switch cfg.Cache.Mode {
	case CacheMemory:
		cache = keyset.NewMemoryCache()
	case CacheRedis:
		client := b.redis
		if client == nil {
			if cfg.Cache.RedisAddr == "" {
				return nil, fmt.Errorf("Cache Mode %q requires a redis client or RedisAddr", CacheRedis)
			}
			owned := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
			engine.ownedRedis = owned
			client = owned
		}
		cache = keyset.NewRedisCache(client, cfg.Cache.RedisPrefix, engine.logger)
	}

	fetcher := keyset.NewFetcher(keyset.FetcherConfig{
		Client:           b.httpClient,
		Timeout:          cfg.Keys.FetchTimeout,
		MaxDocumentBytes: cfg.Keys.MaxDocumentBytes,
		AllowHTTP:        cfg.Keys.AllowHTTP,
		Cache:            cache,
		CacheTTL:         cfg.Cache.TTL,
		Logger:           engine.logger,
	})
	remote, err := keyset.NewRemote(keyset.RemoteConfig{
		URL:             cfg.Keys.JWKSURL,
		Fetcher:         fetcher,
		RefreshInterval: cfg.Keys.RefreshInterval,
		Logger:          engine.logger,
		OnRefresh:       engine.recordRefresh,
	})
	if err != nil {
		return nil, err
	}
	if err := remote.Refresh(ctx); err != nil {
		return nil, err
	}
	remote.Start(context.Background())
	return remote, nil
}

func loadSigningKey(cfg TokenConfig) (crypto.Signer, error) {
	switch {
	case cfg.PrivateKeyPath != "":
		return jwt.LoadPrivateKey(cfg.PrivateKeyPath)
	case cfg.PrivateKeyPEM != "":
		return jwt.ParsePrivateKeyPEM([]byte(cfg.PrivateKeyPEM))
	default:
		return nil, nil
	}
}

func loadLocalKeys(cfg Config) (*keyset.Set, error) {
	var opts []keyset.PEMOption
	if cfg.Keys.KeyID != "" {
		opts = append(opts, keyset.WithKeyID(cfg.Keys.KeyID))
	}
	if cfg.Token.Algorithm != "" {
		opts = append(opts, keyset.WithAlgorithm(cfg.Token.Algorithm))
	}
	if cfg.Keys.PublicKeyPath != "" {
		return keyset.LoadPEM(cfg.Keys.PublicKeyPath, opts...)
	}
	return keyset.ParsePEM([]byte(cfg.Keys.PublicKeyPEM), opts...)
}
