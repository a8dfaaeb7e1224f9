package jobauth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/pyjobs/jobauth/jwt"
	"github.com/pyjobs/jobauth/keyset"
)

// EnvPrefix prefixes every environment variable read by LoadConfigFromEnv.
const EnvPrefix = "JOBAUTH_"

// Config is the full engine configuration. Start from DefaultConfig, then overlay a YAML
// file and the environment.
type Config struct {
	Keys    KeysConfig    `yaml:"keys" envPrefix:"KEYS_"`
	Token   TokenConfig   `yaml:"token" envPrefix:"TOKEN_"`
	Cache   CacheConfig   `yaml:"cache" envPrefix:"CACHE_"`
	HTTP    HTTPConfig    `yaml:"http" envPrefix:"HTTP_"`
	Audit   AuditConfig   `yaml:"audit" envPrefix:"AUDIT_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

/*
====================================
KEYS CONFIG
====================================
*/

// KeysConfig selects where verification keys come from. Exactly one of the local PEM
// sources or JWKSURL may be set. With neither, the public half of the signing key is used.
type KeysConfig struct {
	PublicKeyPath string `yaml:"public_key_path" env:"PUBLIC_KEY_PATH"`
	PublicKeyPEM  string `yaml:"public_key_pem" env:"PUBLIC_KEY_PEM"`
	// KeyID registers the local PEM key under a kid. Empty makes it the default key.
	KeyID string `yaml:"key_id" env:"KEY_ID"`

	JWKSURL string `yaml:"jwks_url" env:"JWKS_URL"`
	// RefreshInterval enables background re-fetching of the JWKS document. Zero fetches
	// once at startup.
	RefreshInterval  time.Duration `yaml:"refresh_interval" env:"REFRESH_INTERVAL"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	MaxDocumentBytes int64         `yaml:"max_document_bytes" env:"MAX_DOCUMENT_BYTES"`
	AllowHTTP        bool          `yaml:"allow_http" env:"ALLOW_HTTP"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds issuance and verification settings.
type TokenConfig struct {
	Issuer   string        `yaml:"issuer" env:"ISSUER"`
	Audience string        `yaml:"audience" env:"AUDIENCE"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	Leeway   time.Duration `yaml:"leeway" env:"LEEWAY"`
	// AllowedIssuers restricts accepted iss values when non-empty.
	AllowedIssuers []string `yaml:"allowed_issuers" env:"ALLOWED_ISSUERS" envSeparator:","`
	Algorithm      string   `yaml:"algorithm" env:"ALGORITHM"`
	Backend        string   `yaml:"backend" env:"BACKEND"` // "golang-jwt" (default) or "go-jose"

	// Signing key. Issuing is disabled when neither is set.
	PrivateKeyPath string `yaml:"private_key_path" env:"PRIVATE_KEY_PATH"`
	PrivateKeyPEM  string `yaml:"private_key_pem" env:"PRIVATE_KEY_PEM"`
	SigningKeyID   string `yaml:"signing_key_id" env:"SIGNING_KEY_ID"`
}

/*
====================================
CACHE CONFIG
====================================
*/

// Cache modes for fetched JWKS documents.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// CacheConfig configures the raw JWKS document cache.
type CacheConfig struct {
	Mode        string        `yaml:"mode" env:"MODE"`
	TTL         time.Duration `yaml:"ttl" env:"TTL"`
	RedisPrefix string        `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	RedisAddr   string        `yaml:"redis_addr" env:"REDIS_ADDR"`
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig configures the request guard and the demo server.
type HTTPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
	// AuthOn=false makes the guard admit every request as DisabledSubject.
	AuthOn          bool     `yaml:"auth_on" env:"AUTH_ON"`
	DisabledSubject string   `yaml:"disabled_subject" env:"DISABLED_SUBJECT"`
	SkipPaths       []string `yaml:"skip_paths" env:"SKIP_PATHS" envSeparator:","`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig configures asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled" env:"ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"BUFFER_SIZE"`
	DropIfFull bool `yaml:"drop_if_full" env:"DROP_IF_FULL"`
}

// MetricsConfig toggles in-process counters and the verify latency histogram.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" env:"ENABLED"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms" env:"ENABLE_LATENCY_HISTOGRAMS"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used by the pyjobs deployment.
func DefaultConfig() Config {
	return Config{
		Keys: KeysConfig{
			FetchTimeout:     keyset.DefaultFetchTimeout,
			MaxDocumentBytes: keyset.DefaultMaxDocumentBytes,
		},
		Token: TokenConfig{
			Issuer:   "https://auth.pyjobs.works",
			Audience: "https://pyjobs.works/jobs",
			TTL:      jwt.DefaultTTL,
			Backend:  "golang-jwt",
		},
		Cache: CacheConfig{
			Mode:        CacheNone,
			TTL:         5 * time.Minute,
			RedisPrefix: "jobauth:jwks:",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			AuthOn:          true,
			DisabledSubject: "test",
			SkipPaths:       []string{"/docs", "/openapi.json", "/redocs"},
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AllowedIssuers = append([]string(nil), cfg.Token.AllowedIssuers...)
	out.HTTP.SkipPaths = append([]string(nil), cfg.HTTP.SkipPaths...)
	return out
}

/*
====================================
LOADING
====================================
*/

// LoadConfigFile overlays the YAML document at path on DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigFromEnv overlays JOBAUTH_* environment variables on base. Unset variables
// leave base untouched.
func LoadConfigFromEnv(base Config) (Config, error) {
	cfg := cloneConfig(base)
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return base, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	return c.validate(false)
}

// validate skips the key-source requirement when keys are supplied through the Builder.
func (c *Config) validate(explicitKeys bool) error {
	// Keys
	local := c.Keys.PublicKeyPath != "" || c.Keys.PublicKeyPEM != ""
	if local && c.Keys.JWKSURL != "" {
		return errors.New("Keys: local PEM key and JWKSURL are mutually exclusive")
	}
	if c.Keys.PublicKeyPath != "" && c.Keys.PublicKeyPEM != "" {
		return errors.New("Keys: PublicKeyPath and PublicKeyPEM are mutually exclusive")
	}
	if c.Keys.RefreshInterval < 0 {
		return errors.New("Keys RefreshInterval must be >= 0")
	}
	if c.Keys.RefreshInterval > 0 && c.Keys.JWKSURL == "" {
		return errors.New("Keys RefreshInterval requires JWKSURL")
	}
	if c.Keys.FetchTimeout < 0 {
		return errors.New("Keys FetchTimeout must be >= 0")
	}
	if c.Keys.MaxDocumentBytes < 0 {
		return errors.New("Keys MaxDocumentBytes must be >= 0")
	}

	// Token
	if strings.TrimSpace(c.Token.Audience) == "" {
		return errors.New("Token Audience must be set")
	}
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > jwt.MaxLeeway {
		return fmt.Errorf("Token Leeway must be between 0 and %s", jwt.MaxLeeway)
	}
	if _, err := jwt.BackendByName(c.Token.Backend); err != nil {
		return fmt.Errorf("Token Backend: %w", err)
	}
	if c.Token.PrivateKeyPath != "" && c.Token.PrivateKeyPEM != "" {
		return errors.New("Token: PrivateKeyPath and PrivateKeyPEM are mutually exclusive")
	}
	if !explicitKeys && !local && c.Keys.JWKSURL == "" && !c.signingConfigured() {
		return ErrNoKeySource
	}

	// Cache
	switch c.Cache.Mode {
	case "", CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("Cache Mode %q is invalid", c.Cache.Mode)
	}
	if c.Cache.TTL < 0 {
		return errors.New("Cache TTL must be >= 0")
	}
	if c.Cache.Mode != "" && c.Cache.Mode != CacheNone && c.Cache.TTL == 0 {
		return fmt.Errorf("Cache TTL must be > 0 when Cache Mode is %q", c.Cache.Mode)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	return nil
}

func (c *Config) signingConfigured() bool {
	return c.Token.PrivateKeyPath != "" || c.Token.PrivateKeyPEM != ""
}
