package jwt

import (
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/pyjobs/jobauth/keyset"
)

// DefaultTTL is the validity window of an issued token when none is configured.
const DefaultTTL = time.Hour

// IssuerConfig configures an Issuer.
type IssuerConfig struct {
	PrivateKey crypto.Signer
	Issuer     string
	Audience   string
	TTL        time.Duration
	// KeyID is written to the token header when set.
	KeyID string
	// Algorithm defaults to the conventional algorithm for the key type, RS256 for RSA.
	Algorithm string
	Backend   Backend
	Now       func() time.Time
}

// IssueOptions overrides the configured audience or ttl for a single token.
type IssueOptions struct {
	Audience string
	TTL      time.Duration
}

// Issuer signs tokens with one private key. It holds no mutable state and is safe for
// concurrent use.
type Issuer struct {
	key      crypto.Signer
	issuer   string
	audience string
	ttl      time.Duration
	kid      string
	alg      string
	backend  Backend
	now      func() time.Time
}

// NewIssuer validates cfg and returns an Issuer. A missing or unusable private key fails
// with ErrSigning.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("%w: private key required", ErrSigning)
	}
	if rk, ok := cfg.PrivateKey.(*rsa.PrivateKey); ok {
		if err := rk.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSigning, err)
		}
	}
	if cfg.TTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = keyset.DefaultAlgorithm(cfg.PrivateKey.Public())
	}
	if err := keyset.CheckAlgorithm(alg, cfg.PrivateKey.Public()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	iss := &Issuer{
		key:      cfg.PrivateKey,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		kid:      strings.TrimSpace(cfg.KeyID),
		alg:      alg,
		backend:  cfg.Backend,
		now:      cfg.Now,
	}
	if iss.ttl == 0 {
		iss.ttl = DefaultTTL
	}
	if iss.backend == nil {
		iss.backend = GolangJWT()
	}
	if iss.now == nil {
		iss.now = time.Now
	}
	return iss, nil
}

// Issue signs a token for subject with the configured audience and ttl.
func (i *Issuer) Issue(subject string) (string, Claims, error) {
	return i.IssueWith(subject, IssueOptions{})
}

// IssueWith signs a token for subject. Zero fields in opts fall back to the configuration.
// iat is the current time truncated to the second and exp is iat plus the ttl.
func (i *Issuer) IssueWith(subject string, opts IssueOptions) (string, Claims, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = i.ttl
	}
	aud := opts.Audience
	if aud == "" {
		aud = i.audience
	}

	now := time.Unix(i.now().Unix(), 0)
	claims := Claims{
		Issuer:    i.issuer,
		Subject:   subject,
		Audience:  aud,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	token, err := i.backend.Sign(i.alg, i.kid, claims, i.key)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

// PublicKey returns the verification half of the signing key, as it should be published.
func (i *Issuer) PublicKey() keyset.VerificationKey {
	return keyset.VerificationKey{KeyID: i.kid, Algorithm: i.alg, PublicKey: i.key.Public()}
}

// Algorithm returns the signing algorithm.
func (i *Issuer) Algorithm() string { return i.alg }

// LoadPrivateKey reads a PEM private key from path. See ParsePrivateKeyPEM.
func LoadPrivateKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSigning, path, err)
	}
	return ParsePrivateKeyPEM(data)
}

// ParsePrivateKeyPEM parses an RSA (PKCS#1 or PKCS#8), EC or Ed25519 private key.
func ParsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	if k, err := gjwt.ParseRSAPrivateKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := gjwt.ParseECPrivateKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := gjwt.ParseEdPrivateKeyFromPEM(data); err == nil {
		if signer, ok := k.(crypto.Signer); ok {
			return signer, nil
		}
	}
	return nil, fmt.Errorf("%w: no usable private key in PEM data", ErrSigning)
}
