package keyset

import (
	"crypto/rsa"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// PEMOption adjusts how a PEM key is registered in the resulting Set.
type PEMOption func(*VerificationKey)

// WithKeyID registers the PEM key under kid instead of as the default key.
func WithKeyID(kid string) PEMOption {
	return func(k *VerificationKey) { k.KeyID = kid }
}

// WithAlgorithm overrides the RS256 default.
func WithAlgorithm(alg string) PEMOption {
	return func(k *VerificationKey) { k.Algorithm = alg }
}

// LoadPEM reads a PEM-encoded RSA key from path and returns a single-key Set.
// See ParsePEM for the accepted encodings.
func LoadPEM(path string, opts ...PEMOption) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrKeyLoad, path, err)
	}
	set, err := ParsePEM(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// ParsePEM parses a PEM block holding an RSA public key (PKIX or PKCS#1), an x509
// certificate, or an RSA private key (PKCS#1 or PKCS#8). For a private key only the public
// half is kept. The key becomes the default key of the returned Set unless WithKeyID is given.
func ParsePEM(data []byte, opts ...PEMOption) (*Set, error) {
	pub, err := parseRSAPublicPEM(data)
	if err != nil {
		return nil, err
	}
	key := VerificationKey{Algorithm: AlgRS256, PublicKey: pub}
	for _, opt := range opts {
		opt(&key)
	}
	set, err := NewSet(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}
	return set, nil
}

func parseRSAPublicPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyLoad)
	}
	switch block.Type {
	case "PUBLIC KEY", "RSA PUBLIC KEY", "CERTIFICATE":
		pub, err := jwt.ParseRSAPublicKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
		}
		return pub, nil
	case "RSA PRIVATE KEY", "PRIVATE KEY":
		priv, err := jwt.ParseRSAPrivateKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
		}
		return &priv.PublicKey, nil
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block %q", ErrKeyLoad, block.Type)
	}
}
