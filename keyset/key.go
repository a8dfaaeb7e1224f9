package keyset

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"sort"
	"strings"
)

// Signature algorithms understood by the verifier backends.
const (
	AlgRS256 = "RS256"
	AlgRS384 = "RS384"
	AlgRS512 = "RS512"
	AlgPS256 = "PS256"
	AlgPS384 = "PS384"
	AlgPS512 = "PS512"
	AlgES256 = "ES256"
	AlgES384 = "ES384"
	AlgES512 = "ES512"
	AlgEdDSA = "EdDSA"
)

// VerificationKey is a public key together with the algorithm its owner published for it.
// KeyID is empty for the default key of a single-key setup.
type VerificationKey struct {
	KeyID     string
	Algorithm string
	PublicKey crypto.PublicKey
}

// Resolver resolves a kid to a verification key. An empty kid selects the default key.
type Resolver interface {
	Lookup(kid string) (VerificationKey, bool)
}

// Set is an immutable collection of verification keys.
type Set struct {
	byKID map[string]VerificationKey
	def   *VerificationKey
}

// NewSet validates keys and builds a Set. At most one key may have an empty KeyID; it
// becomes the default key. Non-empty KeyIDs must be unique.
func NewSet(keys ...VerificationKey) (*Set, error) {
	s := &Set{byKID: make(map[string]VerificationKey, len(keys))}
	for _, k := range keys {
		k.KeyID = strings.TrimSpace(k.KeyID)
		if k.Algorithm == "" {
			k.Algorithm = DefaultAlgorithm(k.PublicKey)
		}
		if err := CheckAlgorithm(k.Algorithm, k.PublicKey); err != nil {
			return nil, err
		}
		if k.KeyID == "" {
			if s.def != nil {
				return nil, fmt.Errorf("%w: more than one default key", ErrDuplicateKeyID)
			}
			def := k
			s.def = &def
			continue
		}
		if _, ok := s.byKID[k.KeyID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKeyID, k.KeyID)
		}
		s.byKID[k.KeyID] = k
	}
	return s, nil
}

// Lookup returns the key registered under kid. With an empty kid it returns the default
// key, if any. A non-empty kid never resolves to the default key.
func (s *Set) Lookup(kid string) (VerificationKey, bool) {
	if s == nil {
		return VerificationKey{}, false
	}
	if kid == "" {
		if s.def == nil {
			return VerificationKey{}, false
		}
		return *s.def, true
	}
	k, ok := s.byKID[kid]
	return k, ok
}

// Len reports the number of keys, including the default key.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	n := len(s.byKID)
	if s.def != nil {
		n++
	}
	return n
}

// Keys returns every key, default key first, then by kid.
func (s *Set) Keys() []VerificationKey {
	if s == nil {
		return nil
	}
	out := make([]VerificationKey, 0, s.Len())
	if s.def != nil {
		out = append(out, *s.def)
	}
	kids := make([]string, 0, len(s.byKID))
	for kid := range s.byKID {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	for _, kid := range kids {
		out = append(out, s.byKID[kid])
	}
	return out
}

// DefaultAlgorithm picks the conventional algorithm for a public key type.
func DefaultAlgorithm(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return AlgRS256
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P384():
			return AlgES384
		case elliptic.P521():
			return AlgES512
		default:
			return AlgES256
		}
	case ed25519.PublicKey:
		return AlgEdDSA
	default:
		return ""
	}
}

// CheckAlgorithm reports whether pub can verify signatures made with alg.
func CheckAlgorithm(alg string, pub crypto.PublicKey) error {
	if pub == nil {
		return fmt.Errorf("%w: nil public key", ErrUnsupportedKey)
	}
	switch alg {
	case AlgRS256, AlgRS384, AlgRS512, AlgPS256, AlgPS384, AlgPS512:
		if _, ok := pub.(*rsa.PublicKey); ok {
			return nil
		}
	case AlgES256, AlgES384, AlgES512:
		if k, ok := pub.(*ecdsa.PublicKey); ok && DefaultAlgorithm(k) == alg {
			return nil
		}
	case AlgEdDSA:
		if _, ok := pub.(ed25519.PublicKey); ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s with %T", ErrUnsupportedKey, alg, pub)
}
