package keyset

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// Document is a parsed key-set document. Skipped holds one ErrKeySetParse error per entry
// that could not be used.
type Document struct {
	Set     *Set
	Skipped []error
}

type rawDocument struct {
	Keys []json.RawMessage `json:"keys"`
}

// ParseJWKS decodes a JSON Web Key Set document. Every entry is decoded on its own: an
// entry without a kid, with key material that does not reconstruct a public key, with an
// algorithm that does not fit its key type, or with a kid already seen is skipped. The
// document itself fails with ErrKeySetFetch when it is not JSON, has no keys array, or
// leaves no usable key.
func ParseJWKS(data []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode document: %v", ErrKeySetFetch, err)
	}
	if raw.Keys == nil {
		return nil, fmt.Errorf("%w: document has no keys array", ErrKeySetFetch)
	}

	doc := &Document{}
	keys := make([]VerificationKey, 0, len(raw.Keys))
	seen := make(map[string]struct{}, len(raw.Keys))
	for i, entry := range raw.Keys {
		key, err := parseJWK(entry)
		if err == nil {
			if _, dup := seen[key.KeyID]; dup {
				err = fmt.Errorf("duplicate kid %q", key.KeyID)
			}
		}
		if err != nil {
			doc.Skipped = append(doc.Skipped, fmt.Errorf("%w: entry %d: %v", ErrKeySetParse, i, err))
			continue
		}
		seen[key.KeyID] = struct{}{}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no usable keys (%d skipped)", ErrKeySetFetch, len(doc.Skipped))
	}

	set, err := NewSet(keys...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetFetch, err)
	}
	doc.Set = set
	return doc, nil
}

func parseJWK(entry json.RawMessage) (VerificationKey, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(entry); err != nil {
		return VerificationKey{}, err
	}
	if jwk.KeyID == "" {
		return VerificationKey{}, errors.New("missing kid")
	}
	if jwk.Use != "" && jwk.Use != "sig" {
		return VerificationKey{}, fmt.Errorf("kid %q: use %q is not sig", jwk.KeyID, jwk.Use)
	}
	if !jwk.IsPublic() {
		pub := jwk.Public()
		if !pub.Valid() {
			return VerificationKey{}, fmt.Errorf("kid %q: not an asymmetric key", jwk.KeyID)
		}
		jwk = pub
	}

	alg := jwk.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm(jwk.Key)
	}
	if err := CheckAlgorithm(alg, jwk.Key); err != nil {
		return VerificationKey{}, fmt.Errorf("kid %q: %v", jwk.KeyID, err)
	}
	return VerificationKey{KeyID: jwk.KeyID, Algorithm: alg, PublicKey: jwk.Key}, nil
}

// MarshalJWKS encodes keys as a JSON Web Key Set document with use "sig".
func MarshalJWKS(keys ...VerificationKey) ([]byte, error) {
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(keys))}
	for _, k := range keys {
		jwk := jose.JSONWebKey{
			Key:       k.PublicKey,
			KeyID:     k.KeyID,
			Algorithm: k.Algorithm,
			Use:       "sig",
		}
		if !jwk.Valid() {
			return nil, fmt.Errorf("%w: kid %q", ErrUnsupportedKey, k.KeyID)
		}
		set.Keys = append(set.Keys, jwk)
	}
	return json.Marshal(set)
}
