package jwt

import (
	"crypto"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
	gjwt "github.com/golang-jwt/jwt/v5"
)

// Backend produces and checks compact JWS signatures. Verify checks the signature only;
// claim validation is the Verifier's job. Tokens signed by one backend verify with any other.
type Backend interface {
	Name() string
	Sign(alg, kid string, claims Claims, key crypto.Signer) (string, error)
	Verify(token, alg string, key crypto.PublicKey) error
}

// GolangJWT returns the default backend, built on github.com/golang-jwt/jwt/v5.
func GolangJWT() Backend { return golangJWTBackend{} }

// Jose returns a backend built on github.com/go-jose/go-jose/v4.
func Jose() Backend { return joseBackend{} }

// BackendByName resolves "golang-jwt" or "go-jose". An empty name selects GolangJWT.
func BackendByName(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "golang-jwt":
		return GolangJWT(), nil
	case "go-jose", "jose":
		return Jose(), nil
	default:
		return nil, fmt.Errorf("unknown signature backend %q", name)
	}
}

var (
	strictParser  = gjwt.NewParser(gjwt.WithStrictDecoding())
	lenientParser = gjwt.NewParser()
)

// decodeSegment decodes one base64url token segment. Only the canonical encoding of a
// byte string is accepted: a segment that decodes only once its unused trailing bits are
// ignored has been altered and fails with ErrInvalidSignature.
func decodeSegment(seg string) ([]byte, error) {
	b, err := strictParser.DecodeSegment(seg)
	if err == nil {
		return b, nil
	}
	if _, lerr := lenientParser.DecodeSegment(seg); lerr == nil {
		return nil, fmt.Errorf("%w: non-canonical segment encoding", ErrInvalidSignature)
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
}

type golangJWTBackend struct{}

func (golangJWTBackend) Name() string { return "golang-jwt" }

func (golangJWTBackend) Sign(alg, kid string, claims Claims, key crypto.Signer) (string, error) {
	method := gjwt.GetSigningMethod(alg)
	if method == nil {
		return "", fmt.Errorf("%w: unsupported algorithm %q", ErrSigning, alg)
	}
	token := gjwt.NewWithClaims(method, claims.mapClaims())
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

func (golangJWTBackend) Verify(token, alg string, key crypto.PublicKey) error {
	method := gjwt.GetSigningMethod(alg)
	if method == nil {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrAlgorithmMismatch, alg)
	}
	i := strings.LastIndexByte(token, '.')
	if i < 0 {
		return ErrMalformedToken
	}
	sig, err := decodeSegment(token[i+1:])
	if err != nil {
		return fmt.Errorf("signature segment: %w", err)
	}
	if err := method.Verify(token[:i], sig, key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

type joseBackend struct{}

func (joseBackend) Name() string { return "go-jose" }

func (joseBackend) Sign(alg, kid string, claims Claims, key crypto.Signer) (string, error) {
	signingKey := jose.SigningKey{
		Algorithm: jose.SignatureAlgorithm(alg),
		Key:       jose.JSONWebKey{Key: key, KeyID: kid},
	}
	signer, err := jose.NewSigner(signingKey, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	payload, err := json.Marshal(claims.mapClaims())
	if err != nil {
		return "", fmt.Errorf("%w: encode claims: %v", ErrSigning, err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return obj.CompactSerialize()
}

func (joseBackend) Verify(token, alg string, key crypto.PublicKey) error {
	if i := strings.LastIndexByte(token, '.'); i >= 0 {
		if _, err := decodeSegment(token[i+1:]); err != nil {
			return fmt.Errorf("signature segment: %w", err)
		}
	}
	obj, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.SignatureAlgorithm(alg)})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if _, err := obj.Verify(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}
