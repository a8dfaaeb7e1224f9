package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/pyjobs/jobauth/keyset"
)

// MaxLeeway bounds the clock skew tolerance a Verifier accepts.
const MaxLeeway = 2 * time.Minute

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	Backend Backend
	// Leeway extends exp to tolerate clock skew.
	Leeway time.Duration
	// AllowedIssuers, when non-empty, restricts accepted iss values.
	AllowedIssuers []string
	Now            func() time.Time
}

// Verifier checks tokens against the keys of a Resolver. It only reads the Resolver, so one
// Verifier serves any number of concurrent requests.
type Verifier struct {
	keys    keyset.Resolver
	backend Backend
	leeway  time.Duration
	issuers map[string]struct{}
	now     func() time.Time
}

type header struct {
	Alg string `json:"alg"`
	Kid any    `json:"kid"`
}

// NewVerifier returns a Verifier resolving keys through keys.
func NewVerifier(keys keyset.Resolver, cfg VerifierConfig) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("key resolver required")
	}
	if cfg.Leeway < 0 || cfg.Leeway > MaxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	v := &Verifier{
		keys:    keys,
		backend: cfg.Backend,
		leeway:  cfg.Leeway,
		now:     cfg.Now,
	}
	if v.backend == nil {
		v.backend = GolangJWT()
	}
	if v.now == nil {
		v.now = time.Now
	}
	if len(cfg.AllowedIssuers) > 0 {
		v.issuers = make(map[string]struct{}, len(cfg.AllowedIssuers))
		for _, iss := range cfg.AllowedIssuers {
			v.issuers[iss] = struct{}{}
		}
	}
	return v, nil
}

// Verify authenticates token and returns its claims. expectedAudience must appear in the
// token aud, which may be a string or an array; an empty expectedAudience matches nothing.
// The returned Claims carry expectedAudience as Audience.
func (v *Verifier) Verify(token, expectedAudience string) (*Claims, error) {
	hdr, payload, err := v.split(token)
	if err != nil {
		return nil, err
	}

	kid, ok := hdr.Kid.(string)
	if hdr.Kid != nil && !ok {
		return nil, fmt.Errorf("%w: kid is not a string", ErrMalformedToken)
	}
	key, ok := v.keys.Lookup(kid)
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}
	if hdr.Alg != key.Algorithm {
		return nil, fmt.Errorf("%w: token %s, key %s", ErrAlgorithmMismatch, hdr.Alg, key.Algorithm)
	}

	if err := v.backend.Verify(token, hdr.Alg, key.PublicKey); err != nil {
		if errors.Is(err, ErrMalformedToken) || errors.Is(err, ErrAlgorithmMismatch) {
			return nil, err
		}
		if !errors.Is(err, ErrInvalidSignature) {
			err = fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, err
	}

	var rc gjwt.RegisteredClaims
	if err := json.Unmarshal(payload, &rc); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrMalformedToken, err)
	}
	return v.validate(&rc, expectedAudience)
}

func (v *Verifier) split(token string) (header, []byte, error) {
	var hdr header
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return hdr, nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	segs := make([][]byte, 3)
	for i, part := range parts {
		b, err := decodeSegment(part)
		if err != nil {
			return hdr, nil, fmt.Errorf("segment %d: %w", i, err)
		}
		segs[i] = b
	}
	if len(segs[2]) == 0 {
		return hdr, nil, fmt.Errorf("%w: empty signature", ErrMalformedToken)
	}
	if err := json.Unmarshal(segs[0], &hdr); err != nil {
		return hdr, nil, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}
	if hdr.Alg == "" {
		return hdr, nil, fmt.Errorf("%w: header has no alg", ErrMalformedToken)
	}
	return hdr, segs[1], nil
}

func (v *Verifier) validate(rc *gjwt.RegisteredClaims, expectedAudience string) (*Claims, error) {
	now := v.now()
	if rc.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: no exp claim", ErrTokenExpired)
	}
	if !now.Before(rc.ExpiresAt.Add(v.leeway)) {
		return nil, fmt.Errorf("%w: at %s", ErrTokenExpired, rc.ExpiresAt.UTC().Format(time.RFC3339))
	}

	if !hasAudience(rc.Audience, expectedAudience) {
		return nil, fmt.Errorf("%w: want %q", ErrAudienceMismatch, expectedAudience)
	}

	if v.issuers != nil {
		if _, ok := v.issuers[rc.Issuer]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrIssuerNotAllowed, rc.Issuer)
		}
	}

	return &Claims{
		Issuer:    rc.Issuer,
		Subject:   rc.Subject,
		Audience:  expectedAudience,
		IssuedAt:  numericTime(rc.IssuedAt),
		ExpiresAt: rc.ExpiresAt.Time,
	}, nil
}

func hasAudience(aud gjwt.ClaimStrings, want string) bool {
	if want == "" {
		return false
	}
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
