package jwt

import "errors"

var (
	// ErrMalformedToken is returned when a token is not three decodable segments with a
	// JSON header declaring an algorithm, or when its payload is not a claims object.
	ErrMalformedToken = errors.New("malformed token")
	// ErrUnknownKey is returned when no key is registered under the header kid.
	ErrUnknownKey = errors.New("unknown signing key")
	// ErrAlgorithmMismatch is returned when the header algorithm differs from the
	// algorithm recorded for the resolved key.
	ErrAlgorithmMismatch = errors.New("token algorithm does not match key")
	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned for a token without exp or past its exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrAudienceMismatch is returned when the token is not addressed to the expected audience.
	ErrAudienceMismatch = errors.New("audience mismatch")
	// ErrIssuerNotAllowed is returned when an issuer allow-list is configured and the
	// token issuer is not on it.
	ErrIssuerNotAllowed = errors.New("issuer not allowed")
	// ErrSigning is returned when a private key cannot be used to sign.
	ErrSigning = errors.New("token signing failed")
)

var reasons = []error{
	ErrMalformedToken,
	ErrUnknownKey,
	ErrAlgorithmMismatch,
	ErrInvalidSignature,
	ErrTokenExpired,
	ErrAudienceMismatch,
	ErrIssuerNotAllowed,
}

// Reason returns a short, stable description of a verification error, suitable for a 401
// body. Wrapped detail is never included. Unknown errors map to "invalid token".
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, sentinel := range reasons {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "invalid token"
}
