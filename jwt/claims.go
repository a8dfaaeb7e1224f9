package jwt

import (
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// Claims is the registered claim set carried by a token.
type Claims struct {
	Issuer    string    `json:"iss"`
	Subject   string    `json:"sub"`
	Audience  string    `json:"aud"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// mapClaims renders c with integer NumericDate timestamps and a single-string aud.
func (c Claims) mapClaims() gjwt.MapClaims {
	return gjwt.MapClaims{
		"iss": c.Issuer,
		"sub": c.Subject,
		"aud": c.Audience,
		"iat": c.IssuedAt.Unix(),
		"exp": c.ExpiresAt.Unix(),
	}
}

func numericTime(d *gjwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
