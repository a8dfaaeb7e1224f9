package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pyjobs/jobauth"
	"github.com/pyjobs/jobauth/jwt"
)

const missingTokenDetail = "Missing access token"

// Guard returns middleware that admits only requests carrying a valid bearer token.
// OPTIONS requests and skip paths pass through untouched.
func Guard(v Verifier, opts ...Option) func(http.Handler) http.Handler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := o.skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if o.disabled {
				ctx := jobauth.WithSubject(r.Context(), o.disabledSubject)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if v == nil {
				unauthorized(w, "invalid token")
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, missingTokenDetail)
				return
			}
			token, ok := bearerToken(header)
			if !ok {
				unauthorized(w, jwt.Reason(jwt.ErrMalformedToken))
				return
			}

			claims, err := v.Verify(r.Context(), token)
			if err != nil {
				reason := jwt.Reason(err)
				o.logger.Debug("request rejected",
					zap.String("path", r.URL.Path),
					zap.String("reason", reason),
				)
				unauthorized(w, reason)
				return
			}

			ctx := jobauth.WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from "Bearer <token>". The scheme is case-insensitive.
func bearerToken(value string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
