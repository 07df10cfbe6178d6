package middleware

import (
	"net/http"
	"strings"
)

// KeyVerifier checks a raw API key. *auth.Keychain satisfies this interface.
type KeyVerifier interface {
	Verify(rawKey string) error
}

// APIKeyAuth rejects requests that do not carry a valid API key in the
// X-API-Key header or as a Bearer token.
func APIKeyAuth(keys KeyVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = extractBearer(r)
			}

			if key == "" || keys.Verify(key) != nil {
				http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid API key"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return auth[7:]
	}
	return ""
}
