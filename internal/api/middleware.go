package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyAuth rejects requests that do not carry apiKey in X-API-Key or an
// Authorization bearer token.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestAPIKey(r)
			switch {
			case key == "":
				respondError(w, http.StatusUnauthorized, "Missing API key. Provide X-API-Key header or Authorization: Bearer <key>")
			case subtle.ConstantTimeCompare([]byte(key), want) != 1:
				respondError(w, http.StatusForbidden, "Invalid API key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
