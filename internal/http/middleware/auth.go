package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth guards the versioned API with the CMS collaborator's shared bearer
// token. Paths outside /v1/ (health probes) stay open, and an empty
// configured token disables the check, which is the local-development
// default.
func Auth(requiredToken string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(requiredToken))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 || !strings.HasPrefix(r.URL.Path, "/v1/") {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="lms-ai"`)
				writeMiddlewareError(w, r, http.StatusUnauthorized, "unauthorized", "a valid bearer token is required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, value, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
