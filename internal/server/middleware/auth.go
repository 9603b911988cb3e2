// Package middleware provides HTTP middleware for the run API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireToken creates middleware that accepts only requests carrying the
// shared API token as a Bearer credential. Browsers' EventSource cannot set
// headers, so a token query parameter is accepted on GET requests.
// An empty token disables the check.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := bearerToken(r)
			if presented == "" && r.Method == http.MethodGet {
				presented = r.URL.Query().Get("token")
			}

			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="credit_agent"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token of an Authorization header.
// The "Bearer" prefix is matched case-insensitively.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
