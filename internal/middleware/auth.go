package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/photosync/photosync/internal/config"
	"github.com/photosync/photosync/internal/observability"
	"golang.org/x/crypto/bcrypt"
)

// keyVerifier checks a presented API key
type keyVerifier func(provided string) bool

func newKeyVerifier(sec config.Security) keyVerifier {
	if sec.APIKeyHash != "" {
		hash := []byte(sec.APIKeyHash)
		return func(provided string) bool {
			return bcrypt.CompareHashAndPassword(hash, []byte(provided)) == nil
		}
	}
	if sec.APIKey != "" {
		return func(provided string) bool {
			return constantTimeEquals(sec.APIKey, provided)
		}
	}
	return nil
}

// APIKeyAuth protects /api routes with the configured key, compared in
// constant time or against a bcrypt hash when apiKeyHash is set. The key may
// be sent bare or as a Bearer token. With neither key nor hash configured,
// requests pass through unauthenticated.
func APIKeyAuth(sec config.Security, skipPaths ...string) func(http.Handler) http.Handler {
	verify := newKeyVerifier(sec)
	headerName := sec.APIKeyHeader
	if headerName == "" {
		headerName = "Authorization"
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		if verify == nil {
			observability.Warnf("API key authentication disabled: no key configured")
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if skip[path] || !strings.HasPrefix(path, "/api") {
				next.ServeHTTP(w, r)
				return
			}

			provided := bearerToken(r.Header.Get(headerName))
			if provided == "" {
				unauthorized(w, "API key is required.")
				return
			}
			if !verify(provided) {
				unauthorized(w, "Invalid API key.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken strips an optional "Bearer " scheme
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// constantTimeEquals performs a constant-time string comparison
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
