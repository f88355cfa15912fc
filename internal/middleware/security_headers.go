package middleware

import (
	"net/http"
)

// SecurityHeaders adds security-related HTTP headers to API responses
type SecurityHeaders struct {
	isDevelopment bool
}

// NewSecurityHeaders creates a new security headers middleware
func NewSecurityHeaders(isDevelopment bool) *SecurityHeaders {
	return &SecurityHeaders{
		isDevelopment: isDevelopment,
	}
}

// Middleware wraps an HTTP handler with security headers
func (sh *SecurityHeaders) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")

		// JSON only: nothing may be loaded, framed or submitted.
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")

		// HSTS breaks plain-http local setups.
		if !sh.isDevelopment {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
