package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sync/internal/auth"
	"github.com/kevin07696/gateway-sync/pkg/encoding"
)

// TokenValidator verifies operator bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.JWTClaims, error)
}

// BearerAuth guards the control API. Verified claims are stored on the
// request context.
func BearerAuth(validator TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header")
				return
			}

			tokenString, ok := bearerToken(authHeader)
			if !ok {
				writeAuthError(w, "invalid authorization format: expected 'Bearer <token>'")
				return
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				logger.Warn("token verification failed",
					zap.Error(err),
					zap.String("path", r.URL.Path),
					zap.String("remote_ip", ClientIP(r)),
				)
				writeAuthError(w, "invalid token")
				return
			}

			logger.Debug("token authenticated",
				zap.String("subject", claims.Subject),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireScope rejects requests whose token lacks scope with 403. It must run
// after BearerAuth.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok || !claims.HasScope(scope) {
				writeJSONError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CronAuth accepts the shared cron secret in X-Cron-Secret or as a bearer
// token.
func CronAuth(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" && cronSecretMatches(r, secret) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("Unauthorized cron request",
				zap.String("path", r.URL.Path),
				zap.String("remote_ip", ClientIP(r)),
			)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func cronSecretMatches(r *http.Request, secret string) bool {
	if provided := r.Header.Get("X-Cron-Secret"); provided != "" {
		return constantTimeEqual(provided, secret)
	}
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return constantTimeEqual(token, secret)
	}
	return false
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="gateway-sync"`)
	writeJSONError(w, http.StatusUnauthorized, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	_ = encoding.WriteJSON(w, status, map[string]string{"error": msg})
}
