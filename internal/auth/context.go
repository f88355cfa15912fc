package auth

import (
	"context"
)

type contextKey string

const claimsKey contextKey = "operator_claims"

// WithClaims stores verified token claims on ctx.
func WithClaims(ctx context.Context, claims *JWTClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims stored by WithClaims, if any.
func ClaimsFromContext(ctx context.Context) (*JWTClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*JWTClaims)
	return claims, ok && claims != nil
}

// Actor names the operator behind a request for logs, or "anonymous".
func Actor(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Subject
	}
	return "anonymous"
}
