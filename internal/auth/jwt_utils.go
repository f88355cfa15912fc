package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the iss claim of operator tokens.
const Issuer = "gateway-sync"

// Scopes carried by operator tokens.
const (
	ScopeSyncWrite = "sync:write"
	ScopeSyncRead  = "sync:read"
)

// JWTClaims represents the claims of an operator token
type JWTClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes,omitempty"`
}

// HasScope reports whether the token grants scope. Tokens without scopes are
// full-access operator tokens.
func (c *JWTClaims) HasScope(scope string) bool {
	if len(c.Scopes) == 0 {
		return true
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// JWTManager signs and verifies HS256 operator tokens with a shared key
type JWTManager struct {
	secret []byte
	now    func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string) (*JWTManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	return &JWTManager{secret: []byte(secret), now: time.Now}, nil
}

// GenerateToken issues a token for subject valid for ttl
func (m *JWTManager) GenerateToken(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scopes: scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token
func (m *JWTManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&JWTClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid JWT claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
