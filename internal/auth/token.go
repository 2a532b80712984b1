// Package auth verifies the bearer tokens that carry the caller's identity.
// Tokens are issued externally; this side only checks the signature, issuer
// and expiry, and extracts the subject.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bilancio/internal/cache"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
}

// TokenManager validates HS256 tokens. Verified tokens are cached so hot
// identities skip the signature check; the cache TTL stays below any sane
// token lifetime, so a cached entry never outlives its token by much.
type TokenManager struct {
	secret []byte
	issuer string
	cache  cache.Cache[string]
}

func NewTokenManager(secret, issuer string, verified cache.Cache[string]) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		cache:  verified,
	}
}

// VerifyToken validates the token and returns the identity it carries.
func (m *TokenManager) VerifyToken(tokenString string) (string, error) {
	if m.cache != nil {
		if identity, ok := m.cache.Get(tokenString); ok {
			return identity, nil
		}
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	if m.cache != nil {
		m.cache.Set(tokenString, claims.Subject)
	}
	return claims.Subject, nil
}

// IssueToken signs a token for the identity. Used by the token CLI and tests;
// the API itself never issues tokens.
func (m *TokenManager) IssueToken(identity string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
