// Package auth verifies the actor tokens presented to the HTTP surface.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/ledgersync/internal/domain"
)

// Claims are the JWT claims of an actor token. The subject is the actor id.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager verifies HMAC-signed actor tokens.
type JWTManager struct {
	secretKey []byte
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string) *JWTManager {
	return &JWTManager{secretKey: []byte(secretKey)}
}

// Issue signs a token for actor valid for ttl. Tokens are normally issued by
// the identity provider; this is used by the CLI and tests.
func (m *JWTManager) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify checks tokenString and returns the actor it names.
func (m *JWTManager) Verify(tokenString string) (domain.Actor, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			// Validate signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Actor{}, domain.ErrExpiredToken
		}
		return domain.Actor{}, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Actor{}, domain.ErrInvalidToken
	}
	if claims.Subject == "" || !claims.Role.IsValid() {
		return domain.Actor{}, domain.ErrInvalidToken
	}

	return domain.Actor{ID: claims.Subject, Role: claims.Role}, nil
}
