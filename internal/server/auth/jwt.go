// Package auth issues and verifies the HS256 tokens that callers of the vault
// daemon present in the access_token metadata key.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Scope limits which service a token may call.
type Scope string

const (
	// ScopeVault is held by the UI layer.
	ScopeVault Scope = "vault"
	// ScopeBilling is held by the payment processor.
	ScopeBilling Scope = "billing"
)

// Claims are the registered claims plus the vault user and scope.
type Claims struct {
	jwt.RegisteredClaims
	UserID string
	Scope  Scope
}

func GenerateToken(userID string, scope Scope, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
		Scope:  scope,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies tokenString and returns its claims.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
