package api

import (
	"errors"
	"time"

	"studyhub/portal/internal/domain"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "study-portal"

// IssueToken signs a token that IdentityMiddleware accepts. Tokens normally
// come from the identity provider; this is for operators and local testing.
func IssueToken(secret string, identity domain.Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	if identity.UserID == "" {
		return "", errors.New("user id is required")
	}
	if identity.Role == "" {
		identity.Role = domain.RoleStudent
	}
	now := time.Now()
	claims := &jwtClaims{
		UserID: identity.UserID,
		Name:   identity.UserName,
		Role:   identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// HashAdminKey produces the value for auth.admin_key_hash.
func HashAdminKey(key string) (string, error) {
	if len(key) < 12 {
		return "", errors.New("admin key must be at least 12 characters")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
