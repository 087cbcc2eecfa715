package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"studyhub/portal/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// Constants for context keys
const (
	ContextIdentityKey = "identity"
	AdminKeyHeader     = "X-Admin-Key"
)

// jwtClaims is the payload issued by the identity provider.
type jwtClaims struct {
	UserID string      `json:"uid"`
	Name   string      `json:"name"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// IdentityMiddleware resolves the caller from an optional Bearer token or
// admin key. Requests without credentials pass through anonymously; invalid
// credentials are rejected.
func IdentityMiddleware(jwtSecret, adminKeyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var identity domain.Identity
		found := false

		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			claims, err := parseToken(authHeader, jwtSecret)
			if err != nil {
				abortWithError(c, http.StatusUnauthorized, "Invalid authorization token", err)
				return
			}
			identity = domain.Identity{UserID: claims.UserID, UserName: claims.Name, Role: claims.Role}
			found = true
		}

		if key := c.GetHeader(AdminKeyHeader); key != "" {
			if adminKeyHash == "" || bcrypt.CompareHashAndPassword([]byte(adminKeyHash), []byte(key)) != nil {
				abortWithError(c, http.StatusUnauthorized, "Invalid admin key", errors.New("admin key mismatch"))
				return
			}
			identity.Role = domain.RoleAdmin
			if identity.UserID == "" {
				identity.UserID = "admin-key"
			}
			found = true
		}

		if found {
			c.Set(ContextIdentityKey, identity)
		}
		c.Next()
	}
}

func parseToken(authHeader, jwtSecret string) (*jwtClaims, error) {
	if jwtSecret == "" {
		return nil, errors.New("token verification is not configured")
	}
	// Expecting "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, errors.New("authorization header format must be Bearer {token}")
	}

	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token or missing claims")
	}
	if claims.ExpiresAt == nil {
		return nil, errors.New("token has no expiry")
	}
	if claims.Role == "" {
		claims.Role = domain.RoleStudent
	}
	return claims, nil
}

// RequireAdmin rejects callers without the admin role.
// Must run AFTER IdentityMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFromContext(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "Authentication required", errors.New("no credentials supplied"))
			return
		}
		if !identity.IsAdmin() {
			abortWithError(c, http.StatusForbidden, "Access denied",
				fmt.Errorf("role %q does not have permission", identity.Role))
			return
		}
		c.Next()
	}
}

func identityFromContext(c *gin.Context) (domain.Identity, bool) {
	raw, exists := c.Get(ContextIdentityKey)
	if !exists {
		return domain.Identity{}, false
	}
	identity, ok := raw.(domain.Identity)
	return identity, ok
}
