// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token identity resolution. Tokens are HMAC
// JWTs minted by the platform's identity provider (token issuance is not
// part of this service); the claims carry the account id and which side of
// a conversation the account belongs to. The resolved identity is stored in
// the Gin context and passed explicitly into every service call; nothing
// downstream reads authentication state ambiently.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
)

// ctxKeyIdentity is the Gin context key under which the resolved caller
// identity is stored.
const ctxKeyIdentity = "identity"

// AuthClaims are the JWT claims this service understands.
type AuthClaims struct {
	AccountID uint   `json:"account_id"`
	Role      string `json:"role"` // "user" or "superstar"
	jwt.RegisteredClaims
}

// BearerAuth returns a middleware that resolves the Authorization header to
// a caller identity. Requests without a valid token are rejected with a 401
// envelope; nothing behind this middleware runs unauthenticated.
func BearerAuth(secret string) gin.HandlerFunc {
	keyFn := func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			unauthorized(c, "missing bearer token")
			return
		}

		tokenStr := strings.TrimPrefix(h, "Bearer ")
		token, err := jwt.ParseWithClaims(tokenStr, &AuthClaims{}, keyFn,
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil || !token.Valid {
			unauthorized(c, "invalid bearer token")
			return
		}

		claims, ok := token.Claims.(*AuthClaims)
		if !ok {
			unauthorized(c, "invalid bearer token")
			return
		}
		id := domain.Identity{Role: domain.Role(claims.Role), ID: claims.AccountID}
		if id.Zero() {
			unauthorized(c, "token carries no usable identity")
			return
		}

		SetIdentity(c, id)
		c.Next()
	}
}

// SetIdentity stores the resolved caller identity on the request context.
// BearerAuth calls it after token validation; tests use it to inject a
// caller without minting tokens.
func SetIdentity(c *gin.Context, id domain.Identity) {
	c.Set(ctxKeyIdentity, id)
}

// IdentityFrom returns the caller identity resolved by BearerAuth. The
// second return value reports whether an identity is present.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok && !id.Zero()
}

// unauthorized aborts the request with the standard 401 envelope. The
// middleware writes its own body because the handlers package sits above it
// in the import graph.
func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    msg,
	})
}
