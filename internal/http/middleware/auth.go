// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer authentication. Tokens are HS256 JWTs whose
// "sub" claim is the user id, "name" the display name and "role" the
// authorization role. The identity is stored in the Gin context under
// "userID", "username" and "role" so that the logger, rate limiter and
// handlers can read it without depending on the token format.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin gates the administrative routes.
const RoleAdmin = "admin"

// HeaderUserID is trusted as the caller identity when authentication is
// disabled (local development and tests).
const HeaderUserID = "X-User-ID"

// Claims is the JWT payload accepted by Auth.
type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret is the HS256 signing key.
	Secret string
	// Disabled trusts X-User-ID instead of verifying a token.
	Disabled bool
	// Leeway tolerates clock skew on exp/nbf. Defaults to 30s.
	Leeway time.Duration
}

// IssueToken signs an HS256 token for userID. A ttl <= 0 yields a token
// without expiry.
func IssueToken(secret, userID, name, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	if userID == "" {
		return "", errors.New("user id is empty")
	}
	now := time.Now()
	claims := Claims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies tokenString and returns its claims.
func ParseToken(secret, tokenString string, leeway time.Duration) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(leeway))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Auth authenticates the caller and stores the identity in the Gin context.
// Requests without valid credentials are answered 401.
func Auth(opts AuthOptions) gin.HandlerFunc {
	leeway := opts.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}

	return func(c *gin.Context) {
		if opts.Disabled {
			uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
			if uid == "" {
				unauthorized(c, "missing X-User-ID header")
				return
			}
			c.Set("userID", uid)
			c.Set("username", uid)
			if role := strings.TrimSpace(c.GetHeader("X-User-Role")); role != "" {
				c.Set("role", role)
			}
			c.Next()
			return
		}

		h := c.GetHeader("Authorization")
		scheme, tok, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
			unauthorized(c, "missing bearer token")
			return
		}
		claims, err := ParseToken(opts.Secret, strings.TrimSpace(tok), leeway)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token has expired"
			}
			unauthorized(c, msg)
			return
		}

		name := claims.Name
		if name == "" {
			name = claims.Subject
		}
		c.Set("userID", claims.Subject)
		c.Set("username", name)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireAdmin rejects callers whose role is not admin with 403. It must run
// after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "forbidden",
				"message": "admin role required",
			})
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="goals"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "unauthorized",
		"message": msg,
	})
}
