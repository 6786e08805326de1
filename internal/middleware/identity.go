package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/logger"
)

const (
	// UserIDHeader carries the caller identity when no JWT secret is set.
	UserIDHeader = "X-User-ID"

	userIDKey    = "userID"
	bearerSchema = "Bearer "
)

// Identity resolves the caller and stores it in the context under "userID".
// With a secret the caller is the sub claim of an HS256 bearer token;
// without one the X-User-ID header is trusted.
func Identity(secret string) gin.HandlerFunc {
	if secret == "" {
		return headerIdentity
	}
	key := []byte(secret)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, bearerSchema) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must start with Bearer "})
			return
		}

		token, err := jwt.Parse(authHeader[len(bearerSchema):], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		})
		if err != nil {
			logger.Warningf("Token validation failed: %v", err)
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		sub, err := token.Claims.GetSubject()
		if err != nil || strings.TrimSpace(sub) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has no subject"})
			return
		}
		c.Set(userIDKey, strings.TrimSpace(sub))
		c.Next()
	}
}

func headerIdentity(c *gin.Context) {
	id := strings.TrimSpace(c.GetHeader(UserIDHeader))
	if id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": UserIDHeader + " header is required"})
		return
	}
	c.Set(userIDKey, id)
	c.Next()
}

// UserID returns the identity set by Identity.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
