package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"support-console/internal/auth"
)

// AuthMiddleware validates the console UI bearer token and stores the admin id.
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("adminID", claims.Subject)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireAdmin rejects sessions of another admin than the one this console serves.
func RequireAdmin(adminID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminID != "" && c.GetString("adminID") != adminID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "session belongs to another admin"})
			return
		}
		c.Next()
	}
}
