package auth

import (
	"log"
	"net/http"
	"strings"

	"clauth/internal/models"

	"github.com/gin-gonic/gin"
)

const contextUserKey = "auth_user"

// AuthMiddleware validates JWT tokens and protects routes
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>" format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format. Expected: Bearer <token>",
			})
			c.Abort()
			return
		}

		user, err := ValidateToken(parts[1])
		if err != nil {
			log.Printf("[Auth] Token validation failed: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(contextUserKey, *user)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the caller identity when a valid token
// is present but lets anonymous requests through. Used for guest checkout.
func OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.Next()
			return
		}

		if user, err := ValidateToken(parts[1]); err == nil {
			c.Set(contextUserKey, *user)
		}
		c.Next()
	}
}

// AdminMiddleware requires the authenticated user to carry the admin role.
// Must be chained after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		if !user.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUser retrieves the normalized caller identity from the context
func GetUser(c *gin.Context) (models.AuthenticatedUser, bool) {
	value, exists := c.Get(contextUserKey)
	if !exists {
		return models.AuthenticatedUser{}, false
	}

	user, ok := value.(models.AuthenticatedUser)
	return user, ok
}
