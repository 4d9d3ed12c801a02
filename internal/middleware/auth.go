package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyAPIKey holds the provider credential resolved for the request.
const ContextKeyAPIKey = "provider_api_key"

// ProviderKey returns Gin middleware that resolves the provider API key for
// the request: the caller's bearer token if present, else defaultKey. Requests
// with neither are rejected.
func ProviderKey(defaultKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := defaultKey
		authHeader := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok && strings.TrimSpace(token) != "" {
			key = strings.TrimSpace(token)
		}

		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "MISSING_API_KEY", "message": "a provider API key is required"},
			})
			return
		}

		c.Set(ContextKeyAPIKey, key)
		c.Next()
	}
}

// GetAPIKey extracts the provider API key from the Gin context.
func GetAPIKey(c *gin.Context) string {
	val, exists := c.Get(ContextKeyAPIKey)
	if !exists {
		return ""
	}
	return val.(string)
}
