package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hotspot/api/utils"
)

// AuthRequired resolves the owner principal from a JWT (cookie or bearer
// header) and stores it as "owner_id". Internal services may instead send the
// shared X-API-KEY together with X-Owner-ID.
func AuthRequired(secret []byte, apiKey string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-API-KEY"); apiKey != "" && key != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API key"})
				return
			}
			c.Set("owner_id", c.GetHeader("X-Owner-ID"))
			c.Next()
			return
		}

		tokenString, err := c.Cookie("jwt_token")
		if err != nil || tokenString == "" {
			tokenString = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
			return
		}

		claims, err := utils.ValidateJWT(tokenString, secret)
		if err != nil {
			log.Debug("Rejected token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set("owner_id", claims.OwnerID)
		c.Set("owner_email", claims.Email)
		c.Next()
	}
}
