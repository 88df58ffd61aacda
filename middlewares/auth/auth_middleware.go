package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/utils"
)

// AuthMiddleware validates the HS256 bearer token issued by the identity
// service and stores the caller id ("sub" or "user_id") and role in the
// context. Tokens without a role are treated as customers.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.ErrorLogger.Error("No authorization header provided")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token"})
			return
		}
		if len(authHeader) <= 7 || !strings.EqualFold(authHeader[:7], "bearer ") {
			logger.ErrorLogger.Error("Invalid authorization header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			return
		}

		token, err := jwt.Parse(authHeader[7:], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			logger.ErrorLogger.Errorf("Failed to parse JWT token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}
		subject, _ := claims["sub"].(string)
		if subject == "" {
			subject, _ = claims["user_id"].(string)
		}
		if subject == "" {
			logger.ErrorLogger.Error("No user identifier found in token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}
		role, _ := claims["role"].(string)
		if role == "" {
			role = utils.RoleCustomer
		}

		c.Set(utils.ContextUserIDKey, subject)
		c.Set(utils.ContextRoleKey, role)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := utils.GetRoleFromContext(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		logger.WarnLogger.Warnf("Role %q denied on %s", role, c.FullPath())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	}
}
