// utils/context.go
package utils

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
)

// Context keys set by the auth middleware.
const (
	ContextUserIDKey = "sub"
	ContextRoleKey   = "role"
)

// Caller roles carried in the token.
const (
	RoleCustomer     = "customer"
	RoleProfessional = "professional"
	RoleOperator     = "operator"
)

// GetUserIDFromContext extracts the caller id the auth middleware stored as a
// string under "sub" and parses it into a uuid.UUID.
func GetUserIDFromContext(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(ContextUserIDKey)
	if !exists {
		logger.ErrorLogger.Error("User ID not found in context.")
		return uuid.Nil, ErrUserIDNotFound
	}

	userIDStr, ok := raw.(string)
	if !ok {
		logger.ErrorLogger.Errorf("User ID in context is not a string, actual type: %T", raw)
		return uuid.Nil, fmt.Errorf("internal server error: invalid user ID format in context")
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to parse user ID string '%s' to UUID: %v", userIDStr, err)
		return uuid.Nil, fmt.Errorf("internal server error: invalid user ID format")
	}
	return userID, nil
}

// GetRoleFromContext returns the caller role, empty when absent.
func GetRoleFromContext(c *gin.Context) string {
	role, _ := c.Get(ContextRoleKey)
	s, _ := role.(string)
	return s
}
