package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joy095/dispatch/logger"
)

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		if msg := Message(err); msg == MsgAlreadyProcessed || msg == MsgInvalidCode {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUserIDNotFound), errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRetryable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as a JSON error body.
func RespondError(c *gin.Context, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logger.ErrorLogger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "Internal server error"})
	case http.StatusAccepted:
		c.JSON(status, gin.H{"provisional": true, "message": Message(err)})
	case http.StatusServiceUnavailable:
		c.Header("Retry-After", "1")
		c.JSON(status, gin.H{"error": Message(err)})
	default:
		c.JSON(status, gin.H{"error": Message(err)})
	}
}
