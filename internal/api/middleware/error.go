package middleware

import (
	"net/http"

	"gridsweep/internal/api/models"

	"github.com/gin-gonic/gin"
)

// ErrorHandler converts panics into structured 500 responses.
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		message := "An unexpected error occurred"
		if s, ok := recovered.(string); ok {
			message = s
		} else if err, ok := recovered.(error); ok {
			message = err.Error()
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrorDetail{
			Code:    "INTERNAL_ERROR",
			Message: message,
		}})
		c.Abort()
	})
}
