package utils

import "github.com/gin-gonic/gin"

// ErrorResponse is the only error body clients see. Internal details belong
// in the logs, not here.
func ErrorResponse(message string) gin.H {
	return gin.H{"error": message}
}
