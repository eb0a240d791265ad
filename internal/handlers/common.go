package handlers

import (
	"net/http"

	"clauth/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto the HTTP surface. Internal errors
// keep their details out of the response body.
func respondError(c *gin.Context, err error) {
	status := apperrors.StatusCode(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
