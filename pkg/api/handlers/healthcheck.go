package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Healthcheck answers GET /_/healthcheck unauthenticated, matching spec.md
// §4.1's note that the health endpoint bypasses the token gate.
func Healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
