package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support-console/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, journal *telemetry.Journal, enabled bool) {
	if !enabled {
		return
	}

	router.POST("/debug/audit-test", func(c *gin.Context) {
		if journal == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal not configured"})
			return
		}
		journal.Record(requestContext(c), "audit_test", "console", requestIDFromContext(c), "")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
