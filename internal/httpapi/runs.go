package httpapi

import (
	"net/http"

	"call-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RunEvents returns the audit trail of one call run.
func (h Handlers) RunEvents(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "audit not configured"})
		return
	}
	runID := c.Param("runId")
	events, err := h.Audit.Trail(c.Request.Context(), runID)
	if err != nil {
		logger.FromGin(c).Error("audit trail read failed", "run_id", runID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit trail unavailable"})
		return
	}
	if len(events) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "events": events})
}
