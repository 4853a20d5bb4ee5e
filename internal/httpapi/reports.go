package httpapi

import (
	"errors"
	"net/http"
	"time"

	"call-relay/internal/reporting"

	"github.com/gin-gonic/gin"
)

const defaultReportWindow = 24 * time.Hour

// RunsReport summarizes runs dispatched in ?from=&to= (RFC3339).
// Missing bounds default to the last 24 hours.
func (h Handlers) RunsReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "reporting not configured"})
		return
	}

	to := h.now().UTC()
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		to = t
	}
	from := to.Add(-defaultReportWindow)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		from = t
	}

	out, err := h.Reports.RunsSummary(c.Request.Context(), reporting.RunsSummaryRequest{
		Range: reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}
