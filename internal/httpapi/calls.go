package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"call-relay/internal/callflow"
	"call-relay/internal/calls"

	"github.com/gin-gonic/gin"
)

type webhookRequest struct {
	Data map[string]any `json:"data"`
}

// Lead keys recognized in webhook payloads. Everything else is correlation.
const (
	keyPhone       = "phoneNumber"
	keyName        = "name"
	keyEmail       = "email"
	keyDestination = "destinationUrl"
	keyScript      = "script"
)

// Webhook runs the full call lifecycle for one lead and returns the forwarded record.
func (h Handlers) Webhook(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call runner not configured"})
		return
	}
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Data == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "data is required"})
		return
	}

	run := runRequestFrom(req.Data)
	res, err := h.Calls.Run(c.Request.Context(), run)
	if err != nil {
		abortWithRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":               res.RunID,
		"message":              res.Record,
		"delivered":            res.Delivered,
		"destination_response": res.Response,
	})
}

func runRequestFrom(data map[string]any) callflow.RunRequest {
	fields := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := stringValue(v); ok {
			fields[k] = s
		}
	}

	lead := calls.Lead{
		Phone: fields[keyPhone],
		Name:  fields[keyName],
		Email: fields[keyEmail],
	}
	corr := make(map[string]string)
	for k, v := range fields {
		switch k {
		case keyPhone, keyName, keyDestination, keyScript:
			continue
		}
		corr[k] = v
	}
	if len(corr) > 0 {
		lead.Correlation = corr
	}
	return callflow.RunRequest{
		Lead:           lead,
		DestinationURL: fields[keyDestination],
		Script:         fields[keyScript],
	}
}

// stringValue accepts strings, numbers and booleans. Nested values are dropped.
func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64, bool:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}

type logsRequest struct {
	CallID string `json:"callId"`
}

// Logs polls the provider for an existing call and returns its filtered record.
func (h Handlers) Logs(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call runner not configured"})
		return
	}
	var req logsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.CallID) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "callId is required"})
		return
	}

	rec, err := h.Calls.Lookup(c.Request.Context(), strings.TrimSpace(req.CallID))
	if err != nil {
		abortWithRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		callflow.FieldCallID:         rec.CallID,
		callflow.FieldCallTo:         rec.To,
		callflow.FieldCallFrom:       rec.From,
		callflow.FieldCallStatus:     rec.RawStatus,
		callflow.FieldCallDuration:   rec.DurationSeconds,
		callflow.FieldCallTranscript: rec.Transcript,
		callflow.FieldCallSummary:    rec.Summary,
		callflow.FieldCallRecording:  rec.RecordingURL,
	})
}
