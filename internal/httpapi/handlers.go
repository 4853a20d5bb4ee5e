package httpapi

import (
	"context"
	"net/http"
	"time"

	"call-relay/internal/audit"
	"call-relay/internal/auth"
	"call-relay/internal/callflow"
	"call-relay/internal/calls"
	"call-relay/internal/reporting"
	"call-relay/internal/telephony"

	"github.com/gin-gonic/gin"
)

// CallRunner is the slice of the orchestrator the HTTP layer needs.
type CallRunner interface {
	Run(ctx context.Context, req callflow.RunRequest) (calls.ForwardResult, error)
	Lookup(ctx context.Context, callID string) (calls.CallRecord, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth  *auth.Manager
	Calls CallRunner

	// SMS, Audit and Reports are optional.
	SMS     telephony.SMSSender
	Audit   *audit.Service
	Reports *reporting.Service
	Phone   callflow.PhonePolicy

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// Token issues a short-lived service bearer token.
func (h Handlers) Token(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	tok, err := h.Auth.Issue(h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok.AccessToken, "expires_at": tok.ExpiresAt.UTC()})
}

func (h Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "call relay is running"})
}
