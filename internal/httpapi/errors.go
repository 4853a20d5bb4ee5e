package httpapi

import (
	"errors"
	"net/http"

	"call-relay/internal/callflow"
	"call-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps run failures to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, callflow.ErrMissingRequiredField), errors.Is(err, callflow.ErrInvalidPhoneNumber):
		return http.StatusBadRequest
	case errors.Is(err, callflow.ErrCallInFlight):
		return http.StatusConflict
	case errors.Is(err, callflow.ErrPollExhausted), errors.Is(err, callflow.ErrCanceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, callflow.ErrDispatchExhausted),
		errors.Is(err, callflow.ErrMalformedResponse),
		errors.Is(err, callflow.ErrPollTransport),
		errors.Is(err, callflow.ErrForwardDeliveryFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}
	e, ok := callflow.AsError(err)
	if !ok {
		return body
	}
	body["stage"] = e.Stage
	if e.Kind != nil {
		body["kind"] = e.Kind.Error()
	}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	if e.CallID != "" {
		body["call_id"] = e.CallID
	}
	if e.RunID != "" {
		body["run_id"] = e.RunID
	}
	if tag := e.Outcome(); tag != "" {
		body["outcome"] = tag
	}
	return body
}

func abortWithRunError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("call run failed", "status", status, "err", err)
	} else {
		logger.FromGin(c).Warn("call run rejected", "status", status, "err", err)
	}
	c.AbortWithStatusJSON(status, errorBody(err))
}
