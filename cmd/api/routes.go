package main

import (
	"net/http"

	"call-relay/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", h.Status)
	r.GET("/token", h.Token)

	// bearer-protected
	protected := r.Group("/")
	protected.Use(authMW)
	{
		protected.POST("/webhook", h.Webhook)
		protected.POST("/logs", h.Logs)
		protected.POST("/check-conditions", h.CheckConditions)
		protected.GET("/reports/runs", h.RunsReport)
		protected.GET("/runs/:runId/events", h.RunEvents)
	}
}
