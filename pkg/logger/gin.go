package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// Middleware tags each request with an id, puts a request logger on the
// request context and writes one access line when the handler returns.
// 5xx logs at error, 4xx at warn.
func Middleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		l := base.With("request_id", id)
		c.Request = c.Request.WithContext(With(c.Request.Context(), l))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.String("client_ip", c.ClientIP()),
			slog.Duration("elapsed", time.Since(began)),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}
		l.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// FromGin is From applied to the request context.
func FromGin(c *gin.Context) *slog.Logger {
	return From(c.Request.Context())
}
