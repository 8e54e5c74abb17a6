// Package middleware provides Echo middleware for logging, security, and metrics.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// Context keys set by the relay handler so the request logger can attach
// forwarding context to its line.
const (
	CtxTargetHost      = "relay.target_host"
	CtxRejectionReason = "relay.rejection_reason"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// When the relay handler recorded a validated target host or a rejection
// reason on the context, the line carries it.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if host, ok := c.Get(CtxTargetHost).(string); ok && host != "" {
				attrs = append(attrs, "target_host", host)
			}
			if reason, ok := c.Get(CtxRejectionReason).(string); ok && reason != "" {
				attrs = append(attrs, "rejection_reason", reason)
			}

			logger.Info("request", attrs...)

			return err
		}
	}
}
