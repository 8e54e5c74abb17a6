package middleware

import (
	"github.com/labstack/echo/v4"

	"cors-relay-go/internal/service"
)

// hopByHopHeaders are headers that should not be forwarded by proxies.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// SecurityHeaders returns an Echo middleware that strips hop-by-hop headers
// from inbound requests and sets the fixed security headers before the
// handler runs, so that every response carries them, including the health
// and metrics endpoints and Echo's own 404/429 responses. The relay handler
// re-applies the same set after copying upstream headers, which keeps the
// upstream-then-security precedence on relayed responses.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, h := range hopByHopHeaders {
				c.Request().Header.Del(h)
			}

			service.ApplySecurityHeaders(c.Response().Header())

			return next(c)
		}
	}
}
