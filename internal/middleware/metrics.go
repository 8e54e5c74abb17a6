package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"cors-relay-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request. Preflight OPTIONS requests on the relay route are
// counted separately, since they never reach an upstream.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			req := c.Request()
			if req.Method == http.MethodOptions && req.URL.Path == "/" {
				m.PreflightsTotal.Inc()
			}

			start := time.Now()

			err := next(c)

			status := strconv.Itoa(resolveStatus(c, err))
			method := metrics.NormalizeMethod(req.Method)
			path := metrics.NormalizePath(req.URL.Path)
			duration := time.Since(start).Seconds()

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(duration)

			return err
		}
	}
}

// resolveStatus returns the status code a request will be answered with. When
// a handler returns an *echo.HTTPError the response hasn't been written yet;
// Echo's central error handler does that after the middleware chain unwinds,
// so the code has to come from the error itself.
func resolveStatus(c echo.Context, err error) int {
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he.Code
		}
	}
	return c.Response().Status
}
