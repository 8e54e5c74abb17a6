package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"cors-relay-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a static liveness payload.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "CORS relay is running.",
	})
}

// Status returns relay status information. The whitelist contents are never
// echoed back, only whether one is enforced.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":             "ok",
		"version":            string(h.version),
		"max_attempts":       strconv.Itoa(h.cfg.Relay.MaxAttempts),
		"whitelist_enforced": strconv.FormatBool(len(h.cfg.Relay.AllowedHosts) > 0),
	})
}
