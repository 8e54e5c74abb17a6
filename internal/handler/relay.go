package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-relay-go/internal/config"
	"cors-relay-go/internal/metrics"
	"cors-relay-go/internal/middleware"
	"cors-relay-go/internal/model"
	"cors-relay-go/internal/service"
	"cors-relay-go/internal/target"
)

// Literal error bodies returned to browser callers.
const (
	msgInvalidURL = "Invalid or forbidden URL provided."
	msgBadGateway = "Proxy failed to connect to the target server."
	msgUnexpected = "The proxy encountered an unexpected error after all retries."
)

// RelayHandler serves the relay route: preflights, validation, and forwards.
type RelayHandler struct {
	service   *service.ProxyService
	whitelist target.Whitelist
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewRelayHandler creates a RelayHandler. The whitelist is built once here
// and shared read-only by all requests. The metrics parameter is optional.
func NewRelayHandler(svc *service.ProxyService, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *RelayHandler {
	return &RelayHandler{
		service:   svc,
		whitelist: target.NewWhitelist(cfg.Relay.AllowedHosts),
		logger:    logger.With("component", "relay_handler"),
		metrics:   m,
	}
}

// Handle serves one relay request. OPTIONS short-circuits to a preflight
// response without validating or forwarding anything; every other method
// validates the url parameter, forwards with retry, and relays the response
// with rewritten headers.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	if req.Method == http.MethodOptions {
		return h.preflight(c)
	}

	u, err := target.Validate(c.QueryParam("url"), h.whitelist)
	if err != nil {
		c.Set(middleware.CtxRejectionReason, target.Reason(err))
		if h.metrics != nil {
			h.metrics.RejectionsTotal.WithLabelValues(target.Reason(err)).Inc()
		}
		h.logger.Info("target rejected",
			"reason", target.Reason(err),
			"remote_ip", c.RealIP(),
		)
		return h.plainError(c, http.StatusBadRequest, msgInvalidURL)
	}
	c.Set(middleware.CtxTargetHost, u.Hostname())

	// Buffer the body (bounded by the server's body limit) so the retry
	// loop can replay it.
	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.logger.Error("reading request body", "err", err)
		return h.plainError(c, http.StatusInternalServerError, msgUnexpected)
	}

	pr := &model.ProxyRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Header: req.Header,
		Body:   body,
	}

	resp, err := h.service.Forward(pr, u)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Assemble response headers with deterministic precedence: upstream
	// headers verbatim, then security headers, then CORS headers.
	out := c.Response().Header()
	for key, vals := range resp.Header {
		out[key] = vals
	}
	service.ApplySecurityHeaders(out)
	service.ApplyCORSHeaders(out)
	out.Set("Access-Control-Expose-Headers", service.ExposeHeaders(resp.Header))

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the upstream body directly to the client. If io.Copy fails
	// mid-stream the status has already been sent, so the client receives
	// a truncated response with the original status. This is an inherent
	// trade-off of streaming proxies; we log the error for observability.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"target_host", u.Hostname(),
		)
	}

	return nil
}

// preflight answers an OPTIONS request: 204, no body, CORS and security
// headers, echoing the requested headers when present.
func (h *RelayHandler) preflight(c echo.Context) error {
	hdr := c.Response().Header()
	service.ApplySecurityHeaders(hdr)
	service.ApplyCORSHeaders(hdr)
	requested := c.Request().Header.Get("Access-Control-Request-Headers")
	hdr.Set("Access-Control-Allow-Headers", service.AllowHeaders(requested))
	return c.NoContent(http.StatusNoContent)
}

func (h *RelayHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("forward failed", "err", err)

	if errors.Is(err, service.ErrUpstreamUnreachable) {
		return h.plainError(c, http.StatusBadGateway, msgBadGateway)
	}

	// ErrNoOutcome and anything else unexpected.
	return h.plainError(c, http.StatusInternalServerError, msgUnexpected)
}

// plainError writes a text/plain error body that stays readable from the
// calling browser context.
func (h *RelayHandler) plainError(c echo.Context, code int, msg string) error {
	hdr := c.Response().Header()
	service.ApplySecurityHeaders(hdr)
	hdr.Set("Access-Control-Allow-Origin", "*")
	return c.String(code, msg)
}
