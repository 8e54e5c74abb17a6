package middleware_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"cors-relay-go/internal/client"
	"cors-relay-go/internal/config"
	"cors-relay-go/internal/handler"
	"cors-relay-go/internal/service"
)

func TestRateLimiter_RelayRoute(t *testing.T) {
	cfg := &config.Config{
		Relay: config.RelayConfig{
			AllowedHosts:    []string{"api.example.com"},
			MaxAttempts:     3,
			BackoffBaseMS:   1,
			TimeoutSeconds:  5,
			IdleConnections: 10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := client.NewUpstreamClient(cfg, logger, nil)
	svc := service.NewProxyService(uc, cfg, logger, nil)
	relay := handler.NewRelayHandler(svc, cfg, logger, nil)

	e := echo.New()
	// 1 request per second, burst of 1 — second request should be rejected.
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(1))
	e.Use(echomw.RateLimiter(store))
	e.Any("/", relay.Handle)

	// A target outside the whitelist is rejected by the validator before any
	// network I/O, so the relay answers 400 without an upstream.
	path := "/?url=" + url.QueryEscape("https://evil.com/")

	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("first request: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	// Subsequent requests should be rate-limited (429) before the relay runs.
	got429 := false
	for i := 0; i < 10; i++ {
		req = httptest.NewRequest(http.MethodGet, path, http.NoBody)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	if !got429 {
		t.Error("expected at least one 429 response after burst, got none")
	}
}
