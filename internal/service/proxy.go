// Package service implements the forwarding engine: the retry loop against
// the target and the header rewriting applied to every relayed response.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"cors-relay-go/internal/client"
	"cors-relay-go/internal/config"
	"cors-relay-go/internal/metrics"
	"cors-relay-go/internal/model"
)

// ErrUpstreamUnreachable is returned when every attempt failed at the
// transport level (connection refused, DNS failure, timeout).
var ErrUpstreamUnreachable = errors.New("target unreachable after all retries")

// ErrNoOutcome is returned when the retry loop exits without either a
// response or a transport error. This is a defensive branch; it should not
// be reachable with a positive attempt budget.
var ErrNoOutcome = errors.New("forward produced no outcome")

// attemptOutcome classifies one iteration of the retry loop.
type attemptOutcome int

const (
	outcomeSuccess        attemptOutcome = iota // status < 500, terminal
	outcomeServerError                          // status >= 500, retryable
	outcomeTransportError                       // no response, retryable
)

func classify(resp *model.ProxyResponse, err error) attemptOutcome {
	switch {
	case err != nil:
		return outcomeTransportError
	case resp.StatusCode >= 500:
		return outcomeServerError
	default:
		return outcomeSuccess
	}
}

// ProxyService executes forwards with retry and exponential backoff.
type ProxyService struct {
	client      *client.UpstreamClient
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
	backoffBase time.Duration
}

// NewProxyService creates a ProxyService. The metrics parameter is optional;
// pass nil to disable retry metrics.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		client:      c,
		logger:      logger.With("component", "proxy_service"),
		metrics:     m,
		maxAttempts: cfg.Relay.MaxAttempts,
		backoffBase: time.Duration(cfg.Relay.BackoffBaseMS) * time.Millisecond,
	}
}

// Forward sends a ProxyRequest to the validated target, retrying transport
// failures and 5xx responses up to the attempt budget. The caller is
// responsible for closing the response body.
//
// Retrying does not distinguish idempotent from non-idempotent methods; a
// flaky target can see a POST more than once. That trade-off is accepted
// for a development tool.
//
// When the budget is exhausted on a 5xx, the last such response is returned
// as-is rather than a synthesized error. When it is exhausted on transport
// failures, ErrUpstreamUnreachable is returned.
func (s *ProxyService) Forward(pr *model.ProxyRequest, target *url.URL) (*model.ProxyResponse, error) {
	header := outboundHeaders(pr.Header, target)

	var (
		lastResp *model.ProxyResponse
		lastErr  error
	)

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			if s.metrics != nil {
				s.metrics.RetriesTotal.Inc()
			}
			if err := s.wait(pr.Ctx, s.backoffDelay(attempt-1)); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
			}
		}

		resp, err := s.client.DoStream(pr.Ctx, pr.Method, target.String(), header, bodyReader(pr.Body))

		switch classify(resp, err) {
		case outcomeSuccess:
			return resp, nil

		case outcomeServerError:
			lastResp, lastErr = resp, nil
			s.logger.Debug("target returned server error",
				"status", resp.StatusCode,
				"attempt", attempt+1,
				"max_attempts", s.maxAttempts,
			)
			if attempt < s.maxAttempts-1 {
				discard(resp.Body)
			}

		case outcomeTransportError:
			lastResp, lastErr = nil, err
			s.logger.Debug("target transport failure",
				"err", err,
				"attempt", attempt+1,
				"max_attempts", s.maxAttempts,
			)
		}
	}

	switch {
	case lastResp != nil:
		// Budget exhausted on a 5xx: pass the final response through.
		return lastResp, nil
	case lastErr != nil:
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, lastErr)
	default:
		return nil, ErrNoOutcome
	}
}

// backoffDelay returns base × 2^i for the wait after attempt i. No jitter:
// the relay is a low-volume development tool, not a backpressure mechanism.
func (s *ProxyService) backoffDelay(i int) time.Duration {
	return s.backoffBase << i
}

// wait sleeps for d, returning early if the inbound request is gone.
func (s *ProxyService) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// bodyReader returns a fresh reader over the buffered request body, or nil
// when there is none, so every attempt replays the same bytes.
func bodyReader(body []byte) io.Reader {
	if len(body) == 0 {
		return nil
	}
	return bytes.NewReader(body)
}

// discard drains and closes an abandoned response body so the underlying
// connection can be reused.
func discard(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
