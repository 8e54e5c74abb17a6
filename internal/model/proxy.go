// Package model defines shared types for the relay.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded to the target.
// The body is fully buffered (bounded upstream by the server's body limit)
// so the retry loop can replay it on every attempt.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	Header http.Header
	Body   []byte
}

// ProxyResponse represents the target's response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
