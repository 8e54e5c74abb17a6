package service

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// defaultAllowHeaders is returned for preflights that carry no
// Access-Control-Request-Headers header.
const defaultAllowHeaders = "Content-Type, Authorization, X-Requested-With"

// allowMethods covers every method the relay route accepts.
const allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// securityHeaders are set on every response the relay produces, after any
// upstream headers have been copied, so they always win name collisions.
var securityHeaders = [][2]string{
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload"},
	{"Referrer-Policy", "no-referrer"},
}

// ApplySecurityHeaders sets the fixed security headers, replacing any
// existing values.
func ApplySecurityHeaders(h http.Header) {
	for _, kv := range securityHeaders {
		h.Set(kv[0], kv[1])
	}
}

// ApplyCORSHeaders sets the relay's CORS headers, replacing any existing
// values. They are set after the security headers so the final precedence is
// upstream, then security, then CORS.
func ApplyCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", allowMethods)
}

// AllowHeaders returns the Access-Control-Allow-Headers value for a
// preflight: the requested headers verbatim, or the default set.
func AllowHeaders(requested string) string {
	if requested != "" {
		return requested
	}
	return defaultAllowHeaders
}

// ExposeHeaders returns the comma-joined names of every header present on
// the upstream response, sorted for a stable value, so browser callers can
// read headers outside the CORS safelist.
func ExposeHeaders(upstream http.Header) string {
	names := make([]string, 0, len(upstream))
	for name := range upstream {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// outboundHeaders builds the header set sent to the target: all inbound
// headers minus Host and Referer (connection-specific, or leaking the
// relay's own address), with Origin rewritten to the target's own origin so
// origin-checking APIs see a same-origin request.
func outboundHeaders(inbound http.Header, target *url.URL) http.Header {
	h := inbound.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Del("Host")
	h.Del("Referer")
	// The transport derives Content-Length from the replayed body.
	h.Del("Content-Length")
	h.Set("Origin", target.Scheme+"://"+target.Host)
	return h
}
