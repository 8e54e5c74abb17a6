// Package target validates candidate proxy targets before any forwarding
// happens. The checks are syntactic only; the validator never resolves DNS
// or performs network I/O.
package target

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Validation rejections. All of them surface to the caller as the same
// 400 response; the distinct values exist for logging and tests.
var (
	ErrMissingURL    = errors.New("target URL is missing")
	ErrMalformedURL  = errors.New("target URL is not parsable")
	ErrScheme        = errors.New("target URL scheme must be http or https")
	ErrLocalTarget   = errors.New("target host is localhost or an IP literal")
	ErrHostForbidden = errors.New("target host is not in the allowed list")
)

// ipv4Pattern matches four dot-separated groups of 1-3 digits. It is a
// shape check, not an octet-range check: "999.999.999.999" still matches
// and is rejected as looking like an IP.
var ipv4Pattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// Whitelist is the set of hostnames the relay may forward to. An empty
// whitelist disables enforcement. It is built once at startup and never
// mutated afterwards, so concurrent readers need no locking.
type Whitelist map[string]bool

// NewWhitelist builds a Whitelist from hostnames, trimming whitespace and
// dropping empty entries.
func NewWhitelist(hosts []string) Whitelist {
	wl := make(Whitelist, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h != "" {
			wl[h] = true
		}
	}
	return wl
}

// Validate runs the ordered checks against a raw url parameter value and
// returns the parsed target. The first failing check wins. Hostnames that
// merely resolve to loopback or private ranges are not caught here; the
// check is deliberately coarse.
func Validate(raw string, allowed Whitelist) (*url.URL, error) {
	if raw == "" {
		return nil, ErrMissingURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrMalformedURL
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		// Checked before the host so that relative strings, which Go's
		// lenient parser accepts, fail as "bad scheme" rather than later.
		return nil, ErrScheme
	}

	// Go's parser accepts "http://" with no authority; treat it as malformed.
	if u.Host == "" {
		return nil, ErrMalformedURL
	}

	host := u.Hostname()
	if host == "localhost" || ipv4Pattern.MatchString(host) {
		return nil, ErrLocalTarget
	}

	if len(allowed) > 0 && !allowed[host] {
		return nil, ErrHostForbidden
	}

	return u, nil
}

// IsRejection reports whether err is one of the validation rejections.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMissingURL) ||
		errors.Is(err, ErrMalformedURL) ||
		errors.Is(err, ErrScheme) ||
		errors.Is(err, ErrLocalTarget) ||
		errors.Is(err, ErrHostForbidden)
}

// Reason returns a short bounded label for a rejection, for logs and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingURL):
		return "missing"
	case errors.Is(err, ErrMalformedURL):
		return "malformed"
	case errors.Is(err, ErrScheme):
		return "scheme"
	case errors.Is(err, ErrLocalTarget):
		return "local"
	case errors.Is(err, ErrHostForbidden):
		return "forbidden"
	default:
		return "other"
	}
}
