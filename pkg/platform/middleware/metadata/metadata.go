// Package metadata extracts client details from requests for request logs.
package metadata

import (
	"net"
	"net/http"
	"strings"
)

// ClientIPFromRequest returns the originating client address. Proxy headers
// win over RemoteAddr: the first X-Forwarded-For hop, then X-Real-IP.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
