// Package strings normalizes string lists read from configuration.
package strings

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// HostPorts trims each address, drops empty entries and repeats, and checks
// that every remaining entry is host:port with a numeric port. Order is kept.
func HostPorts(values []string) ([]string, error) {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		addr := strings.TrimSpace(v)
		if addr == "" {
			continue
		}
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("address %q: %w", addr, err)
		}
		if host == "" {
			return nil, fmt.Errorf("address %q: missing host", addr)
		}
		if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("address %q: invalid port %q", addr, port)
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}
