// Package addrutil provides utilities for parsing textual endpoint addresses.
package addrutil

import (
	"fmt"
	"net"
)

// SplitEndpoint splits a "host:port" endpoint string into its host and port
// parts. Handles both IPv4 ("10.0.0.1:443") and bracketed IPv6
// ("[fe80::1]:443") forms. Both parts must be present.
func SplitEndpoint(endpoint string) (host, port string, err error) {
	host, port, err = net.SplitHostPort(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if host == "" {
		return "", "", fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	if port == "" {
		return "", "", fmt.Errorf("invalid endpoint %q: missing port", endpoint)
	}
	return host, port, nil
}
