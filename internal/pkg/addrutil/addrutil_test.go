package addrutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		host     string
		port     string
		wantErr  bool
	}{
		{"ipv4", "10.0.0.1:443", "10.0.0.1", "443", false},
		{"ipv6 bracketed", "[fe80::1]:5060", "fe80::1", "5060", false},
		{"hostname", "observer.local:8080", "observer.local", "8080", false},
		{"missing port", "10.0.0.1", "", "", true},
		{"missing host", ":443", "", "", true},
		{"empty", "", "", "", true},
		{"bare ipv6", "fe80::1:443", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := SplitEndpoint(tt.endpoint)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
		})
	}
}
