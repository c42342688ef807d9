package netcomm

import (
	"context"
)

// Driver is the vendor WiFi station interface.
type Driver interface {
	// Scan lists visible access points, restricted to ssid when non-empty.
	Scan(ctx context.Context, ssid []byte) ([]ScanResult, error)

	// Connect associates with the network and returns once the link is up
	// or the attempt failed. It must give up when ctx is done.
	Connect(ctx context.Context, creds Credentials) error

	// Disconnect drops the association and releases the radio.
	Disconnect() error
}
