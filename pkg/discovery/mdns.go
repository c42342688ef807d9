package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSAdvertiser implements the Advertiser interface using zeroconf.
// Each record gets its own responder so one can be withdrawn without
// disturbing the others.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by Record.Key
	closed  bool
}

var _ Advertiser = (*MDNSAdvertiser)(nil)

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// getInterfaces returns the network interfaces to use for advertising.
// Returns nil to use all interfaces.
func (a *MDNSAdvertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Register starts announcing rec, replacing any responder for the same key.
func (a *MDNSAdvertiser) Register(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	key := rec.Key()
	if server, exists := a.servers[key]; exists {
		server.Shutdown()
		delete(a.servers, key)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		rec.Instance,
		serviceWithSubtypes(rec),
		Domain,
		int(rec.Port),
		TXTRecordsToStrings(rec.TXT),
		a.getInterfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", rec.Service, err)
	}

	a.servers[key] = server
	return nil
}

// UpdateText replaces the TXT records of a registered record.
func (a *MDNSAdvertiser) UpdateText(rec *Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[rec.Key()]
	if !exists {
		return fmt.Errorf("%w: %s not registered", ErrInvalidRecord, rec.Key())
	}
	server.SetText(TXTRecordsToStrings(rec.TXT))
	return nil
}

// Deregister stops announcing rec. Unknown records are ignored.
func (a *MDNSAdvertiser) Deregister(rec *Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := rec.Key()
	if server, exists := a.servers[key]; exists {
		server.Shutdown()
		delete(a.servers, key)
	}
	return nil
}

// Shutdown stops all announcements. Later registrations fail with ErrClosed.
func (a *MDNSAdvertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, server := range a.servers {
		server.Shutdown()
		delete(a.servers, key)
	}
	a.closed = true
}
