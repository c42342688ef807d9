package hostsim

import (
	"context"
	"errors"
	"sync"

	"github.com/mash-protocol/matter-stack/pkg/btp"
)

// BLE errors.
var (
	ErrNotAdvertising = errors.New("peripheral not advertising")
	ErrNoLink         = errors.New("no such link")
	ErrCongested      = errors.New("link congested")
	ErrClosed         = errors.New("peripheral closed")
)

const linkQueue = 64

// BLE is an in-memory GATT peripheral. Centrals attach with Connect.
type BLE struct {
	mtu uint16

	mu          sync.Mutex
	events      chan btp.PeripheralEvent
	advertising bool
	adv         btp.Advertisement
	advertised  int
	links       map[btp.ConnID]*Central
	nextID      btp.ConnID
	closed      bool
}

var _ btp.Peripheral = (*BLE)(nil)

// NewBLE creates a peripheral whose centrals negotiate the given ATT MTU.
func NewBLE(mtu uint16) *BLE {
	return &BLE{
		mtu:    mtu,
		events: make(chan btp.PeripheralEvent, 256),
		links:  make(map[btp.ConnID]*Central),
		nextID: 1,
	}
}

// Advertise implements btp.Peripheral.
func (b *BLE) Advertise(_ context.Context, adv btp.Advertisement) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.advertising = true
	b.adv = adv
	b.advertised++
	return nil
}

// StopAdvertising implements btp.Peripheral.
func (b *BLE) StopAdvertising() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advertising = false
	return nil
}

// Advertising returns the current advertisement, if any.
func (b *BLE) Advertising() (btp.Advertisement, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.adv, b.advertising
}

// Advertised counts Advertise calls.
func (b *BLE) Advertised() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.advertised
}

// Indicate implements btp.Peripheral.
func (b *BLE) Indicate(_ context.Context, id btp.ConnID, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.links[id]
	if !ok {
		return ErrNoLink
	}
	select {
	case l.ind <- append([]byte(nil), data...):
		return nil
	default:
		return ErrCongested
	}
}

// Disconnect implements btp.Peripheral.
func (b *BLE) Disconnect(id btp.ConnID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(id)
	return nil
}

// Events implements btp.Peripheral.
func (b *BLE) Events() <-chan btp.PeripheralEvent {
	return b.events
}

// Close drops every central and closes the event channel.
func (b *BLE) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for id := range b.links {
		b.dropLocked(id)
	}
	b.closed = true
	b.advertising = false
	close(b.events)
	return nil
}

// Connect attaches a new central. The device must be advertising.
func (b *BLE) Connect() (*Central, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.advertising {
		return nil, ErrNotAdvertising
	}
	l := &Central{ble: b, id: b.nextID, ind: make(chan []byte, linkQueue)}
	b.links[l.id] = l
	b.nextID++
	return l, nil
}

func (b *BLE) pushLocked(ev btp.PeripheralEvent) error {
	if b.closed {
		return ErrClosed
	}
	select {
	case b.events <- ev:
		return nil
	default:
		return ErrCongested
	}
}

func (b *BLE) dropLocked(id btp.ConnID) {
	l, ok := b.links[id]
	if !ok {
		return
	}
	delete(b.links, id)
	close(l.ind)
	_ = b.pushLocked(btp.PeripheralEvent{Kind: btp.EventDisconnected, Conn: id})
}

// Central is a commissioner's link to a BLE peripheral.
type Central struct {
	ble *BLE
	id  btp.ConnID
	ind chan []byte
}

var _ btp.Link = (*Central)(nil)

// ID returns the connection handle the peripheral sees.
func (c *Central) ID() btp.ConnID { return c.id }

// Write implements btp.Link.
func (c *Central) Write(_ context.Context, data []byte) error {
	c.ble.mu.Lock()
	defer c.ble.mu.Unlock()
	if _, ok := c.ble.links[c.id]; !ok {
		return ErrNoLink
	}
	return c.ble.pushLocked(btp.PeripheralEvent{Kind: btp.EventWrite, Conn: c.id, Data: append([]byte(nil), data...)})
}

// Subscribe implements btp.Link.
func (c *Central) Subscribe(_ context.Context) error {
	c.ble.mu.Lock()
	defer c.ble.mu.Unlock()
	if _, ok := c.ble.links[c.id]; !ok {
		return ErrNoLink
	}
	return c.ble.pushLocked(btp.PeripheralEvent{Kind: btp.EventSubscribed, Conn: c.id, MTU: c.ble.mtu})
}

// Indications implements btp.Link.
func (c *Central) Indications() <-chan []byte {
	return c.ind
}

// Disconnect implements btp.Link.
func (c *Central) Disconnect() error {
	c.ble.mu.Lock()
	defer c.ble.mu.Unlock()
	c.ble.dropLocked(c.id)
	return nil
}
