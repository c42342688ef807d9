package btp

import (
	"context"
	"fmt"
)

// ConnID is the GATT connection handle assigned by the BLE stack.
type ConnID uint16

// PeripheralEventKind classifies events raised by a Peripheral.
type PeripheralEventKind uint8

const (
	// EventWrite carries a value written to C1.
	EventWrite PeripheralEventKind = iota
	// EventSubscribed reports that the central enabled indications on C2.
	EventSubscribed
	// EventDisconnected reports that the central went away.
	EventDisconnected
)

// String returns the event kind name.
func (k PeripheralEventKind) String() string {
	switch k {
	case EventWrite:
		return "WRITE"
	case EventSubscribed:
		return "SUBSCRIBED"
	case EventDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// PeripheralEvent is one event from the GATT server.
type PeripheralEvent struct {
	Kind PeripheralEventKind
	Conn ConnID

	// MTU is the negotiated ATT MTU (EventSubscribed), zero if unknown.
	MTU uint16

	// Data is the written value (EventWrite).
	Data []byte
}

// Peripheral is the vendor GATT server hosting the commissioning service.
type Peripheral interface {
	// Advertise starts broadcasting the service data. Calling it again
	// replaces the payload.
	Advertise(ctx context.Context, adv Advertisement) error

	// StopAdvertising stops the broadcast. It is a no-op when idle.
	StopAdvertising() error

	// Indicate sends data to the central on C2.
	Indicate(ctx context.Context, conn ConnID, data []byte) error

	// Disconnect drops the central.
	Disconnect(conn ConnID) error

	// Events delivers GATT events. The channel is closed when the
	// peripheral shuts down.
	Events() <-chan PeripheralEvent
}

// Addr identifies a BTP peer.
type Addr struct {
	Conn ConnID
}

// Network implements net.Addr.
func (a Addr) Network() string { return "btp" }

// String implements net.Addr.
func (a Addr) String() string { return fmt.Sprintf("ble:%d", a.Conn) }
