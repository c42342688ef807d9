package log

import (
	"time"

	"github.com/mash-protocol/matter-stack/pkg/wire"
)

// Event is one captured protocol or lifecycle event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the commissioning pipe or operational session.
	SessionID string `cbor:"2,keyasint,omitempty"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port or BLE connection handle).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Mode is the orchestrator mode when the event was captured.
	Mode string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where the event was captured.
type Layer uint8

const (
	// LayerBTP is the short-range commissioning transport (fragments).
	LayerBTP Layer = 0
	// LayerUDP is the operational datagram transport.
	LayerUDP Layer = 1
	// LayerInteraction is the decoded request/response layer.
	LayerInteraction Layer = 2
	// LayerStack is the mode orchestrator.
	LayerStack Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerBTP:
		return "BTP"
	case LayerUDP:
		return "UDP"
	case LayerInteraction:
		return "INTERACTION"
	case LayerStack:
		return "STACK"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 1
	CategoryError   Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a raw fragment or datagram.
type FrameEvent struct {
	// Size is the frame size in bytes including any transport header.
	Size int `cbor:"1,keyasint"`

	// Flags holds the BTP header flags (zero for datagrams).
	Flags uint8 `cbor:"2,keyasint,omitempty"`

	// Sequence is the BTP sequence number.
	Sequence uint8 `cbor:"3,keyasint,omitempty"`

	// Data is the raw frame (may be truncated for large frames).
	Data []byte `cbor:"4,keyasint,omitempty"`

	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// MessageEvent captures a decoded interaction message.
type MessageEvent struct {
	Kind       wire.Kind    `cbor:"1,keyasint"`
	ExchangeID uint32       `cbor:"2,keyasint"`
	Opcode     wire.Opcode  `cbor:"3,keyasint,omitempty"`
	Path       *wire.Path   `cbor:"4,keyasint,omitempty"`
	Status     *wire.Status `cbor:"5,keyasint,omitempty"`

	// SubscriptionID is set for reports.
	SubscriptionID uint32 `cbor:"6,keyasint,omitempty"`

	// ProcessingTime is the handler latency (responses only).
	ProcessingTime *time.Duration `cbor:"7,keyasint,omitempty"`
}

// StateChangeEvent captures lifecycle transitions.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityMode is the orchestrator mode.
	StateEntityMode StateEntity = 0
	// StateEntityWindow is the commissioning window.
	StateEntityWindow StateEntity = 1
	// StateEntityLink is the long-range network link.
	StateEntityLink StateEntity = 2
	// StateEntityRadio is radio ownership.
	StateEntityRadio StateEntity = 3
	// StateEntityPipe is a commissioning pipe.
	StateEntityPipe StateEntity = 4
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityMode:
		return "MODE"
	case StateEntityWindow:
		return "WINDOW"
	case StateEntityLink:
		return "LINK"
	case StateEntityRadio:
		return "RADIO"
	case StateEntityPipe:
		return "PIPE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is a protocol status code, if applicable.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// StateChange builds a state-change event stamped with the current time.
func StateChange(layer Layer, entity StateEntity, oldState, newState, reason string) Event {
	return Event{
		Timestamp: time.Now(),
		Layer:     layer,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// Error builds an error event stamped with the current time.
func Error(layer Layer, context string, err error) Event {
	return Event{
		Timestamp: time.Now(),
		Layer:     layer,
		Category:  CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	}
}
