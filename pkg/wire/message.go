package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Message validation errors.
var (
	ErrEmptyMessage     = errors.New("empty message")
	ErrInvalidKind      = errors.New("invalid message kind")
	ErrInvalidOpcode    = errors.New("invalid opcode")
	ErrMissingExchange  = errors.New("exchange id 0 is reserved for reports")
	ErrUnexpectedExchID = errors.New("reports must not carry an exchange id")
)

// Kind distinguishes the three message shapes carried on a session.
type Kind uint8

const (
	// KindRequest is sent by a controller to the device.
	KindRequest Kind = 1

	// KindResponse answers a request on the same exchange.
	KindResponse Kind = 2

	// KindReport is an unsolicited subscription report.
	KindReport Kind = 3
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindResponse:
		return "RESPONSE"
	case KindReport:
		return "REPORT"
	default:
		return "UNKNOWN"
	}
}

// Path addresses an attribute or command on a cluster instance.
type Path struct {
	Endpoint uint16 `cbor:"1,keyasint"`
	Cluster  uint32 `cbor:"2,keyasint"`
	ID       uint32 `cbor:"3,keyasint"`
}

// String renders the path as endpoint/cluster/id.
func (p Path) String() string {
	return fmt.Sprintf("%d/0x%04X/0x%04X", p.Endpoint, p.Cluster, p.ID)
}

// Message is the envelope for every interaction on a session.
//
// CBOR encoding:
//
//	{
//	  1: kind,           // uint8: 1=Request, 2=Response, 3=Report
//	  2: exchangeId,     // uint32, 0 for reports
//	  3: opcode,         // uint8, requests only
//	  4: path,           // attribute or command path
//	  5: status,         // uint8, responses and reports
//	  6: subscriptionId, // uint32, reports and subscribe responses
//	  7: payload         // raw CBOR value
//	}
type Message struct {
	Kind           Kind            `cbor:"1,keyasint"`
	ExchangeID     uint32          `cbor:"2,keyasint"`
	Opcode         Opcode          `cbor:"3,keyasint,omitempty"`
	Path           Path            `cbor:"4,keyasint"`
	Status         Status          `cbor:"5,keyasint,omitempty"`
	SubscriptionID uint32          `cbor:"6,keyasint,omitempty"`
	Payload        cbor.RawMessage `cbor:"7,keyasint,omitempty"`
}

// Validate checks the envelope for structural consistency.
func (m *Message) Validate() error {
	switch m.Kind {
	case KindRequest:
		if m.ExchangeID == 0 {
			return ErrMissingExchange
		}
		if !m.Opcode.IsValid() {
			return fmt.Errorf("%w: %d", ErrInvalidOpcode, m.Opcode)
		}
	case KindResponse:
		if m.ExchangeID == 0 {
			return ErrMissingExchange
		}
	case KindReport:
		if m.ExchangeID != 0 {
			return ErrUnexpectedExchID
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidKind, m.Kind)
	}
	return nil
}

// NewResponse builds a response on the request's exchange.
func NewResponse(req *Message, status Status, payload cbor.RawMessage) *Message {
	return &Message{
		Kind:       KindResponse,
		ExchangeID: req.ExchangeID,
		Path:       req.Path,
		Status:     status,
		Payload:    payload,
	}
}

// NewReport builds a subscription report.
func NewReport(subscriptionID uint32, path Path, payload cbor.RawMessage) *Message {
	return &Message{
		Kind:           KindReport,
		Path:           path,
		SubscriptionID: subscriptionID,
		Payload:        payload,
	}
}
