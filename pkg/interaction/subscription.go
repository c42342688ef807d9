package interaction

import (
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mash-protocol/matter-stack/pkg/wire"
)

// Subscription represents an active attribute subscription.
type Subscription struct {
	mu sync.Mutex

	// ID is the unique subscription identifier.
	ID uint32

	// Path is the subscribed attribute.
	Path wire.Path

	// Transport is the name of the transport the subscriber is reached on.
	Transport string

	// Peer is the subscriber's address on that transport.
	Peer net.Addr

	// MinInterval is the minimum time between reports.
	MinInterval time.Duration

	lastReport time.Time
	last       cbor.RawMessage
	dirty      bool
}

// SubscribeRequest is the optional Subscribe payload.
type SubscribeRequest struct {
	// MinIntervalMs is the minimum report spacing in milliseconds.
	MinIntervalMs uint32 `cbor:"0,keyasint,omitempty"`
}

// offer records a freshly read value. It reports whether the value differs
// from the last one sent, or a previous change is still unsent.
func (s *Subscription) offer(value cbor.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !bytes.Equal(value, s.last) {
		s.last = value
		s.dirty = true
	}
	return s.dirty
}

// due reports whether the minimum interval has elapsed at now.
func (s *Subscription) due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastReport) >= s.MinInterval
}

// pending returns the value to report.
func (s *Subscription) pending() cbor.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// markReported records that the current value was delivered.
func (s *Subscription) markReported(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
	s.lastReport = now
}

// Dirty reports whether a change is waiting to be delivered.
func (s *Subscription) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}
