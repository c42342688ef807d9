package interaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/mash-protocol/matter-stack/pkg/wire"
)

// ErrResourceExhausted marks a handler failure that leaves the device in an
// unsafe state. The engine reports it to the peer and then stops.
var ErrResourceExhausted = errors.New("resource exhausted")

// Handler is the capability implemented by every cluster.
type Handler interface {
	// Read returns the value of the attribute at path.
	Read(ctx context.Context, path wire.Path) (any, error)

	// Write replaces the attribute at path with the encoded value.
	Write(ctx context.Context, path wire.Path, value cbor.RawMessage) error

	// Invoke executes the command at path and returns its response.
	Invoke(ctx context.Context, path wire.Path, args cbor.RawMessage) (any, error)
}

// StatusError carries a protocol status code to the peer.
type StatusError struct {
	Status wire.Status
	Err    error
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Status, e.Err)
	}
	return e.Status.String()
}

// Unwrap returns the underlying error.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// Errorf returns a StatusError with a formatted cause.
func Errorf(status wire.Status, format string, args ...any) error {
	return &StatusError{Status: status, Err: fmt.Errorf(format, args...)}
}

// NewStatus returns a StatusError without a cause.
func NewStatus(status wire.Status) error {
	return &StatusError{Status: status}
}

// Status maps a handler error to the status sent to the peer.
func Status(err error) wire.Status {
	if err == nil {
		return wire.StatusSuccess
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	switch {
	case errors.Is(err, ErrResourceExhausted):
		return wire.StatusResourceExhausted
	case errors.Is(err, context.DeadlineExceeded):
		return wire.StatusTimeout
	default:
		return wire.StatusFailure
	}
}

// Chain routes paths on one endpoint/cluster pair to Handler and everything
// else to Next.
type Chain struct {
	Endpoint uint16
	Cluster  uint32
	Handler  Handler
	Next     Handler
}

var _ Handler = (*Chain)(nil)

// NewChain composes h in front of next. A nil next terminates with Empty.
func NewChain(endpoint uint16, cluster uint32, h, next Handler) *Chain {
	if next == nil {
		next = Empty
	}
	return &Chain{Endpoint: endpoint, Cluster: cluster, Handler: h, Next: next}
}

func (c *Chain) route(path wire.Path) Handler {
	if path.Endpoint == c.Endpoint && path.Cluster == c.Cluster {
		return c.Handler
	}
	return c.Next
}

// Read implements Handler.
func (c *Chain) Read(ctx context.Context, path wire.Path) (any, error) {
	return c.route(path).Read(ctx, path)
}

// Write implements Handler.
func (c *Chain) Write(ctx context.Context, path wire.Path, value cbor.RawMessage) error {
	return c.route(path).Write(ctx, path, value)
}

// Invoke implements Handler.
func (c *Chain) Invoke(ctx context.Context, path wire.Path, args cbor.RawMessage) (any, error) {
	return c.route(path).Invoke(ctx, path, args)
}

type emptyHandler struct{}

// Empty terminates a chain and rejects every path.
var Empty Handler = emptyHandler{}

func (emptyHandler) Read(context.Context, wire.Path) (any, error) {
	return nil, NewStatus(wire.StatusUnsupportedCluster)
}

func (emptyHandler) Write(context.Context, wire.Path, cbor.RawMessage) error {
	return NewStatus(wire.StatusUnsupportedCluster)
}

func (emptyHandler) Invoke(context.Context, wire.Path, cbor.RawMessage) (any, error) {
	return nil, NewStatus(wire.StatusUnsupportedCluster)
}
