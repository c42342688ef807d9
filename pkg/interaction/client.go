package interaction

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mash-protocol/matter-stack/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout = errors.New("request timed out")
	ErrClientClosed   = errors.New("client is closed")
)

// DefaultRequestTimeout bounds a request without a context deadline.
const DefaultRequestTimeout = 30 * time.Second

// Client issues requests to a single device over a Transport.
type Client struct {
	mu sync.RWMutex

	transport Transport
	peer      net.Addr
	timeout   time.Duration

	nextExchange uint32

	pending   map[uint32]chan *wire.Message
	pendingMu sync.Mutex

	reportHandler func(*wire.Message)

	closed bool
}

// NewClient creates a client talking to peer over t.
func NewClient(t Transport, peer net.Addr) *Client {
	return &Client{
		transport: t,
		peer:      peer,
		timeout:   DefaultRequestTimeout,
		pending:   make(map[uint32]chan *wire.Message),
	}
}

// SetTimeout sets the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// OnReport sets the handler for subscription reports.
func (c *Client) OnReport(handler func(*wire.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reportHandler = handler
}

// Run receives responses and reports until ctx is done or the transport fails.
func (c *Client) Run(ctx context.Context) error {
	defer c.Close()
	for {
		pkt, err := c.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg, err := wire.Decode(pkt.Data)
		if err != nil {
			continue
		}
		switch msg.Kind {
		case wire.KindResponse:
			c.deliver(msg)
		case wire.KindReport:
			c.mu.RLock()
			handler := c.reportHandler
			c.mu.RUnlock()
			if handler != nil {
				handler(msg)
			}
		}
	}
}

// Close fails all pending requests.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *Client) deliver(msg *wire.Message) {
	c.pendingMu.Lock()
	ch, exists := c.pending[msg.ExchangeID]
	if exists {
		delete(c.pending, msg.ExchangeID)
	}
	c.pendingMu.Unlock()

	if exists {
		ch <- msg
	}
}

func (c *Client) request(ctx context.Context, op wire.Opcode, path wire.Path, payload any) (*wire.Message, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClientClosed
	}
	timeout := c.timeout
	c.mu.RUnlock()

	raw, err := wire.EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	req := &wire.Message{
		Kind:       wire.KindRequest,
		ExchangeID: atomic.AddUint32(&c.nextExchange, 1),
		Opcode:     op,
		Path:       path,
		Payload:    raw,
	}
	data, err := wire.Encode(req)
	if err != nil {
		return nil, err
	}

	respCh := make(chan *wire.Message, 1)
	c.pendingMu.Lock()
	c.pending[req.ExchangeID] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ExchangeID)
		c.pendingMu.Unlock()
	}()

	if err := c.transport.Send(ctx, c.peer, data); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrRequestTimeout
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrClientClosed
		}
		if !resp.Status.IsSuccess() {
			return resp, &StatusError{Status: resp.Status}
		}
		return resp, nil
	}
}

// Read reads the attribute at path into out.
func (c *Client) Read(ctx context.Context, path wire.Path, out any) error {
	resp, err := c.request(ctx, wire.OpRead, path, nil)
	if err != nil {
		return err
	}
	return decodeInto(resp.Payload, out)
}

// Write replaces the attribute at path with value.
func (c *Client) Write(ctx context.Context, path wire.Path, value any) error {
	_, err := c.request(ctx, wire.OpWrite, path, value)
	return err
}

// Invoke executes the command at path and decodes its response into out.
// out may be nil when the command has no response.
func (c *Client) Invoke(ctx context.Context, path wire.Path, args, out any) error {
	resp, err := c.request(ctx, wire.OpInvoke, path, args)
	if err != nil {
		return err
	}
	return decodeInto(resp.Payload, out)
}

// Subscribe registers for reports on path and returns the subscription id
// and the priming value.
func (c *Client) Subscribe(ctx context.Context, path wire.Path, minInterval time.Duration) (uint32, cbor.RawMessage, error) {
	var args any
	if minInterval > 0 {
		args = &SubscribeRequest{MinIntervalMs: uint32(minInterval.Milliseconds())}
	}
	resp, err := c.request(ctx, wire.OpSubscribe, path, args)
	if err != nil {
		return 0, nil, err
	}
	return resp.SubscriptionID, resp.Payload, nil
}

func decodeInto(raw cbor.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	if err := wire.DecodePayload(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
