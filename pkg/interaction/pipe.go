package interaction

import (
	"context"
	"net"
	"sync"
)

// PipeAddr names one end of an in-memory pipe.
type PipeAddr string

// Network implements net.Addr.
func (a PipeAddr) Network() string { return "pipe" }

// String implements net.Addr.
func (a PipeAddr) String() string { return string(a) }

// PipeTransport is one end of an in-memory transport pair.
type PipeTransport struct {
	name  string
	local PipeAddr
	in    chan []byte
	peer  *PipeTransport

	once   sync.Once
	closed chan struct{}
}

var _ Transport = (*PipeTransport)(nil)

// Pipe returns two connected transports. Both report the given name.
func Pipe(name string) (device, controller *PipeTransport) {
	device = &PipeTransport{name: name, local: "device", in: make(chan []byte, 16), closed: make(chan struct{})}
	controller = &PipeTransport{name: name, local: "controller", in: make(chan []byte, 16), closed: make(chan struct{})}
	device.peer, controller.peer = controller, device
	return device, controller
}

// Addr returns this end's address.
func (p *PipeTransport) Addr() net.Addr { return p.local }

// Name implements Transport.
func (p *PipeTransport) Name() string { return p.name }

// Receive implements Transport.
func (p *PipeTransport) Receive(ctx context.Context) (Packet, error) {
	select {
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case <-p.closed:
		return Packet{}, ErrTransportClosed
	case data := <-p.in:
		return Packet{Peer: p.peer.local, Data: data}, nil
	}
}

// Send implements Transport. The peer address is ignored.
func (p *PipeTransport) Send(ctx context.Context, _ net.Addr, data []byte) error {
	buf := append([]byte(nil), data...)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrTransportClosed
	case <-p.peer.closed:
		return ErrTransportClosed
	case p.peer.in <- buf:
		return nil
	}
}

// Close closes this end. Sends from the other end fail afterwards.
func (p *PipeTransport) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
