package interaction

import (
	"context"
	"errors"
	"net"
	"time"
)

// MaxPacketSize bounds a single interaction message.
const MaxPacketSize = 1280

// ErrTransportClosed is returned by a transport after Close.
var ErrTransportClosed = errors.New("transport closed")

// Packet is one message received from a peer.
type Packet struct {
	Peer net.Addr
	Data []byte
}

// Transport moves encoded messages between the engine and peers.
type Transport interface {
	// Name identifies the transport kind ("udp", "btp"). A transport that
	// replaces another with the same name inherits its subscribers.
	Name() string

	// Receive blocks for the next packet.
	Receive(ctx context.Context) (Packet, error)

	// Send delivers data to peer.
	Send(ctx context.Context, peer net.Addr, data []byte) error
}

// PacketTransport adapts a net.PacketConn.
type PacketTransport struct {
	name string
	conn net.PacketConn
}

var _ Transport = (*PacketTransport)(nil)

// NewPacketTransport wraps conn under the given transport name.
func NewPacketTransport(name string, conn net.PacketConn) *PacketTransport {
	return &PacketTransport{name: name, conn: conn}
}

// Name implements Transport.
func (t *PacketTransport) Name() string {
	return t.name
}

// Receive implements Transport. Cancelling ctx unblocks the read.
func (t *PacketTransport) Receive(ctx context.Context) (Packet, error) {
	_ = t.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, MaxPacketSize)
	n, addr, err := t.conn.ReadFrom(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Packet{}, ctxErr
		}
		if errors.Is(err, net.ErrClosed) {
			return Packet{}, ErrTransportClosed
		}
		return Packet{}, err
	}
	return Packet{Peer: addr, Data: buf[:n]}, nil
}

// Send implements Transport.
func (t *PacketTransport) Send(ctx context.Context, peer net.Addr, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
		defer func() { _ = t.conn.SetWriteDeadline(time.Time{}) }()
	}
	if _, err := t.conn.WriteTo(data, peer); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrTransportClosed
		}
		return err
	}
	return nil
}

// Close closes the underlying connection.
func (t *PacketTransport) Close() error {
	return t.conn.Close()
}
