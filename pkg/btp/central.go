package btp

import (
	"context"
	"fmt"

	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/log"
)

// Link is a commissioner's GATT connection to a device.
type Link interface {
	// Write writes data to C1.
	Write(ctx context.Context, data []byte) error

	// Subscribe enables indications on C2.
	Subscribe(ctx context.Context) error

	// Indications delivers C2 values. The channel is closed when the link
	// drops.
	Indications() <-chan []byte

	// Disconnect drops the link.
	Disconnect() error
}

// DialConfig configures the commissioner side of a session.
type DialConfig struct {
	MTU            uint16
	Window         uint8
	MaxMessageSize int
	ProtocolLogger log.Logger
}

// DefaultDialConfig returns the default configuration.
func DefaultDialConfig() DialConfig {
	return DialConfig{
		MTU:            DefaultATTMTU,
		Window:         DefaultWindow,
		MaxMessageSize: interaction.MaxPacketSize,
	}
}

// Dial runs the handshake over link and returns the commissioner's end of
// the session.
func Dial(ctx context.Context, link Link, cfg DialConfig) (*Conn, error) {
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = interaction.MaxPacketSize
	}

	req := HandshakeRequest{MTU: cfg.MTU, Window: cfg.Window}
	req.Versions[0] = ProtocolVersion
	data, _ := req.MarshalBinary()

	if err := link.Write(ctx, data); err != nil {
		return nil, fmt.Errorf("btp handshake: %w", err)
	}
	if err := link.Subscribe(ctx); err != nil {
		return nil, fmt.Errorf("btp subscribe: %w", err)
	}

	var resp HandshakeResponse
	select {
	case <-ctx.Done():
		_ = link.Disconnect()
		return nil, ctx.Err()
	case raw, ok := <-link.Indications():
		if !ok {
			return nil, ErrPeerDisconnected
		}
		if err := resp.UnmarshalBinary(raw); err != nil {
			_ = link.Disconnect()
			return nil, err
		}
	}
	if resp.Version != ProtocolVersion {
		_ = link.Disconnect()
		return nil, fmt.Errorf("%w: device chose %d", ErrVersion, resp.Version)
	}

	c := newConn(connParams{
		segSize: int(resp.SegmentSize),
		window:  resp.Window,
		maxMsg:  cfg.MaxMessageSize,
		send:    link.Write,
		closeFn: link.Disconnect,
		plog:    cfg.ProtocolLogger,
	})
	go func() {
		for data := range link.Indications() {
			if err := c.handle(data); err != nil {
				c.fail(err)
				_ = link.Disconnect()
				return
			}
		}
		c.fail(ErrPeerDisconnected)
	}()
	return c, nil
}
