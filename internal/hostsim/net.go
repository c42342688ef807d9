package hostsim

import (
	"context"
	"net"
)

// ListenUDP opens a UDP socket on an ephemeral loopback port. It matches
// stack.Peripherals.Listen.
func ListenUDP(ctx context.Context) (net.PacketConn, error) {
	var lc net.ListenConfig
	return lc.ListenPacket(ctx, "udp4", "127.0.0.1:0")
}
