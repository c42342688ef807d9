// Package btp implements the BLE commissioning transport.
//
// BTP carries interaction messages over two GATT characteristics of a
// peripheral: the commissioner writes fragments to C1 and the device sends
// fragments as indications on C2. A session starts with a handshake that
// fixes the protocol version, the segment size (ATT MTU minus 3, capped at
// MaxSegmentSize) and each side's receive window.
//
// # Fragments
//
// Every fragment starts with a flags byte:
//
//	H 0x40  handshake
//	M 0x20  management opcode follows
//	A 0x08  ack number follows
//	E 0x04  last fragment of a message
//	C 0x02  continuation fragment
//	B 0x01  first fragment; a 16-bit little-endian message length follows
//
// then the optional ack number, the sequence number and the payload.
// Sequence numbers count every packet sent after the handshake and wrap
// at 256. Received data fragments are acknowledged with a standalone ack.
//
// # Lifecycle
//
// Transport advertises the commissioning service while Run is active. When
// the commissioner disconnects, the current Conn fails with
// ErrPeerDisconnected and the transport advertises again for a new peer.
// The transport satisfies interaction.Transport under the name "btp".
package btp
