package btp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Header flags.
const (
	FlagHandshake  uint8 = 0x40
	FlagManagement uint8 = 0x20
	FlagAck        uint8 = 0x08
	FlagEnd        uint8 = 0x04
	FlagContinue   uint8 = 0x02
	FlagBegin      uint8 = 0x01
)

// Handshake constants.
const (
	HandshakeOpcode  uint8 = 0x6C
	ProtocolVersion  uint8 = 4
	DefaultATTMTU          = 23
	MaxSegmentSize         = 244
	MinSegmentSize         = 20
	DefaultWindow    uint8 = 6
	handshakeFlags         = FlagHandshake | FlagManagement | FlagEnd | FlagBegin
	handshakeReqLen        = 9
	handshakeRespLen       = 6
)

// Framing errors.
var (
	ErrShortFragment      = errors.New("fragment too short")
	ErrInvalidFlags       = errors.New("invalid fragment flags")
	ErrUnexpectedBegin    = errors.New("begin fragment inside message")
	ErrUnexpectedContinue = errors.New("continuation without begin")
	ErrLengthMismatch     = errors.New("message length mismatch")
	ErrMessageTooLarge    = errors.New("message too large")
	ErrSequence           = errors.New("unexpected sequence number")
	ErrHandshake          = errors.New("invalid handshake")
	ErrVersion            = errors.New("no common protocol version")
)

// Fragment is one BTP data or ack packet.
type Fragment struct {
	Flags   uint8
	Ack     uint8
	Seq     uint8
	Length  uint16
	Payload []byte
}

// HasData reports whether the fragment belongs to a message.
func (f *Fragment) HasData() bool {
	return f.Flags&(FlagBegin|FlagContinue|FlagEnd) != 0
}

// headerLen returns the header size for the given flags.
func headerLen(flags uint8) int {
	n := 2
	if flags&FlagAck != 0 {
		n++
	}
	if flags&FlagBegin != 0 {
		n += 2
	}
	return n
}

// MarshalBinary encodes the fragment.
func (f *Fragment) MarshalBinary() ([]byte, error) {
	if err := validateFlags(f.Flags); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, headerLen(f.Flags)+len(f.Payload))
	buf = append(buf, f.Flags)
	if f.Flags&FlagAck != 0 {
		buf = append(buf, f.Ack)
	}
	buf = append(buf, f.Seq)
	if f.Flags&FlagBegin != 0 {
		buf = binary.LittleEndian.AppendUint16(buf, f.Length)
	}
	return append(buf, f.Payload...), nil
}

// UnmarshalBinary decodes a fragment. The payload aliases data.
func (f *Fragment) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return ErrShortFragment
	}
	flags := data[0]
	if err := validateFlags(flags); err != nil {
		return err
	}
	if len(data) < headerLen(flags) {
		return ErrShortFragment
	}

	*f = Fragment{Flags: flags}
	i := 1
	if flags&FlagAck != 0 {
		f.Ack = data[i]
		i++
	}
	f.Seq = data[i]
	i++
	if flags&FlagBegin != 0 {
		f.Length = binary.LittleEndian.Uint16(data[i:])
		i += 2
	}
	f.Payload = data[i:]
	if !f.HasData() && len(f.Payload) > 0 {
		return fmt.Errorf("%w: payload on ack", ErrInvalidFlags)
	}
	return nil
}

func validateFlags(flags uint8) error {
	switch {
	case flags&(FlagHandshake|FlagManagement) != 0:
		return fmt.Errorf("%w: 0x%02x on data fragment", ErrInvalidFlags, flags)
	case flags&FlagBegin != 0 && flags&FlagContinue != 0:
		return fmt.Errorf("%w: begin and continue", ErrInvalidFlags)
	case flags&(FlagBegin|FlagContinue|FlagEnd|FlagAck) == 0:
		return fmt.Errorf("%w: empty packet", ErrInvalidFlags)
	}
	return nil
}

// HandshakeRequest is written by the commissioner to C1.
type HandshakeRequest struct {
	Versions [8]uint8
	MTU      uint16
	Window   uint8
}

// MarshalBinary encodes the request.
func (r *HandshakeRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, handshakeReqLen)
	buf[0] = handshakeFlags
	buf[1] = HandshakeOpcode
	for i := 0; i < 4; i++ {
		buf[2+i] = r.Versions[2*i]&0x0F | r.Versions[2*i+1]<<4
	}
	binary.LittleEndian.PutUint16(buf[6:], r.MTU)
	buf[8] = r.Window
	return buf, nil
}

// UnmarshalBinary decodes a request.
func (r *HandshakeRequest) UnmarshalBinary(data []byte) error {
	if len(data) < handshakeReqLen || data[0] != handshakeFlags || data[1] != HandshakeOpcode {
		return ErrHandshake
	}
	for i := 0; i < 4; i++ {
		r.Versions[2*i] = data[2+i] & 0x0F
		r.Versions[2*i+1] = data[2+i] >> 4
	}
	r.MTU = binary.LittleEndian.Uint16(data[6:])
	r.Window = data[8]
	if r.Window == 0 {
		return fmt.Errorf("%w: zero window", ErrHandshake)
	}
	return nil
}

// Supports reports whether v is among the offered versions.
func (r *HandshakeRequest) Supports(v uint8) bool {
	for _, o := range r.Versions {
		if o == v {
			return true
		}
	}
	return false
}

// HandshakeResponse is indicated by the device on C2.
type HandshakeResponse struct {
	Version     uint8
	SegmentSize uint16
	Window      uint8
}

// MarshalBinary encodes the response.
func (r *HandshakeResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, handshakeRespLen)
	buf[0] = handshakeFlags
	buf[1] = HandshakeOpcode
	buf[2] = r.Version & 0x0F
	binary.LittleEndian.PutUint16(buf[3:], r.SegmentSize)
	buf[5] = r.Window
	return buf, nil
}

// UnmarshalBinary decodes a response.
func (r *HandshakeResponse) UnmarshalBinary(data []byte) error {
	if len(data) < handshakeRespLen || data[0] != handshakeFlags || data[1] != HandshakeOpcode {
		return ErrHandshake
	}
	r.Version = data[2] & 0x0F
	r.SegmentSize = binary.LittleEndian.Uint16(data[3:])
	r.Window = data[5]
	if r.SegmentSize < MinSegmentSize || r.Window == 0 {
		return fmt.Errorf("%w: segment %d window %d", ErrHandshake, r.SegmentSize, r.Window)
	}
	return nil
}

// SegmentSize returns the negotiated segment size for an ATT MTU.
func SegmentSize(mtu uint16) uint16 {
	if mtu < DefaultATTMTU {
		return MinSegmentSize
	}
	return min(mtu-3, MaxSegmentSize)
}

// IsHandshake reports whether data is a handshake packet.
func IsHandshake(data []byte) bool {
	return len(data) > 0 && data[0]&FlagHandshake != 0
}
