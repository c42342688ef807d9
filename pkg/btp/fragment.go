package btp

import (
	"fmt"
	"math"
)

// Split cuts msg into data fragments that fit segSize bytes each, leaving
// room for a piggybacked ack. Sequence and ack numbers are assigned when
// the fragments are sent.
func Split(msg []byte, segSize int) ([]Fragment, error) {
	if len(msg) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrLengthMismatch)
	}
	if len(msg) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(msg))
	}
	first := segSize - headerLen(FlagBegin|FlagAck)
	rest := segSize - headerLen(FlagContinue|FlagAck)
	if first <= 0 || rest <= 0 {
		return nil, fmt.Errorf("segment size %d too small", segSize)
	}

	var frags []Fragment
	n := min(first, len(msg))
	frags = append(frags, Fragment{Flags: FlagBegin, Length: uint16(len(msg)), Payload: msg[:n]})
	for off := n; off < len(msg); off += n {
		n = min(rest, len(msg)-off)
		frags = append(frags, Fragment{Flags: FlagContinue, Payload: msg[off : off+n]})
	}
	frags[len(frags)-1].Flags |= FlagEnd
	return frags, nil
}

// reassembler rebuilds messages from data fragments.
type reassembler struct {
	maxSize int
	active  bool
	want    int
	buf     []byte
}

func newReassembler(maxSize int) *reassembler {
	return &reassembler{maxSize: maxSize}
}

// feed adds a data fragment and returns the message once its end arrived.
func (r *reassembler) feed(f *Fragment) ([]byte, error) {
	switch {
	case f.Flags&FlagBegin != 0:
		if r.active {
			r.reset()
			return nil, ErrUnexpectedBegin
		}
		if int(f.Length) > r.maxSize {
			return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, f.Length, r.maxSize)
		}
		if f.Length == 0 {
			return nil, fmt.Errorf("%w: zero length", ErrLengthMismatch)
		}
		r.active = true
		r.want = int(f.Length)
		r.buf = make([]byte, 0, r.want)
	case !r.active:
		return nil, ErrUnexpectedContinue
	}

	if len(r.buf)+len(f.Payload) > r.want {
		r.reset()
		return nil, fmt.Errorf("%w: overflow", ErrLengthMismatch)
	}
	r.buf = append(r.buf, f.Payload...)

	if f.Flags&FlagEnd == 0 {
		return nil, nil
	}
	if len(r.buf) != r.want {
		got := len(r.buf)
		r.reset()
		return nil, fmt.Errorf("%w: got %d want %d", ErrLengthMismatch, got, r.want)
	}
	msg := r.buf
	r.reset()
	return msg, nil
}

func (r *reassembler) reset() {
	r.active = false
	r.want = 0
	r.buf = nil
}
