package btp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/log"
)

// Session errors.
var (
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrConnClosed       = errors.New("connection closed")
)

const (
	// ackTimeout bounds sending a standalone ack.
	ackTimeout = 5 * time.Second

	// maxLoggedFrame bounds the bytes copied into a FrameEvent.
	maxLoggedFrame = 64

	inboxSize = 4
)

type sendFunc func(ctx context.Context, data []byte) error

// Conn is an established BTP session. It carries whole messages and
// implements interaction.Transport for its single peer.
type Conn struct {
	id      string
	remote  Addr
	segSize int
	window  int
	send    sendFunc
	closeFn func() error
	plog    log.Logger

	// msgMu keeps the fragments of one message together; sendMu keeps
	// sequence numbers in wire order.
	msgMu  sync.Mutex
	sendMu sync.Mutex

	mu       sync.Mutex
	txSeq    uint8
	rxNext   uint8
	ackDue   bool
	ackSeq   uint8
	inflight []uint8
	err      error

	rx     *reassembler
	inbox  chan []byte
	ackReq chan struct{}
	credit chan struct{}

	once sync.Once
	done chan struct{}
}

var _ interaction.Transport = (*Conn)(nil)

type connParams struct {
	remote  Addr
	segSize int
	window  uint8
	maxMsg  int
	send    sendFunc
	closeFn func() error
	plog    log.Logger
}

func newConn(p connParams) *Conn {
	c := &Conn{
		id:      uuid.NewString(),
		remote:  p.remote,
		segSize: p.segSize,
		window:  int(p.window),
		send:    p.send,
		closeFn: p.closeFn,
		plog:    log.OrNoop(p.plog),
		rx:      newReassembler(p.maxMsg),
		inbox:   make(chan []byte, inboxSize),
		ackReq:  make(chan struct{}, 1),
		credit:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go c.ackLoop()
	return c
}

// ID returns the session identifier used in protocol logs.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() Addr { return c.remote }

// SegmentSize returns the negotiated segment size.
func (c *Conn) SegmentSize() int { return c.segSize }

// Window returns the peer's receive window.
func (c *Conn) Window() int { return c.window }

// Name implements interaction.Transport.
func (c *Conn) Name() string { return "btp" }

// Done is closed when the session ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the session ended, or nil while it is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Receive implements interaction.Transport. Messages that arrived before
// the session ended are still delivered.
func (c *Conn) Receive(ctx context.Context) (interaction.Packet, error) {
	select {
	case msg := <-c.inbox:
		return interaction.Packet{Peer: c.remote, Data: msg}, nil
	default:
	}
	select {
	case <-ctx.Done():
		return interaction.Packet{}, ctx.Err()
	case msg := <-c.inbox:
		return interaction.Packet{Peer: c.remote, Data: msg}, nil
	case <-c.done:
		return interaction.Packet{}, c.Err()
	}
}

// Send implements interaction.Transport. The peer is implied by the
// session and ignored.
func (c *Conn) Send(ctx context.Context, _ net.Addr, data []byte) error {
	frags, err := Split(data, c.segSize)
	if err != nil {
		return err
	}

	c.msgMu.Lock()
	defer c.msgMu.Unlock()
	for i := range frags {
		if err := c.acquire(ctx); err != nil {
			return err
		}
		if err := c.sendData(ctx, &frags[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close ends the session and drops the peer.
func (c *Conn) Close() error {
	var err error
	if c.closeFn != nil {
		err = c.closeFn()
	}
	c.fail(ErrConnClosed)
	return err
}

func (c *Conn) fail(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

// acquire waits until the peer's window has room for one more fragment.
func (c *Conn) acquire(ctx context.Context) error {
	for {
		c.mu.Lock()
		room := len(c.inflight) < c.window
		c.mu.Unlock()
		if room {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return c.Err()
		case <-c.credit:
		}
	}
}

func (c *Conn) sendData(ctx context.Context, f *Fragment) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if c.ackDue {
		f.Flags |= FlagAck
		f.Ack = c.ackSeq
		c.ackDue = false
	}
	f.Seq = c.txSeq
	c.txSeq++
	c.inflight = append(c.inflight, f.Seq)
	c.mu.Unlock()

	return c.write(ctx, f)
}

func (c *Conn) sendAck(ctx context.Context) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if !c.ackDue {
		c.mu.Unlock()
		return nil
	}
	f := Fragment{Flags: FlagAck, Ack: c.ackSeq, Seq: c.txSeq}
	c.txSeq++
	c.ackDue = false
	c.mu.Unlock()

	return c.write(ctx, &f)
}

func (c *Conn) ackLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.ackReq:
		}
		ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
		err := c.sendAck(ctx)
		cancel()
		if err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Conn) write(ctx context.Context, f *Fragment) error {
	select {
	case <-c.done:
		return c.Err()
	default:
	}
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	c.logFrame(log.DirectionOut, f, data)
	if err := c.send(ctx, data); err != nil {
		return fmt.Errorf("btp send: %w", err)
	}
	return nil
}

// handle processes one packet from the peer. Calls come from a single
// reader goroutine.
func (c *Conn) handle(data []byte) error {
	var f Fragment
	if err := f.UnmarshalBinary(data); err != nil {
		return err
	}
	c.logFrame(log.DirectionIn, &f, data)

	c.mu.Lock()
	if f.Seq != c.rxNext {
		want := c.rxNext
		c.mu.Unlock()
		return fmt.Errorf("%w: got %d want %d", ErrSequence, f.Seq, want)
	}
	c.rxNext++
	if f.Flags&FlagAck != 0 {
		if err := c.ackedLocked(f.Ack); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	if f.HasData() {
		c.ackDue = true
		c.ackSeq = f.Seq
	}
	c.mu.Unlock()

	if !f.HasData() {
		return nil
	}
	select {
	case c.ackReq <- struct{}{}:
	default:
	}

	msg, err := c.rx.feed(&f)
	if err != nil || msg == nil {
		return err
	}
	select {
	case c.inbox <- msg:
		return nil
	case <-c.done:
		return c.Err()
	}
}

// ackedLocked releases every outstanding fragment up to ack.
func (c *Conn) ackedLocked(ack uint8) error {
	i := slices.Index(c.inflight, ack)
	if i < 0 {
		return fmt.Errorf("%w: ack %d not outstanding", ErrSequence, ack)
	}
	c.inflight = c.inflight[i+1:]
	select {
	case c.credit <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) logFrame(dir log.Direction, f *Fragment, raw []byte) {
	data := raw
	truncated := false
	if len(data) > maxLoggedFrame {
		data = data[:maxLoggedFrame]
		truncated = true
	}
	c.plog.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.id,
		Direction:  dir,
		Layer:      log.LayerBTP,
		Category:   log.CategoryMessage,
		RemoteAddr: c.remote.String(),
		Frame: &log.FrameEvent{
			Size:      len(raw),
			Flags:     f.Flags,
			Sequence:  f.Seq,
			Data:      append([]byte(nil), data...),
			Truncated: truncated,
		},
	})
}
