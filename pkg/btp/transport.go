package btp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/log"
)

// ErrNoSession is returned by Send when no commissioner is connected.
var ErrNoSession = errors.New("no btp session")

// DefaultHandshakeTimeout bounds sending the handshake response.
const DefaultHandshakeTimeout = 5 * time.Second

// Config configures a Transport.
type Config struct {
	Advertisement Advertisement

	// Window is the receive window offered to the commissioner.
	Window uint8

	// MaxMessageSize bounds a reassembled message.
	MaxMessageSize int

	HandshakeTimeout time.Duration

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Window:           DefaultWindow,
		MaxMessageSize:   interaction.MaxPacketSize,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Advertisement.Discriminator > MaxDiscriminator {
		return fmt.Errorf("discriminator %d out of range", c.Advertisement.Discriminator)
	}
	if c.Window == 0 {
		return errors.New("window must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("max message size must be positive")
	}
	return nil
}

// handshake tracks a central that has not completed the handshake yet.
type handshake struct {
	req        *HandshakeRequest
	subscribed bool
	mtu        uint16
}

// Transport is the device side of BTP. It accepts one commissioner at a
// time and advertises again when that commissioner leaves.
type Transport struct {
	cfg  Config
	p    Peripheral
	plog log.Logger

	packets chan interaction.Packet

	mu        sync.Mutex
	conn      *Conn
	pending   map[ConnID]*handshake
	onConnect func(*Conn)
	onLost    func(*Conn, error)

	closeOnce sync.Once
	closed    chan struct{}
}

var _ interaction.Transport = (*Transport)(nil)

// NewTransport creates a transport on p.
func NewTransport(p Peripheral, cfg Config) (*Transport, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Transport{
		cfg:     cfg,
		p:       p,
		plog:    log.OrNoop(cfg.ProtocolLogger),
		packets: make(chan interaction.Packet, inboxSize),
		pending: make(map[ConnID]*handshake),
		closed:  make(chan struct{}),
	}, nil
}

// Name implements interaction.Transport.
func (t *Transport) Name() string { return "btp" }

// OnConnect sets the callback run when a commissioner completes the
// handshake.
func (t *Transport) OnConnect(fn func(*Conn)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnect = fn
}

// OnDisconnect sets the callback run when a session ends.
func (t *Transport) OnDisconnect(fn func(*Conn, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = fn
}

// Conn returns the current session, or nil.
func (t *Transport) Conn() *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// Run advertises and serves peripheral events until ctx is done, Close is
// called or the peripheral shuts down. Advertising stops on return.
func (t *Transport) Run(ctx context.Context) error {
	if err := t.advertise(ctx); err != nil {
		return err
	}
	defer func() {
		_ = t.p.StopAdvertising()
		t.endSession(ErrConnClosed, true)
	}()

	events := t.p.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.closed:
			return nil
		case ev, ok := <-events:
			if !ok {
				return interaction.ErrTransportClosed
			}
			if err := t.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// Receive implements interaction.Transport. It spans sessions: a
// commissioner leaving does not end the stream.
func (t *Transport) Receive(ctx context.Context) (interaction.Packet, error) {
	select {
	case <-ctx.Done():
		return interaction.Packet{}, ctx.Err()
	case <-t.closed:
		return interaction.Packet{}, interaction.ErrTransportClosed
	case pkt := <-t.packets:
		return pkt, nil
	}
}

// Send implements interaction.Transport.
func (t *Transport) Send(ctx context.Context, peer net.Addr, data []byte) error {
	select {
	case <-t.closed:
		return interaction.ErrTransportClosed
	default:
	}
	c := t.Conn()
	if c == nil {
		return ErrNoSession
	}
	if a, ok := peer.(Addr); ok && a != c.RemoteAddr() {
		return fmt.Errorf("%w: %s is gone", ErrNoSession, a)
	}
	return c.Send(ctx, peer, data)
}

// Close stops the transport and drops the current commissioner.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *Transport) advertise(ctx context.Context) error {
	if err := t.p.Advertise(ctx, t.cfg.Advertisement); err != nil {
		return fmt.Errorf("btp advertise: %w", err)
	}
	t.debugLog("btp: advertising", "discriminator", t.cfg.Advertisement.Discriminator)
	return nil
}

func (t *Transport) handleEvent(ctx context.Context, ev PeripheralEvent) error {
	t.mu.Lock()
	c := t.conn
	t.mu.Unlock()

	if c != nil && c.RemoteAddr().Conn == ev.Conn {
		switch ev.Kind {
		case EventWrite:
			if err := c.handle(ev.Data); err != nil {
				t.plog.Log(t.errorEvent(c, err))
				t.debugLog("btp: dropping session", "conn", ev.Conn, "error", err)
				_ = t.p.Disconnect(ev.Conn)
				t.endSession(err, false)
				return t.advertise(ctx)
			}
		case EventDisconnected:
			t.endSession(ErrPeerDisconnected, false)
			return t.advertise(ctx)
		}
		return nil
	}

	switch ev.Kind {
	case EventDisconnected:
		t.mu.Lock()
		delete(t.pending, ev.Conn)
		t.mu.Unlock()
		return nil
	case EventSubscribed:
		h := t.pendingFor(ev.Conn)
		h.subscribed = true
		if ev.MTU != 0 {
			h.mtu = ev.MTU
		}
	case EventWrite:
		h := t.pendingFor(ev.Conn)
		var req HandshakeRequest
		if err := req.UnmarshalBinary(ev.Data); err != nil {
			t.debugLog("btp: bad handshake", "conn", ev.Conn, "error", err)
			t.reject(ev.Conn)
			return nil
		}
		h.req = &req
	}

	t.mu.Lock()
	h := t.pending[ev.Conn]
	ready := h != nil && h.req != nil && h.subscribed
	busy := t.conn != nil
	t.mu.Unlock()
	if !ready {
		return nil
	}
	if busy {
		t.debugLog("btp: already in session, rejecting", "conn", ev.Conn)
		t.reject(ev.Conn)
		return nil
	}
	return t.accept(ctx, ev.Conn, h)
}

func (t *Transport) pendingFor(id ConnID) *handshake {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.pending[id]
	if !ok {
		h = &handshake{}
		t.pending[id] = h
	}
	return h
}

func (t *Transport) reject(id ConnID) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
	_ = t.p.Disconnect(id)
}

func (t *Transport) accept(ctx context.Context, id ConnID, h *handshake) error {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()

	if !h.req.Supports(ProtocolVersion) {
		t.debugLog("btp: no common version", "conn", id, "offered", h.req.Versions)
		t.reject(id)
		return nil
	}

	mtu := h.req.MTU
	if h.mtu != 0 && (mtu == 0 || h.mtu < mtu) {
		mtu = h.mtu
	}
	resp := HandshakeResponse{
		Version:     ProtocolVersion,
		SegmentSize: SegmentSize(mtu),
		Window:      min(h.req.Window, t.cfg.Window),
	}
	data, _ := resp.MarshalBinary()

	sctx, cancel := context.WithTimeout(ctx, t.cfg.HandshakeTimeout)
	err := t.p.Indicate(sctx, id, data)
	cancel()
	if err != nil {
		t.debugLog("btp: handshake response failed", "conn", id, "error", err)
		t.reject(id)
		return nil
	}

	// One commissioner at a time.
	if err := t.p.StopAdvertising(); err != nil {
		t.debugLog("btp: stop advertising failed", "error", err)
	}

	remote := Addr{Conn: id}
	c := newConn(connParams{
		remote:  remote,
		segSize: int(resp.SegmentSize),
		window:  resp.Window,
		maxMsg:  t.cfg.MaxMessageSize,
		send: func(ctx context.Context, data []byte) error {
			return t.p.Indicate(ctx, id, data)
		},
		closeFn: func() error { return t.p.Disconnect(id) },
		plog:    t.plog,
	})

	t.mu.Lock()
	t.conn = c
	onConnect := t.onConnect
	t.mu.Unlock()

	go t.pump(c)

	t.plog.Log(t.stateEvent(c, "ADVERTISING", "CONNECTED", "handshake complete"))
	t.debugLog("btp: session established", "conn", id, "segment", resp.SegmentSize, "window", resp.Window)
	if onConnect != nil {
		onConnect(c)
	}
	return nil
}

// pump forwards the messages of c into the transport stream.
func (t *Transport) pump(c *Conn) {
	for {
		select {
		case msg := <-c.inbox:
			select {
			case t.packets <- interaction.Packet{Peer: c.RemoteAddr(), Data: msg}:
			case <-t.closed:
				return
			}
		case <-c.Done():
			return
		case <-t.closed:
			return
		}
	}
}

// endSession fails the current session with reason. Callbacks run outside
// the lock.
func (t *Transport) endSession(reason error, disconnect bool) {
	t.mu.Lock()
	c := t.conn
	t.conn = nil
	onLost := t.onLost
	t.mu.Unlock()
	if c == nil {
		return
	}

	if disconnect {
		_ = t.p.Disconnect(c.RemoteAddr().Conn)
	}
	c.fail(reason)
	t.plog.Log(t.stateEvent(c, "CONNECTED", "ADVERTISING", reason.Error()))
	t.debugLog("btp: session ended", "conn", c.RemoteAddr().Conn, "reason", reason)
	if onLost != nil {
		onLost(c, reason)
	}
}

func (t *Transport) stateEvent(c *Conn, from, to, reason string) log.Event {
	ev := log.StateChange(log.LayerBTP, log.StateEntityPipe, from, to, reason)
	ev.SessionID = c.ID()
	ev.RemoteAddr = c.RemoteAddr().String()
	return ev
}

func (t *Transport) errorEvent(c *Conn, err error) log.Event {
	ev := log.Error(log.LayerBTP, "receive", err)
	ev.SessionID = c.ID()
	ev.RemoteAddr = c.RemoteAddr().String()
	return ev
}

func (t *Transport) debugLog(msg string, args ...any) {
	if t.cfg.Logger != nil {
		t.cfg.Logger.Debug(msg, args...)
	}
}
