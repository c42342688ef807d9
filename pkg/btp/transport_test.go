package btp_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mash-protocol/matter-stack/internal/hostsim"
	"github.com/mash-protocol/matter-stack/pkg/btp"
	"github.com/mash-protocol/matter-stack/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(ev log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureLogger) frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Frame != nil && ev.Layer == log.LayerBTP {
			n++
		}
	}
	return n
}

type fixture struct {
	ble       *hostsim.BLE
	transport *btp.Transport
	plog      *captureLogger
	cancel    context.CancelFunc
	done      chan error
}

func startTransport(t *testing.T, mtu uint16, window uint8) *fixture {
	t.Helper()
	ble := hostsim.NewBLE(mtu)
	plog := &captureLogger{}

	cfg := btp.DefaultConfig()
	cfg.Advertisement = btp.Advertisement{Discriminator: 3840, VendorID: 0xFFF1, ProductID: 0x8000}
	cfg.Window = window
	cfg.ProtocolLogger = plog
	tr, err := btp.NewTransport(ble, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{ble: ble, transport: tr, plog: plog, cancel: cancel, done: make(chan error, 1)}
	go func() { f.done <- tr.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := ble.Advertising()
		return ok
	}, time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		<-f.done
		_ = ble.Close()
	})
	return f
}

func dial(t *testing.T, ble *hostsim.BLE, cfg btp.DialConfig) (*hostsim.Central, *btp.Conn) {
	t.Helper()
	link, err := ble.Connect()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := btp.Dial(ctx, link, cfg)
	require.NoError(t, err)
	return link, conn
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestTransportAdvertisesServiceData(t *testing.T) {
	f := startTransport(t, 247, btp.DefaultWindow)

	adv, ok := f.ble.Advertising()
	require.True(t, ok)
	assert.Equal(t, uint16(3840), adv.Discriminator)
	assert.Equal(t, uint16(0xFFF1), adv.VendorID)
	assert.Equal(t, uint16(0x8000), adv.ProductID)
}

func TestTransportHandshakeNegotiation(t *testing.T) {
	f := startTransport(t, 100, 4)

	cfg := btp.DefaultDialConfig()
	cfg.MTU = 247
	cfg.Window = 8
	_, conn := dial(t, f.ble, cfg)

	// Smaller of the two MTUs minus the ATT header, smaller of the windows.
	assert.Equal(t, 97, conn.SegmentSize())
	assert.Equal(t, 4, conn.Window())

	require.Eventually(t, func() bool { return f.transport.Conn() != nil }, time.Second, 5*time.Millisecond)
	_, advertising := f.ble.Advertising()
	assert.False(t, advertising, "advertising stops while a commissioner is connected")
}

func TestTransportMessageRoundTrip(t *testing.T) {
	f := startTransport(t, 23, 2)
	_, conn := dial(t, f.ble, btp.DefaultDialConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Larger than the window times the segment size, so sends must wait
	// for acks.
	req := payload(500)
	require.NoError(t, conn.Send(ctx, nil, req))

	pkt, err := f.transport.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(req, pkt.Data))
	assert.Equal(t, "btp", pkt.Peer.Network())

	resp := payload(300)
	require.NoError(t, f.transport.Send(ctx, pkt.Peer, resp))
	got, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(resp, got.Data))

	assert.Positive(t, f.plog.frames())
}

func TestTransportPeerDisconnectReadvertises(t *testing.T) {
	f := startTransport(t, 247, btp.DefaultWindow)

	var (
		mu     sync.Mutex
		reason error
	)
	lost := make(chan struct{}, 1)
	f.transport.OnDisconnect(func(_ *btp.Conn, err error) {
		mu.Lock()
		reason = err
		mu.Unlock()
		lost <- struct{}{}
	})

	link, _ := dial(t, f.ble, btp.DefaultDialConfig())
	require.Eventually(t, func() bool { return f.transport.Conn() != nil }, time.Second, 5*time.Millisecond)
	session := f.transport.Conn()
	advertised := f.ble.Advertised()

	require.NoError(t, link.Disconnect())
	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}

	mu.Lock()
	assert.ErrorIs(t, reason, btp.ErrPeerDisconnected)
	mu.Unlock()
	assert.ErrorIs(t, session.Err(), btp.ErrPeerDisconnected)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := session.Receive(ctx)
	assert.ErrorIs(t, err, btp.ErrPeerDisconnected)

	require.Eventually(t, func() bool {
		_, ok := f.ble.Advertising()
		return ok && f.ble.Advertised() > advertised
	}, time.Second, 5*time.Millisecond)

	// A new commissioner can connect and talk.
	_, conn := dial(t, f.ble, btp.DefaultDialConfig())
	require.NoError(t, conn.Send(ctx, nil, []byte("again")))
	pkt, err := f.transport.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), pkt.Data)
}

func TestTransportSendWithoutSession(t *testing.T) {
	f := startTransport(t, 247, btp.DefaultWindow)
	err := f.transport.Send(context.Background(), btp.Addr{Conn: 9}, []byte{1})
	assert.ErrorIs(t, err, btp.ErrNoSession)
}

func TestTransportRejectsSecondCommissioner(t *testing.T) {
	f := startTransport(t, 247, btp.DefaultWindow)
	first, _ := dial(t, f.ble, btp.DefaultDialConfig())
	require.Eventually(t, func() bool { return f.transport.Conn() != nil }, time.Second, 5*time.Millisecond)

	// The peripheral stopped advertising, so a second central cannot attach.
	_, err := f.ble.Connect()
	assert.ErrorIs(t, err, hostsim.ErrNotAdvertising)
	assert.Equal(t, first.ID(), f.transport.Conn().RemoteAddr().Conn)
}

func TestTransportSequenceViolationDropsSession(t *testing.T) {
	f := startTransport(t, 247, btp.DefaultWindow)
	link, _ := dial(t, f.ble, btp.DefaultDialConfig())
	require.Eventually(t, func() bool { return f.transport.Conn() != nil }, time.Second, 5*time.Millisecond)
	session := f.transport.Conn()

	// Sequence 5 where 0 is expected.
	bad := btp.Fragment{Flags: btp.FlagBegin | btp.FlagEnd, Seq: 5, Length: 1, Payload: []byte{1}}
	data, err := bad.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, link.Write(context.Background(), data))

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not dropped")
	}
	assert.True(t, errors.Is(session.Err(), btp.ErrSequence))
}

func TestTransportRunStopsAdvertising(t *testing.T) {
	ble := hostsim.NewBLE(247)
	tr, err := btp.NewTransport(ble, btp.DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	require.Eventually(t, func() bool {
		_, ok := ble.Advertising()
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	_, ok := ble.Advertising()
	assert.False(t, ok)
}

func TestConfigValidate(t *testing.T) {
	cfg := btp.DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Window = 0
	assert.Error(t, cfg.Validate())

	cfg = btp.DefaultConfig()
	cfg.Advertisement.Discriminator = 0x1000
	assert.Error(t, cfg.Validate())
}
