package multicast

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

// flakyMembership fails the first failJoins joins, then succeeds.
type flakyMembership struct {
	mu        sync.Mutex
	failJoins int
	joins     int
	leaves    int
}

func (f *flakyMembership) JoinGroup(*net.Interface, net.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	if f.joins <= f.failJoins {
		return errors.New("setsockopt: no such device")
	}
	return nil
}

func (f *flakyMembership) LeaveGroup(*net.Interface, net.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	return nil
}

func (f *flakyMembership) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joins, f.leaves
}

func newTestConn(t *testing.T, cfg Config, v4, v6 membership) *Conn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	c := New(pc, cfg)
	c.v4 = v4
	c.v6 = v6
	t.Cleanup(func() { c.Close() })
	return c
}

func fastBackoffConfig() Config {
	cfg := DefaultConfig()
	cfg.Backoff.Initial = time.Millisecond
	cfg.Backoff.Max = time.Millisecond
	return cfg
}

func TestJoinRetriesUntilSuccess(t *testing.T) {
	v4 := &flakyMembership{failJoins: 2}
	v6 := &flakyMembership{}
	c := newTestConn(t, fastBackoffConfig(), v4, v6)

	require.NoError(t, c.Join(context.Background()))

	joins, _ := v4.counts()
	assert.Equal(t, 3, joins)
	assert.True(t, c.Joined(MDNSGroupV4))
	assert.True(t, c.Joined(MDNSGroupV6))
}

func TestJoinReportsExhaustedGroups(t *testing.T) {
	v4 := &flakyMembership{}
	v6 := &flakyMembership{failJoins: 100}
	c := newTestConn(t, fastBackoffConfig(), v4, v6)

	err := c.Join(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ff02::fb")

	joins, _ := v6.counts()
	assert.Equal(t, DefaultJoinAttempts, joins)
	assert.True(t, c.Joined(MDNSGroupV4), "healthy group stays joined")
	assert.False(t, c.Joined(MDNSGroupV6))
}

func TestRunRejoinsPeriodically(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	cfg := fastBackoffConfig()
	cfg.Groups = []net.IP{MDNSGroupV4}
	cfg.Clock = fc

	v4 := &flakyMembership{}
	c := newTestConn(t, cfg, v4, &flakyMembership{})
	require.NoError(t, c.Join(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(DefaultRejoinInterval)

	require.Eventually(t, func() bool {
		joins, leaves := v4.counts()
		return joins == 2 && leaves == 1
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRejoinAfterSilentDrop(t *testing.T) {
	v4 := &flakyMembership{}
	c := newTestConn(t, fastBackoffConfig(), v4, &flakyMembership{})
	require.NoError(t, c.Join(context.Background()))

	require.NoError(t, c.Rejoin(context.Background()))
	joins, leaves := v4.counts()
	assert.Equal(t, 2, joins)
	assert.Equal(t, 1, leaves)
}

func TestPassThroughIO(t *testing.T) {
	c := newTestConn(t, fastBackoffConfig(), &flakyMembership{}, &flakyMembership{})

	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	_, err = c.WriteTo([]byte("ping"), peer.LocalAddr())
	require.NoError(t, err)

	buf := make([]byte, 16)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := peer.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestJoinAfterClose(t *testing.T) {
	c := newTestConn(t, fastBackoffConfig(), &flakyMembership{}, &flakyMembership{})
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Join(context.Background()), ErrClosed)
}
