package multicast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/connection"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"k8s.io/utils/clock"
)

// Well-known groups joined by default.
var (
	MDNSGroupV4 = net.IPv4(224, 0, 0, 251)
	MDNSGroupV6 = net.ParseIP("ff02::fb")
)

// Defaults.
const (
	DefaultRejoinInterval = 30 * time.Second
	DefaultJoinAttempts   = 5
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("multicast conn closed")

// membership is the subset of ipv4.PacketConn / ipv6.PacketConn used here.
type membership interface {
	JoinGroup(ifi *net.Interface, group net.Addr) error
	LeaveGroup(ifi *net.Interface, group net.Addr) error
}

// Config configures a Conn.
type Config struct {
	// Groups to keep joined. Defaults to the mDNS groups.
	Groups []net.IP

	// Interface to join on; nil lets the kernel choose.
	Interface *net.Interface

	// RejoinInterval is the period of the background re-join.
	RejoinInterval time.Duration

	// JoinAttempts bounds the retries of a single join.
	JoinAttempts int

	Backoff connection.BackoffConfig
	Clock   clock.WithTicker
	Logger  *slog.Logger
}

// DefaultConfig returns a configuration joining the mDNS groups.
func DefaultConfig() Config {
	return Config{
		Groups:         []net.IP{MDNSGroupV4, MDNSGroupV6},
		RejoinInterval: DefaultRejoinInterval,
		JoinAttempts:   DefaultJoinAttempts,
		Backoff: connection.BackoffConfig{
			Initial: 100 * time.Millisecond,
			Max:     2 * time.Second,
		},
		Clock: clock.RealClock{},
	}
}

// Conn is a net.PacketConn that keeps its multicast groups joined.
type Conn struct {
	net.PacketConn

	cfg Config
	v4  membership
	v6  membership

	mu     sync.Mutex
	joined map[string]bool
	closed bool
}

// New wraps pc. Membership changes are applied through x/net for both
// address families; a family whose socket cannot carry it simply fails
// its joins and is retried on the next rejoin.
func New(pc net.PacketConn, cfg Config) *Conn {
	def := DefaultConfig()
	if len(cfg.Groups) == 0 {
		cfg.Groups = def.Groups
	}
	if cfg.RejoinInterval <= 0 {
		cfg.RejoinInterval = def.RejoinInterval
	}
	if cfg.JoinAttempts <= 0 {
		cfg.JoinAttempts = def.JoinAttempts
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	return &Conn{
		PacketConn: pc,
		cfg:        cfg,
		v4:         ipv4.NewPacketConn(pc),
		v6:         ipv6.NewPacketConn(pc),
		joined:     make(map[string]bool),
	}
}

func (c *Conn) membershipFor(group net.IP) membership {
	if group.To4() != nil {
		return c.v4
	}
	return c.v6
}

// Join joins every configured group, retrying each with backoff.
// Groups that still fail are reported together; the ones that succeeded
// stay joined.
func (c *Conn) Join(ctx context.Context) error {
	var errs []error
	for _, g := range c.cfg.Groups {
		if err := c.joinGroup(ctx, g); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("join %s: %w", g, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Conn) joinGroup(ctx context.Context, group net.IP) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	m := c.membershipFor(group)
	addr := &net.UDPAddr{IP: group}
	b := connection.NewBackoff(c.cfg.Backoff)

	err := connection.Retry(ctx, c.cfg.Clock, b, c.cfg.JoinAttempts, func(context.Context) error {
		return m.JoinGroup(c.cfg.Interface, addr)
	})

	c.mu.Lock()
	c.joined[group.String()] = err == nil
	c.mu.Unlock()

	if err != nil {
		c.warnLog("multicast join failed", "group", group, "error", err)
		return err
	}
	c.debugLog("multicast group joined", "group", group)
	return nil
}

// Rejoin leaves and re-joins every group. Call after the interface
// re-associates or its addresses change.
func (c *Conn) Rejoin(ctx context.Context) error {
	c.leaveAll()
	return c.Join(ctx)
}

// Joined reports whether group is currently believed joined.
func (c *Conn) Joined(group net.IP) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined[group.String()]
}

// Run re-joins all groups every RejoinInterval until ctx is done.
// Join failures are logged, not returned: the next tick retries them.
func (c *Conn) Run(ctx context.Context) error {
	ticker := c.cfg.Clock.NewTicker(c.cfg.RejoinInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := c.Rejoin(ctx); err != nil && ctx.Err() == nil {
				c.debugLog("periodic rejoin incomplete", "error", err)
			}
		}
	}
}

func (c *Conn) leaveAll() {
	for _, g := range c.cfg.Groups {
		// Leaving a group the stack already forgot fails harmlessly.
		_ = c.membershipFor(g).LeaveGroup(c.cfg.Interface, &net.UDPAddr{IP: g})
		c.mu.Lock()
		c.joined[g.String()] = false
		c.mu.Unlock()
	}
}

// Close leaves all groups and closes the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.leaveAll()
	return c.PacketConn.Close()
}

func (c *Conn) debugLog(msg string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debug(msg, args...)
	}
}

func (c *Conn) warnLog(msg string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Warn(msg, args...)
	}
}

var _ net.PacketConn = (*Conn)(nil)
