package stack

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/connection"
	"github.com/mash-protocol/matter-stack/pkg/discovery"
	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/log"
	"github.com/mash-protocol/matter-stack/pkg/multicast"
	"github.com/mash-protocol/matter-stack/pkg/netcomm"
	"github.com/mash-protocol/matter-stack/pkg/netif"
)

// errRebind restarts the operational socket after an address change.
var errRebind = errors.New("interface addresses changed")

// operateSignals connect the connectivity callbacks to the serving loop.
type operateSignals struct {
	rebind     chan struct{}
	rejoin     chan struct{}
	reannounce chan struct{}
}

// linkReturned asks for the multicast groups to be joined again and the
// DNS-SD records to be announced on fresh responders.
func (sig *operateSignals) linkReturned() {
	signal(sig.rejoin)
	signal(sig.reannounce)
}

// operate serves the protocol over the IP network until ctx ends or a
// factory reset is requested.
func (s *Stack) operate(ctx context.Context, r *resources) error {
	var creds netcomm.Credentials
	if r.wifi != nil {
		c, err := netcomm.LoadCredentials(r.store)
		if err != nil {
			return fmt.Errorf("operate: %w", err)
		}
		creds = c
		defer func() {
			if err := r.wifi.Disconnect(); err != nil {
				s.debugLog("stack: wifi disconnect", "error", err)
			}
		}()
	}
	defer r.engine.Resume()

	sig := &operateSignals{
		rebind:     make(chan struct{}, 1),
		rejoin:     make(chan struct{}, 1),
		reannounce: make(chan struct{}, 1),
	}

	mgr := connection.NewManager(func(ctx context.Context) error {
		if r.wifi == nil {
			return nil
		}
		return r.wifi.Connect(ctx, creds)
	}, connection.ManagerConfig{
		Backoff:        s.config.Reconnect,
		AttemptTimeout: s.config.NetComm.ConnectTimeout,
		Clock:          r.clock,
	})
	mgr.OnStateChange(func(oldState, newState connection.State) {
		s.logEvent(log.StateChange(log.LayerStack, log.StateEntityLink, oldState.String(), newState.String(), ""))
		if newState == connection.StateConnected {
			s.networkUp(r)
			sig.linkReturned()
		}
	})
	mgr.OnReconnecting(func(attempt int, delay time.Duration) {
		s.debugLog("stack: reconnecting", "attempt", attempt, "delay", delay)
	})

	var monitor task
	if r.periph.Netif != nil {
		m := netif.NewMonitor(netif.Config{
			Debounce: s.config.Debounce,
			Clock:    r.clock,
			Logger:   s.logger,
		}, netif.Handlers{
			Pause: r.engine.Pause,
			Resume: func() {
				r.engine.Resume()
				sig.linkReturned()
			},
			Lost: func() {
				s.networkDown(r)
				if r.wifi != nil {
					mgr.NotifyConnectionLost()
				}
			},
			Restored: func() {
				if r.wifi != nil {
					mgr.MarkConnected()
				} else {
					s.networkUp(r)
				}
				sig.linkReturned()
			},
			AddrsChanged: func([]netip.Addr) { signal(sig.rebind) },
		})
		monitor = func(ctx context.Context) error {
			if err := m.Run(ctx, r.periph.Netif); err != nil {
				return err
			}
			// The platform stopped reporting; keep the last known state.
			<-ctx.Done()
			return nil
		}
	}

	connect := func(ctx context.Context) error {
		if err := mgr.Connect(ctx); err != nil && ctx.Err() == nil {
			s.debugLog("stack: network join failed", "error", err)
			s.networkDown(r)
			mgr.NotifyConnectionLost()
		}
		<-ctx.Done()
		return nil
	}

	serve := func(ctx context.Context) error {
		for {
			err := s.serveIP(ctx, r, sig)
			if !errors.Is(err, errRebind) {
				return err
			}
			s.debugLog("stack: rebinding operational socket")
		}
	}

	watchReset := func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return nil
		case <-s.resets:
			return errFactoryReset
		}
	}

	return race(ctx, monitor, mgr.Run, connect, serve, watchReset)
}

// serveIP serves one operational socket until the addresses change.
func (s *Stack) serveIP(ctx context.Context, r *resources, sig *operateSignals) error {
	pc, err := r.periph.Listen(ctx)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	cfg := s.config.Multicast
	cfg.Clock = r.clock
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}
	mc := multicast.New(pc, cfg)
	defer mc.Close()

	port := portOf(pc.LocalAddr())
	s.publishOperational(ctx, r, port)

	return race(ctx,
		func(ctx context.Context) error {
			return r.engine.Serve(ctx, interaction.NewPacketTransport("udp", mc))
		},
		mc.Run,
		func(ctx context.Context) error {
			if err := mc.Join(ctx); err != nil && ctx.Err() == nil {
				s.warnLog("stack: multicast join incomplete", "error", err)
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-sig.rejoin:
					if err := mc.Rejoin(ctx); err != nil && ctx.Err() == nil {
						s.warnLog("stack: multicast rejoin incomplete", "error", err)
					}
				}
			}
		},
		func(ctx context.Context) error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-sig.rebind:
					return errRebind
				case <-r.changed:
					s.publishOperational(ctx, r, port)
				case <-sig.reannounce:
					if err := r.discovery.Reannounce(ctx); err != nil && ctx.Err() == nil {
						s.warnLog("stack: reannounce incomplete", "error", err)
					}
				}
			}
		},
	)
}

// networkDown runs when the loss of the link outlasted the debounce
// window. Sessions and subscriptions are kept.
func (s *Stack) networkDown(r *resources) {
	s.post(Event{Kind: EventNetworkDown})
	r.engine.Pause()
	if err := r.discovery.Withdraw(discovery.ServiceTypeOperational); err != nil {
		s.debugLog("stack: withdraw operational", "error", err)
	}
	if r.netcomm != nil {
		r.netcomm.MarkDisconnected()
	}
}

func (s *Stack) networkUp(r *resources) {
	s.post(Event{Kind: EventNetworkUp})
	r.engine.Resume()
	signal(r.changed)
}
