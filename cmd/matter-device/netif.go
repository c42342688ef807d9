package main

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/netif"
)

// pollInterval is how often host interfaces are sampled.
const pollInterval = time.Second

// linkSample is one observation of the watched interfaces.
type linkSample struct {
	up    bool
	addrs []netip.Addr
}

// interfaceSampler reads the current interface state.
type interfaceSampler func() (linkSample, error)

// hostSampler samples the named interface, or every non-loopback
// interface when name is empty.
func hostSampler(name string) interfaceSampler {
	return func() (linkSample, error) {
		var ifaces []net.Interface
		if name != "" {
			iface, err := net.InterfaceByName(name)
			if err != nil {
				return linkSample{}, err
			}
			ifaces = []net.Interface{*iface}
		} else {
			all, err := net.Interfaces()
			if err != nil {
				return linkSample{}, err
			}
			ifaces = all
		}

		var s linkSample
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, a := range addrs {
				prefix, ok := a.(*net.IPNet)
				if !ok {
					continue
				}
				if ip, ok := netip.AddrFromSlice(prefix.IP); ok && !ip.IsLinkLocalUnicast() {
					s.addrs = append(s.addrs, ip.Unmap())
				}
			}
		}
		slices.SortFunc(s.addrs, func(a, b netip.Addr) int { return a.Compare(b) })
		s.up = len(s.addrs) > 0
		return s, nil
	}
}

// watchInterfaces polls sample and emits link events on changes until ctx
// is done. The first sample is always reported.
func watchInterfaces(ctx context.Context, sample interfaceSampler, interval time.Duration) <-chan netif.Event {
	events := make(chan netif.Event, 8)
	go func() {
		defer close(events)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last *linkSample
		for {
			if s, err := sample(); err == nil {
				for _, ev := range diffSamples(last, s) {
					select {
					case events <- ev:
					case <-ctx.Done():
						return
					}
				}
				last = &s
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return events
}

// diffSamples returns the events that move prev to next.
func diffSamples(prev *linkSample, next linkSample) []netif.Event {
	switch {
	case prev == nil || prev.up != next.up:
		if next.up {
			return []netif.Event{{Kind: netif.LinkUp, Addrs: next.addrs}}
		}
		return []netif.Event{{Kind: netif.LinkDown}}
	case next.up && !slices.Equal(prev.addrs, next.addrs):
		return []netif.Event{{Kind: netif.AddrsChanged, Addrs: next.addrs}}
	}
	return nil
}
