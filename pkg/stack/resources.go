package stack

import (
	"context"
	"fmt"
	"strings"

	"github.com/mash-protocol/matter-stack/pkg/discovery"
	"github.com/mash-protocol/matter-stack/pkg/fabric"
	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/log"
	"github.com/mash-protocol/matter-stack/pkg/netcomm"
	"github.com/mash-protocol/matter-stack/pkg/nvs"
	"github.com/mash-protocol/matter-stack/pkg/radio"
	"github.com/mash-protocol/matter-stack/pkg/window"
	"k8s.io/utils/clock"
)

// Radio owners.
const (
	ownerBTP  = "btp"
	ownerWiFi = "wifi"
)

// resources are built once per Stack from the bound peripherals.
type resources struct {
	periph Peripherals
	clock  clock.WithTickerAndDelayedExecution

	store     *nvs.Store
	fabrics   *fabric.Table
	netcomm   *netcomm.Cluster
	wifi      *wifiDriver
	discovery *discovery.Manager
	window    *window.Window
	radios    *radio.Arbiter
	engine    *interaction.Engine

	// instance is the commissionable DNS-SD instance name.
	instance string

	// changed fires when credentials were committed or the fabric table
	// changed. timeouts fires when the commissioning window expired.
	changed  chan struct{}
	timeouts chan struct{}
}

func (s *Stack) newResources(p Peripherals, h interaction.Handler) (*resources, error) {
	r := &resources{
		periph:   p,
		clock:    p.Clock,
		radios:   p.Radios,
		changed:  make(chan struct{}, 1),
		timeouts: make(chan struct{}, 1),
	}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	if r.radios == nil {
		r.radios = radio.NewArbiter(s.config.NetComm.Concurrent)
	}

	r.store = nvs.NewStore(p.Storage, s.logger)
	fabrics, err := fabric.Open(r.store, s.config.MaxFabrics)
	if err != nil {
		return nil, fmt.Errorf("open fabrics: %w", err)
	}
	r.fabrics = fabrics
	r.fabrics.OnChange(func(int) { signal(r.changed) })

	instance, err := loadInstance(r.store)
	if err != nil {
		return nil, err
	}
	r.instance = instance

	if h == nil {
		h = interaction.Empty
	}
	h = interaction.NewChain(0, fabric.AccessControlID, fabric.NewAccessControl(fabrics), h)
	h = interaction.NewChain(0, fabric.OperationalCredentialsID, fabric.NewCredentials(fabrics), h)

	if p.WiFi != nil {
		r.wifi = &wifiDriver{Driver: p.WiFi, radios: r.radios}
		cfg := s.config.NetComm
		if cfg.Logger == nil {
			cfg.Logger = s.logger
		}
		r.netcomm, err = netcomm.New(r.store, r.wifi, cfg)
		if err != nil {
			return nil, fmt.Errorf("netcomm: %w", err)
		}
		r.netcomm.OnCommitted(func(netcomm.Credentials) { signal(r.changed) })
		h = interaction.NewChain(0, netcomm.ClusterID, r.netcomm, h)
	}

	engineCfg := s.config.Engine
	engineCfg.Clock = r.clock
	if engineCfg.Logger == nil {
		engineCfg.Logger = s.logger
	}
	if engineCfg.ProtocolLogger == nil {
		engineCfg.ProtocolLogger = s.config.ProtocolLogger
	}
	r.engine = interaction.NewEngine(h, engineCfg)
	if r.netcomm != nil {
		r.netcomm.OnChange(r.engine.NotifyChanged)
	}

	r.discovery = discovery.NewManager(p.Advertiser, s.logger)

	r.window = window.New(r.clock)
	r.window.OnTimeout(func() { signal(r.timeouts) })
	r.window.OnStateChange(func(oldState, newState window.State) {
		s.logEvent(log.StateChange(log.LayerStack, log.StateEntityWindow,
			oldState.String(), newState.String(), r.window.Trigger().String()))
	})

	r.radios.OnChange(func(held []radio.Radio) {
		names := make([]string, len(held))
		for i, h := range held {
			names[i] = h.String()
		}
		s.logEvent(log.StateChange(log.LayerStack, log.StateEntityRadio, "", strings.Join(names, ","), ""))
	})
	return r, nil
}

// drain discards signals left over from an earlier window.
func (r *resources) drain() {
	for _, ch := range []chan struct{}{r.changed, r.timeouts} {
		select {
		case <-ch:
		default:
		}
	}
}

// provisioned reports whether a commissioner left the device with
// everything it needs to operate.
func (r *resources) provisioned() bool {
	if r.fabrics.Count() == 0 {
		return false
	}
	if r.netcomm == nil {
		return true
	}
	_, err := netcomm.LoadCredentials(r.store)
	return err == nil
}

// loadInstance returns the persisted instance name, creating one on first
// use.
func loadInstance(store *nvs.Store) (string, error) {
	meta, err := nvs.Load[discovery.Metadata](store, nvs.KeyDiscovery)
	if err != nil {
		return "", fmt.Errorf("load discovery metadata: %w", err)
	}
	if meta != nil && meta.Instance != "" {
		return meta.Instance, nil
	}
	meta = &discovery.Metadata{Instance: discovery.NewInstanceName()}
	if err := nvs.Save(store, nvs.KeyDiscovery, meta); err != nil {
		return "", fmt.Errorf("save discovery metadata: %w", err)
	}
	return meta.Instance, nil
}

// wifiDriver holds the WiFi radio claim for as long as the station is
// associated.
type wifiDriver struct {
	netcomm.Driver
	radios *radio.Arbiter
}

var _ netcomm.Driver = (*wifiDriver)(nil)

func (d *wifiDriver) Connect(ctx context.Context, creds netcomm.Credentials) error {
	if err := d.radios.Claim(radio.WiFi, ownerWiFi); err != nil {
		return err
	}
	if err := d.Driver.Connect(ctx, creds); err != nil {
		_ = d.radios.Release(radio.WiFi, ownerWiFi)
		return err
	}
	return nil
}

func (d *wifiDriver) Disconnect() error {
	err := d.Driver.Disconnect()
	if d.radios.Owner(radio.WiFi) == ownerWiFi {
		_ = d.radios.Release(radio.WiFi, ownerWiFi)
	}
	return err
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
