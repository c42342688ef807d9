package stack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/btp"
	"github.com/mash-protocol/matter-stack/pkg/discovery"
	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/log"
	"github.com/mash-protocol/matter-stack/pkg/netcomm"
	"github.com/mash-protocol/matter-stack/pkg/nvs"
	"github.com/mash-protocol/matter-stack/pkg/radio"
	"github.com/mash-protocol/matter-stack/pkg/window"
)

// outcome is how one commissioning window ended.
type outcome uint8

const (
	outcomeComplete outcome = iota
	outcomeTimeout

	// outcomeConnect is a ConnectNetwork that needs the radio the
	// commissioning pipe holds.
	outcomeConnect
)

// commission opens windows until the device is provisioned. attempts
// bounds the windows opened; zero re-advertises forever.
func (s *Stack) commission(ctx context.Context, r *resources, cd CommissioningData, attempts int, timeout time.Duration) error {
	if err := r.window.SetTimeout(timeout); err != nil {
		return err
	}
	r.window.ResetOpenings()

	trigger := window.TriggerBoot
	for {
		out, networkID, err := s.commissionWindow(ctx, r, cd, trigger)
		if err != nil {
			return err
		}
		trigger = window.TriggerReadvertise

		switch out {
		case outcomeTimeout:
			s.post(Event{Kind: EventCommissioningTimeout})
			if attempts > 0 && r.window.Openings() >= attempts {
				return ErrCommissioningTimeout
			}
			s.debugLog("stack: re-advertising", "openings", r.window.Openings())
			continue

		case outcomeConnect:
			resp, err := r.netcomm.Join(ctx, networkID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logEvent(log.Error(log.LayerStack, "commit credentials", err))
				continue
			}
			if resp.Status != netcomm.StatusSuccess {
				s.debugLog("stack: network join failed", "status", resp.Status)
				continue
			}
			if !r.provisioned() {
				s.debugLog("stack: joined without a fabric, reopening window")
				s.leaveNetwork(r)
				continue
			}
		}

		if err := r.store.Set(nvs.KeyCommissioned, []byte{1}); err != nil {
			s.logEvent(log.Error(log.LayerStack, "commissioned marker", err))
			s.leaveNetwork(r)
			continue
		}
		s.post(Event{Kind: EventCommissioningComplete})
		return nil
	}
}

// leaveNetwork drops an association made during commissioning so the
// next window can claim the commissioning radio.
func (s *Stack) leaveNetwork(r *resources) {
	if r.wifi == nil {
		return
	}
	if err := r.wifi.Disconnect(); err != nil {
		s.debugLog("stack: wifi disconnect", "error", err)
	}
	r.netcomm.MarkDisconnected()
}

// commissionWindow serves one window. The commissioning pipe is torn down
// before it returns.
func (s *Stack) commissionWindow(ctx context.Context, r *resources, cd CommissioningData, trigger window.Trigger) (outcome, []byte, error) {
	p, err := s.openPipe(ctx, r, cd)
	if err != nil {
		return 0, nil, err
	}
	defer p.close()

	r.drain()
	if r.netcomm != nil {
		r.netcomm.Arm()
		defer r.netcomm.Disarm()
	}
	r.window.Open(trigger)
	defer r.window.Close()

	if p.port != 0 {
		if err := s.publishCommissionable(ctx, r, cd, p.port); err != nil {
			s.warnLog("stack: commissionable record not published", "error", err)
		}
		defer func() {
			if err := r.discovery.Withdraw(discovery.ServiceTypeCommissionable); err != nil {
				s.debugLog("stack: withdraw commissionable", "error", err)
			}
		}()
	}

	pctx, pcancel := context.WithCancel(ctx)
	sctx, scancel := context.WithCancel(ctx)
	var pipeErr, serveErr error
	pipeDone, serveDone := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(pipeDone)
		pipeErr = p.run(pctx)
	}()
	go func() {
		defer close(serveDone)
		serveErr = r.engine.Serve(sctx, p.transport)
	}()
	defer func() {
		scancel()
		<-serveDone
		pcancel()
		<-pipeDone
	}()

	var connects <-chan []byte
	if r.netcomm != nil {
		connects = r.netcomm.ConnectRequested()
	}
	var stopOnNetwork func()

	for {
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()

		case <-s.resets:
			return 0, nil, errFactoryReset

		case <-pipeDone:
			if pipeErr == nil {
				pipeErr = interaction.ErrTransportClosed
			}
			return 0, nil, fmt.Errorf("commissioning pipe: %w", pipeErr)

		case <-serveDone:
			if serveErr == nil {
				serveErr = interaction.ErrTransportClosed
			}
			return 0, nil, fmt.Errorf("commissioning: %w", serveErr)

		case <-r.timeouts:
			s.debugLog("stack: commissioning window expired", "trigger", trigger)
			return outcomeTimeout, nil, nil

		case id := <-connects:
			s.debugLog("stack: connect requested, releasing commissioning radio", "network", string(id))
			return outcomeConnect, id, nil

		case <-r.changed:
			if r.provisioned() {
				p.end(r, true)
				return outcomeComplete, nil, nil
			}
			if stopOnNetwork == nil && s.associatedDuringWindow(r, p) {
				stopOnNetwork = s.serveOnNetwork(sctx, r, cd)
				defer stopOnNetwork()
			}
		}
	}
}

// associatedDuringWindow reports whether a BLE window joined the network
// before any fabric was added. Only radios that coexist get here.
func (s *Stack) associatedDuringWindow(r *resources, p *pipe) bool {
	return p.port == 0 && r.netcomm != nil && r.radios.Coexist() && r.netcomm.Connected() != nil
}

// serveOnNetwork opens a second pipe on the IP network next to the BLE one
// and publishes the commissionable record for it. The returned func tears
// both down.
func (s *Stack) serveOnNetwork(ctx context.Context, r *resources, cd CommissioningData) func() {
	ip, err := s.udpPipe(ctx, r)
	if err != nil {
		s.warnLog("stack: on-network commissioning unavailable", "error", err)
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.engine.Serve(ctx, ip.transport); err != nil && ctx.Err() == nil {
			s.debugLog("stack: on-network commissioning ended", "error", err)
		}
	}()

	if err := s.publishCommissionable(ctx, r, cd, ip.port); err != nil {
		s.warnLog("stack: commissionable record not published", "error", err)
	}
	s.debugLog("stack: commissioning on the network too", "port", ip.port)

	return func() {
		if err := r.discovery.Withdraw(discovery.ServiceTypeCommissionable); err != nil {
			s.debugLog("stack: withdraw commissionable", "error", err)
		}
		cancel()
		ip.close()
		<-done
	}
}

// pipe is the transport a commissioner reaches the device over.
type pipe struct {
	transport interaction.Transport
	run       func(ctx context.Context) error
	close     func()

	// port is the UDP port of an on-network pipe, zero for BLE.
	port uint16

	mu      sync.Mutex
	session string
}

// begin and end track the commissioner attached to the window.
func (p *pipe) begin(r *resources) {
	id, err := r.window.Begin()
	if err != nil {
		return
	}
	p.mu.Lock()
	p.session = id
	p.mu.Unlock()
}

func (p *pipe) end(r *resources, success bool) {
	p.mu.Lock()
	id := p.session
	p.session = ""
	p.mu.Unlock()
	if id != "" {
		_ = r.window.End(id, success)
	}
}

func (s *Stack) openPipe(ctx context.Context, r *resources, cd CommissioningData) (*pipe, error) {
	if r.periph.BLE == nil {
		return s.udpPipe(ctx, r)
	}
	return s.blePipe(r, cd)
}

// blePipe advertises over BLE while it holds the BLE radio.
func (s *Stack) blePipe(r *resources, cd CommissioningData) (*pipe, error) {
	if err := r.radios.Claim(radio.BLE, ownerBTP); err != nil {
		return nil, err
	}

	cfg := btp.DefaultConfig()
	cfg.Advertisement = btp.Advertisement{
		Discriminator: cd.Discriminator,
		VendorID:      s.config.Device.VendorID,
		ProductID:     s.config.Device.ProductID,
	}
	cfg.Window = s.config.BTPWindow
	cfg.Logger = s.logger
	cfg.ProtocolLogger = s.config.ProtocolLogger
	tr, err := btp.NewTransport(r.periph.BLE, cfg)
	if err != nil {
		_ = r.radios.Release(radio.BLE, ownerBTP)
		return nil, err
	}

	p := &pipe{transport: tr, run: tr.Run}
	p.close = func() {
		_ = tr.Close()
		if err := r.radios.Release(radio.BLE, ownerBTP); err != nil && !errors.Is(err, radio.ErrNotOwner) {
			s.debugLog("stack: release ble", "error", err)
		}
	}
	tr.OnConnect(func(*btp.Conn) { p.begin(r) })
	tr.OnDisconnect(func(_ *btp.Conn, reason error) {
		r.engine.DropSubscriptions(tr.Name())
		p.end(r, false)
		s.debugLog("stack: commissioner left", "reason", reason)
	})
	return p, nil
}

// udpPipe serves commissioning on the IP network for devices without a
// WiFi radio.
func (s *Stack) udpPipe(ctx context.Context, r *resources) (*pipe, error) {
	pc, err := r.periph.Listen(ctx)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	tr := interaction.NewPacketTransport("udp", pc)
	return &pipe{
		transport: tr,
		run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
		close: func() { _ = tr.Close() },
		port:  portOf(pc.LocalAddr()),
	}, nil
}

func portOf(addr net.Addr) uint16 {
	if a, ok := addr.(*net.UDPAddr); ok {
		return uint16(a.Port)
	}
	return 0
}
