package stack_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mash-protocol/matter-stack/internal/hostsim"
	"github.com/mash-protocol/matter-stack/pkg/btp"
	"github.com/mash-protocol/matter-stack/pkg/connection"
	"github.com/mash-protocol/matter-stack/pkg/discovery"
	"github.com/mash-protocol/matter-stack/pkg/fabric"
	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/log"
	"github.com/mash-protocol/matter-stack/pkg/netcomm"
	"github.com/mash-protocol/matter-stack/pkg/nvs"
	"github.com/mash-protocol/matter-stack/pkg/radio"
	"github.com/mash-protocol/matter-stack/pkg/stack"
	"github.com/mash-protocol/matter-stack/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
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

func (c *captureLogger) states(entity log.StateEntity) []*log.StateChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*log.StateChangeEvent
	for _, ev := range c.events {
		if ev.StateChange != nil && ev.StateChange.Entity == entity {
			out = append(out, ev.StateChange)
		}
	}
	return out
}

func (c *captureLogger) errorCount(layer log.Layer) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Error != nil && ev.Layer == layer {
			n++
		}
	}
	return n
}

// linkConnected reports whether the station association was confirmed.
func (c *captureLogger) linkConnected() bool {
	for _, sc := range c.states(log.StateEntityLink) {
		if sc.NewState == "CONNECTED" {
			return true
		}
	}
	return false
}

// windowOpenings returns the trigger of every window opening.
func (c *captureLogger) windowOpenings() []string {
	var out []string
	for _, sc := range c.states(log.StateEntityWindow) {
		if sc.NewState == "OPEN" && sc.OldState == "CLOSED" {
			out = append(out, sc.Reason)
		}
	}
	return out
}

type modeRecorder struct {
	mu  sync.Mutex
	seq []stack.Mode
}

func (m *modeRecorder) observe(_, to stack.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq = append(m.seq, to)
}

func (m *modeRecorder) modes() []stack.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.seq)
}

func (m *modeRecorder) saw(mode stack.Mode) bool {
	return slices.Contains(m.modes(), mode)
}

type device struct {
	stack  *stack.Stack
	periph stack.Peripherals
	part   *nvs.MemoryPartition
	adv    *hostsim.Advertiser
	ble    *hostsim.BLE
	wifi   *hostsim.WiFi
	link   *hostsim.Link
	plog   *captureLogger
	modes  *modeRecorder
}

type deviceOptions struct {
	wifi   bool
	part   *nvs.MemoryPartition
	config func(*stack.Config)
	periph func(*stack.Peripherals)
}

func newDevice(t *testing.T, opts deviceOptions) *device {
	t.Helper()
	if opts.part == nil {
		opts.part = nvs.NewMemoryPartition()
	}
	d := &device{
		part:  opts.part,
		adv:   hostsim.NewAdvertiser(),
		link:  hostsim.NewLink(),
		plog:  &captureLogger{},
		modes: &modeRecorder{},
	}

	cfg := stack.DefaultConfig()
	cfg.Device = stack.DeviceInfo{VendorID: 0xFFF1, ProductID: 0x8000, DeviceType: 0x0100, DeviceName: "Test Light"}
	cfg.Debounce = 50 * time.Millisecond
	cfg.Reconnect = connection.BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2}
	cfg.ProtocolLogger = d.plog
	cfg.OnModeChange = d.modes.observe
	if opts.config != nil {
		opts.config(&cfg)
	}

	d.periph = stack.Peripherals{
		Storage:    d.part,
		Netif:      d.link.Events(),
		Listen:     hostsim.ListenUDP,
		Advertiser: d.adv,
	}
	if opts.wifi {
		d.ble = hostsim.NewBLE(247)
		d.wifi = hostsim.NewWiFi(d.link)
		d.periph.BLE = d.ble
		d.periph.WiFi = d.wifi
		t.Cleanup(func() { _ = d.ble.Close() })
	}
	if opts.periph != nil {
		opts.periph(&d.periph)
	}

	s, err := stack.New(cfg)
	require.NoError(t, err)
	d.stack = s
	return d
}

// run starts Run until the test ends.
func (d *device) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.stack.Run(ctx, d.periph, testData(), nil) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("Run did not return")
		}
	})
}

func (d *device) waitMode(t *testing.T, m stack.Mode) {
	t.Helper()
	require.Eventually(t, func() bool { return d.stack.Mode() == m }, waitFor, tick, "waiting for %s", m)
}

func (d *device) commissionable(t *testing.T) *discovery.Record {
	t.Helper()
	var rec *discovery.Record
	require.Eventually(t, func() bool {
		recs := d.adv.Records(discovery.ServiceTypeCommissionable)
		if len(recs) != 1 {
			return false
		}
		rec = recs[0]
		return true
	}, waitFor, tick)
	return rec
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// udpCommissioner reaches an Ethernet device through its commissionable
// record.
func udpCommissioner(t *testing.T, ctx context.Context, d *device) *interaction.Client {
	t.Helper()
	rec := d.commissionable(t)
	pc, err := hostsim.ListenUDP(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(rec.Port)}
	c := interaction.NewClient(interaction.NewPacketTransport("udp", pc), peer)
	c.SetTimeout(2 * time.Second)
	go func() { _ = c.Run(ctx) }()
	return c
}

// bleCommissioner opens a BTP session to a WiFi device.
func bleCommissioner(t *testing.T, ctx context.Context, d *device) *interaction.Client {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := d.ble.Advertising()
		return ok
	}, waitFor, tick)

	link, err := d.ble.Connect()
	require.NoError(t, err)
	conn, err := btp.Dial(ctx, link, btp.DefaultDialConfig())
	require.NoError(t, err)

	c := interaction.NewClient(conn, conn.RemoteAddr())
	c.SetTimeout(2 * time.Second)
	go func() { _ = c.Run(ctx) }()
	return c
}

func rootKey(t *testing.T) []byte {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	return key.PublicKey().Bytes()
}

func addNOC(t *testing.T, ctx context.Context, c *interaction.Client) {
	t.Helper()
	var resp fabric.NOCResponse
	err := c.Invoke(ctx, wire.Path{Cluster: fabric.OperationalCredentialsID, ID: fabric.CmdAddNOC}, &fabric.AddNOCRequest{
		NOC:              []byte{0x15, 0x30, 0x01},
		IPK:              make([]byte, 16),
		CaseAdminSubject: 0x1122,
		AdminVendorID:    0xFFF1,
		FabricID:         1,
		NodeID:           0x1234,
		RootPublicKey:    rootKey(t),
	}, &resp)
	require.NoError(t, err)
	require.Equal(t, fabric.NOCStatusOK, resp.Status)
}

func netcommPath(id uint32) wire.Path {
	return wire.Path{Cluster: netcomm.ClusterID, ID: id}
}

func addWiFi(t *testing.T, ctx context.Context, c *interaction.Client, ssid, secret string) {
	t.Helper()
	var resp netcomm.NetworkConfigResponse
	err := c.Invoke(ctx, netcommPath(netcomm.CmdAddOrUpdateWiFiNetwork), &netcomm.AddOrUpdateWiFiNetworkRequest{
		SSID:        []byte(ssid),
		Credentials: []byte(secret),
	}, &resp)
	require.NoError(t, err)
	require.Equal(t, netcomm.StatusSuccess, resp.Status)
}

func connectWiFi(ctx context.Context, c *interaction.Client, ssid string) (netcomm.ConnectNetworkResponse, error) {
	var resp netcomm.ConnectNetworkResponse
	err := c.Invoke(ctx, netcommPath(netcomm.CmdConnectNetwork), &netcomm.ConnectNetworkRequest{NetworkID: []byte(ssid)}, &resp)
	return resp, err
}

// commissionEthernet leaves part holding a commissioned Ethernet device.
func commissionEthernet(t *testing.T, part *nvs.MemoryPartition) *device {
	t.Helper()
	d := newDevice(t, deviceOptions{part: part})
	ctx := testContext(t)

	done := make(chan error, 1)
	go func() { done <- d.stack.Commission(ctx, d.periph, testData(), nil, 0) }()

	c := udpCommissioner(t, ctx, d)
	addNOC(t, ctx, c)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Commission did not return")
	}
	return d
}

func TestTakeOnce(t *testing.T) {
	s, err := stack.Take(stack.DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, stack.Uncommissioned, s.Mode())

	_, err = stack.Take(stack.DefaultConfig())
	assert.ErrorIs(t, err, stack.ErrTaken)
}

func TestUnboundStack(t *testing.T) {
	s, err := stack.New(stack.DefaultConfig())
	require.NoError(t, err)

	s.NotifyChanged()
	_, err = s.IsCommissioned()
	assert.ErrorIs(t, err, stack.ErrUnbound)
	assert.ErrorIs(t, s.FactoryReset(), stack.ErrUnbound)
	assert.Nil(t, s.Verifier())
}

func TestRunRejectsInvalidCommissioningData(t *testing.T) {
	d := newDevice(t, deviceOptions{})
	cd := testData()
	cd.Passcode = 11111111

	err := d.stack.Run(context.Background(), d.periph, cd, nil)
	assert.ErrorIs(t, err, discovery.ErrInvalidPasscode)
	_, err = d.stack.IsCommissioned()
	assert.ErrorIs(t, err, stack.ErrUnbound)
}

func TestRunDerivesVerifier(t *testing.T) {
	d := newDevice(t, deviceOptions{})
	d.run(t)
	d.waitMode(t, stack.Commissioning)

	want, err := testData().Verifier()
	require.NoError(t, err)
	assert.Equal(t, want, d.stack.Verifier())
}

func TestEthernetCommissioning(t *testing.T) {
	d := newDevice(t, deviceOptions{})
	d.run(t)
	d.waitMode(t, stack.Commissioning)

	rec := d.commissionable(t)
	assert.NotZero(t, rec.Port)
	assert.Equal(t, []string{"BOOT"}, d.plog.windowOpenings())

	ctx := testContext(t)
	c := udpCommissioner(t, ctx, d)
	addNOC(t, ctx, c)

	d.waitMode(t, stack.Operating)
	assert.Equal(t, []stack.Mode{stack.Commissioning, stack.Operating}, d.modes.modes())

	ok, err := d.stack.IsCommissioned()
	require.NoError(t, err)
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		return len(d.adv.Records(discovery.ServiceTypeOperational)) == 1 &&
			len(d.adv.Records(discovery.ServiceTypeCommissionable)) == 0
	}, waitFor, tick)
}

func TestWiFiCommissioningOverBLE(t *testing.T) {
	d := newDevice(t, deviceOptions{wifi: true})
	d.wifi.AddNetwork("home", "hunter22", -40)
	d.run(t)
	d.waitMode(t, stack.Commissioning)

	adv, ok := d.ble.Advertising()
	require.True(t, ok)
	assert.Equal(t, uint16(3840), adv.Discriminator)
	assert.Equal(t, uint16(0xFFF1), adv.VendorID)
	assert.Empty(t, d.adv.Records(discovery.ServiceTypeCommissionable), "ble devices are found over ble")

	ctx := testContext(t)
	c := bleCommissioner(t, ctx, d)
	addWiFi(t, ctx, c, "home", "hunter22")
	addNOC(t, ctx, c)
	assert.Equal(t, stack.Commissioning, d.stack.Mode(), "a fabric without a network is not enough")

	resp, err := connectWiFi(ctx, c, "home")
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusSuccess, resp.Status)

	d.waitMode(t, stack.Operating)
	assert.Equal(t, []byte("home"), d.wifi.Connected())

	ok, err = d.stack.IsCommissioned()
	require.NoError(t, err)
	assert.True(t, ok)

	creds, err := netcomm.LoadCredentials(nvs.NewStore(d.part, nil))
	require.NoError(t, err)
	assert.Equal(t, []byte("home"), creds.SSID)

	require.Eventually(t, func() bool {
		return len(d.adv.Records(discovery.ServiceTypeOperational)) == 1
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		_, advertising := d.ble.Advertising()
		return !advertising
	}, waitFor, tick)
}

func TestWiFiJoinFailureKeepsCommissioning(t *testing.T) {
	d := newDevice(t, deviceOptions{wifi: true})
	d.wifi.AddNetwork("home", "hunter22", -40)
	d.run(t)
	d.waitMode(t, stack.Commissioning)

	ctx := testContext(t)
	c := bleCommissioner(t, ctx, d)
	addNOC(t, ctx, c)
	addWiFi(t, ctx, c, "home", "wrong-secret")

	resp, err := connectWiFi(ctx, c, "home")
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusAuthFailure, resp.Status)
	assert.Nil(t, d.wifi.Connected())

	_, err = netcomm.LoadCredentials(nvs.NewStore(d.part, nil))
	assert.ErrorIs(t, err, netcomm.ErrNoNetwork)
	assert.Equal(t, stack.Commissioning, d.stack.Mode())

	// The commissioner corrects the secret on the same session.
	addWiFi(t, ctx, c, "home", "hunter22")
	resp, err = connectWiFi(ctx, c, "home")
	require.NoError(t, err)
	assert.Equal(t, netcomm.StatusSuccess, resp.Status)
	d.waitMode(t, stack.Operating)
}

func TestJoinBeforeFabricOpensOnNetworkCommissioning(t *testing.T) {
	d := newDevice(t, deviceOptions{wifi: true})
	d.wifi.AddNetwork("home", "hunter22", -40)
	d.run(t)
	d.waitMode(t, stack.Commissioning)
	assert.Empty(t, d.adv.Records(discovery.ServiceTypeCommissionable))

	ctx := testContext(t)
	ble := bleCommissioner(t, ctx, d)
	addWiFi(t, ctx, ble, "home", "hunter22")
	resp, err := connectWiFi(ctx, ble, "home")
	require.NoError(t, err)
	require.Equal(t, netcomm.StatusSuccess, resp.Status)
	assert.Equal(t, stack.Commissioning, d.stack.Mode())

	// The associated device is now reachable on the network as well.
	rec := d.commissionable(t)
	assert.NotZero(t, rec.Port)
	assert.Equal(t, "3840", rec.TXT[discovery.TXTKeyDiscriminator])

	ip := udpCommissioner(t, ctx, d)
	addNOC(t, ctx, ip)

	d.waitMode(t, stack.Operating)
	require.Eventually(t, func() bool {
		return len(d.adv.Records(discovery.ServiceTypeCommissionable)) == 0 &&
			len(d.adv.Records(discovery.ServiceTypeOperational)) == 1
	}, waitFor, tick)
}

func TestRadioHandoverWithoutCoexistence(t *testing.T) {
	radios := radio.NewArbiter(false)
	d := newDevice(t, deviceOptions{
		wifi:   true,
		config: func(c *stack.Config) { c.NetComm.Concurrent = false },
		periph: func(p *stack.Peripherals) { p.Radios = radios },
	})
	d.wifi.AddNetwork("home", "hunter22", -40)
	d.run(t)
	require.Eventually(t, func() bool { return radios.Owner(radio.BLE) == "btp" }, waitFor, tick)

	ctx := testContext(t)
	c := bleCommissioner(t, ctx, d)
	addWiFi(t, ctx, c, "home", "hunter22")
	addNOC(t, ctx, c)

	// The BLE pipe is torn down before the station associates, so the
	// answer may never arrive.
	go func() { _, _ = connectWiFi(ctx, c, "home") }()

	d.waitMode(t, stack.Operating)
	assert.Equal(t, []byte("home"), d.wifi.Connected())
	assert.Equal(t, "wifi", radios.Owner(radio.WiFi))
	assert.False(t, radios.Holds(radio.BLE))

	for _, sc := range d.plog.states(log.StateEntityRadio) {
		assert.NotEqual(t, "BLE,WIFI", sc.NewState, "both radios were held at once")
	}
}

func TestJoinBeforeFabricReopensWindowWithoutCoexistence(t *testing.T) {
	radios := radio.NewArbiter(false)
	d := newDevice(t, deviceOptions{
		wifi:   true,
		config: func(c *stack.Config) { c.NetComm.Concurrent = false },
		periph: func(p *stack.Peripherals) { p.Radios = radios },
	})
	d.wifi.AddNetwork("home", "hunter22", -40)
	d.run(t)
	require.Eventually(t, func() bool { return radios.Owner(radio.BLE) == "btp" }, waitFor, tick)

	ctx := testContext(t)
	c := bleCommissioner(t, ctx, d)
	addWiFi(t, ctx, c, "home", "hunter22")
	go func() { _, _ = connectWiFi(ctx, c, "home") }()

	// The station associates, but with no fabric the device must give the
	// radio back to a fresh commissioning window.
	require.Eventually(t, func() bool { return len(d.plog.windowOpenings()) == 2 }, waitFor, tick)
	require.Eventually(t, func() bool {
		return radios.Owner(radio.BLE) == "btp" && !radios.Holds(radio.WiFi)
	}, waitFor, tick)
	assert.Equal(t, 1, d.wifi.Connects())
	assert.Nil(t, d.wifi.Connected())
	assert.Equal(t, stack.Commissioning, d.stack.Mode())
	assert.Equal(t, []string{"BOOT", "READVERTISE"}, d.plog.windowOpenings())

	// A second commissioner finishes the job over BLE.
	c = bleCommissioner(t, ctx, d)
	addNOC(t, ctx, c)

	d.waitMode(t, stack.Operating)
	require.Eventually(t, func() bool { return string(d.wifi.Connected()) == "home" }, waitFor, tick)
	assert.False(t, radios.Holds(radio.BLE))
}

func TestCommissionGivesUpAfterAttempts(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	d := newDevice(t, deviceOptions{
		config: func(c *stack.Config) { c.CommissioningAttempts = 2 },
		periph: func(p *stack.Peripherals) { p.Clock = clk },
	})

	ctx := testContext(t)
	done := make(chan error, 1)
	go func() { done <- d.stack.Commission(ctx, d.periph, testData(), nil, 3*time.Minute) }()

	for i := 1; i <= 2; i++ {
		require.Eventually(t, func() bool { return len(d.plog.windowOpenings()) == i }, waitFor, tick)
		clk.Step(3 * time.Minute)
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, stack.ErrCommissioningTimeout)
	case <-time.After(waitFor):
		t.Fatal("Commission did not give up")
	}
	assert.Equal(t, []string{"BOOT", "READVERTISE"}, d.plog.windowOpenings())
	assert.Equal(t, stack.Commissioning, d.stack.Mode())
	assert.Empty(t, d.adv.Records(discovery.ServiceTypeCommissionable))
}

func TestRunReadvertisesWithoutBound(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	d := newDevice(t, deviceOptions{
		config: func(c *stack.Config) { c.CommissioningAttempts = 1 },
		periph: func(p *stack.Peripherals) { p.Clock = clk },
	})
	d.run(t)

	for i := 1; i <= 3; i++ {
		require.Eventually(t, func() bool { return len(d.plog.windowOpenings()) == i }, waitFor, tick)
		clk.Step(stack.DefaultCommissioningTimeout)
	}
	require.Eventually(t, func() bool { return len(d.plog.windowOpenings()) == 4 }, waitFor, tick)

	assert.Equal(t, []string{"BOOT", "READVERTISE", "READVERTISE", "READVERTISE"}, d.plog.windowOpenings())
	assert.Equal(t, stack.Commissioning, d.stack.Mode())
	assert.Equal(t, []stack.Mode{stack.Commissioning}, d.modes.modes())
	d.commissionable(t)
}

func TestCommissionEndsInOperatingModeWithoutServing(t *testing.T) {
	d := commissionEthernet(t, nvs.NewMemoryPartition())

	assert.Equal(t, stack.Operating, d.stack.Mode())
	assert.Equal(t, []stack.Mode{stack.Commissioning, stack.Operating}, d.modes.modes())
	assert.Empty(t, d.adv.Records(discovery.ServiceTypeCommissionable))
	assert.Empty(t, d.adv.Records(discovery.ServiceTypeOperational), "nothing is served until Operate")
}

func TestCommissionedDeviceBootsOperating(t *testing.T) {
	part := nvs.NewMemoryPartition()
	commissionEthernet(t, part)

	d := newDevice(t, deviceOptions{part: part})
	d.run(t)
	d.waitMode(t, stack.Operating)
	assert.Equal(t, []stack.Mode{stack.Operating}, d.modes.modes())

	require.Eventually(t, func() bool {
		return len(d.adv.Records(discovery.ServiceTypeOperational)) == 1
	}, waitFor, tick)
	assert.Empty(t, d.adv.Records(discovery.ServiceTypeCommissionable))
	assert.Empty(t, d.plog.windowOpenings())
}

func TestOperate(t *testing.T) {
	t.Run("not commissioned", func(t *testing.T) {
		d := newDevice(t, deviceOptions{})
		err := d.stack.Operate(context.Background(), d.periph, nil)
		assert.ErrorIs(t, err, stack.ErrNotCommissioned)
		assert.Equal(t, stack.Uncommissioned, d.stack.Mode())
	})

	t.Run("commissioned", func(t *testing.T) {
		part := nvs.NewMemoryPartition()
		commissionEthernet(t, part)

		d := newDevice(t, deviceOptions{part: part})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- d.stack.Operate(ctx, d.periph, nil) }()

		d.waitMode(t, stack.Operating)
		require.Eventually(t, func() bool {
			return len(d.adv.Records(discovery.ServiceTypeOperational)) == 1
		}, waitFor, tick)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Fatal("Operate did not return")
		}
	})
}

func TestSecondRunRejected(t *testing.T) {
	d := newDevice(t, deviceOptions{})
	d.run(t)
	d.waitMode(t, stack.Commissioning)

	err := d.stack.Run(context.Background(), d.periph, testData(), nil)
	assert.ErrorIs(t, err, stack.ErrRunning)
	err = d.stack.Commission(context.Background(), d.periph, testData(), nil, 0)
	assert.ErrorIs(t, err, stack.ErrRunning)
}

func TestAppEndsRun(t *testing.T) {
	errApp := errors.New("application failed")
	d := newDevice(t, deviceOptions{
		config: func(c *stack.Config) {
			c.App = func(ctx context.Context) error { return errApp }
		},
	})
	err := d.stack.Run(context.Background(), d.periph, testData(), nil)
	assert.ErrorIs(t, err, errApp)
}

func TestNetworkLossEthernet(t *testing.T) {
	part := nvs.NewMemoryPartition()
	commissionEthernet(t, part)

	d := newDevice(t, deviceOptions{part: part})
	d.run(t)
	d.waitMode(t, stack.Operating)
	d.link.Up(hostsim.StationAddr)
	require.Eventually(t, func() bool {
		return len(d.adv.Records(discovery.ServiceTypeOperational)) == 1
	}, waitFor, tick)

	d.link.Down()
	d.waitMode(t, stack.Reconnecting)
	require.Eventually(t, func() bool {
		return len(d.adv.Records(discovery.ServiceTypeOperational)) == 0
	}, waitFor, tick)

	ok, err := d.stack.IsCommissioned()
	require.NoError(t, err)
	assert.True(t, ok, "a lost network keeps the commissioned state")

	d.link.Up(hostsim.StationAddr)
	d.waitMode(t, stack.Operating)
	require.Eventually(t, func() bool {
		return len(d.adv.Records(discovery.ServiceTypeOperational)) == 1
	}, waitFor, tick)
	assert.Equal(t, []stack.Mode{stack.Operating, stack.Reconnecting, stack.Operating}, d.modes.modes())
}

func TestShortLinkDropIsDebounced(t *testing.T) {
	part := nvs.NewMemoryPartition()
	commissionEthernet(t, part)

	d := newDevice(t, deviceOptions{
		part:   part,
		config: func(c *stack.Config) { c.Debounce = 300 * time.Millisecond },
	})
	d.run(t)
	d.waitMode(t, stack.Operating)

	d.link.Up(hostsim.StationAddr)
	d.link.Down()
	d.link.Up(hostsim.StationAddr)

	require.Never(t, func() bool { return d.modes.saw(stack.Reconnecting) }, 600*time.Millisecond, tick)
	assert.Equal(t, stack.Operating, d.stack.Mode())
}

func TestWiFiReassociatesAfterLoss(t *testing.T) {
	d := newDevice(t, deviceOptions{wifi: true})
	d.wifi.AddNetwork("home", "hunter22", -40)
	d.run(t)

	ctx := testContext(t)
	c := bleCommissioner(t, ctx, d)
	addWiFi(t, ctx, c, "home", "hunter22")
	addNOC(t, ctx, c)
	_, err := connectWiFi(ctx, c, "home")
	require.NoError(t, err)
	d.waitMode(t, stack.Operating)
	// The operating loop re-associates on its own before the drop.
	require.Eventually(t, d.plog.linkConnected, waitFor, tick)
	before := d.wifi.Connects()

	d.wifi.DropAssociation()
	require.Eventually(t, func() bool { return d.modes.saw(stack.Reconnecting) }, waitFor, tick)
	d.waitMode(t, stack.Operating)

	assert.Greater(t, d.wifi.Connects(), before)
	assert.Equal(t, []byte("home"), d.wifi.Connected())
	assert.Equal(t,
		[]stack.Mode{stack.Commissioning, stack.Operating, stack.Reconnecting, stack.Operating},
		d.modes.modes())
}

func TestFactoryResetWhileRunning(t *testing.T) {
	d := newDevice(t, deviceOptions{})
	d.run(t)

	ctx := testContext(t)
	first := d.commissionable(t)
	c := udpCommissioner(t, ctx, d)
	addNOC(t, ctx, c)
	d.waitMode(t, stack.Operating)

	require.NoError(t, d.stack.FactoryReset())
	d.waitMode(t, stack.Commissioning)
	assert.Equal(t,
		[]stack.Mode{stack.Commissioning, stack.Operating, stack.Uncommissioned, stack.Commissioning},
		d.modes.modes())

	ok, err := d.stack.IsCommissioned()
	require.NoError(t, err)
	assert.False(t, ok)

	second := d.commissionable(t)
	assert.NotEqual(t, first.Instance, second.Instance, "a reset device gets a new instance name")
	assert.Empty(t, d.adv.Records(discovery.ServiceTypeOperational))
}

func TestFactoryResetWhileIdle(t *testing.T) {
	part := nvs.NewMemoryPartition()
	commissionEthernet(t, part)

	d := newDevice(t, deviceOptions{part: part})
	require.NoError(t, d.stack.Bind(d.periph, nil))
	ok, err := d.stack.IsCommissioned()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, d.stack.FactoryReset())
	ok, err = d.stack.IsCommissioned()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, stack.Uncommissioned, d.stack.Mode())

	err = d.stack.Operate(context.Background(), d.periph, nil)
	assert.ErrorIs(t, err, stack.ErrNotCommissioned)
}

func TestFactoryResetFailsWhenFlashFails(t *testing.T) {
	part := nvs.NewMemoryPartition()
	commissionEthernet(t, part)

	d := newDevice(t, deviceOptions{part: part})
	require.NoError(t, d.stack.Bind(d.periph, nil))

	flash := errors.New("flash worn out")
	part.FailWrites(flash)
	assert.ErrorIs(t, d.stack.FactoryReset(), flash)

	assert.Equal(t, 1, d.plog.errorCount(log.LayerStack))
}
