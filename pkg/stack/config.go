package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/btp"
	"github.com/mash-protocol/matter-stack/pkg/connection"
	"github.com/mash-protocol/matter-stack/pkg/discovery"
	"github.com/mash-protocol/matter-stack/pkg/fabric"
	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/log"
	"github.com/mash-protocol/matter-stack/pkg/multicast"
	"github.com/mash-protocol/matter-stack/pkg/netcomm"
	"github.com/mash-protocol/matter-stack/pkg/netif"
	"github.com/mash-protocol/matter-stack/pkg/nvs"
	"github.com/mash-protocol/matter-stack/pkg/radio"
	"github.com/mash-protocol/matter-stack/pkg/window"
	"k8s.io/utils/clock"
)

// Defaults.
const (
	DefaultCommissioningAttempts = 3
	DefaultCommissioningTimeout  = window.DefaultTimeout
)

// DeviceInfo describes the product in advertisements and discovery.
type DeviceInfo struct {
	VendorID    uint16 `yaml:"vendor_id"`
	ProductID   uint16 `yaml:"product_id"`
	DeviceType  uint32 `yaml:"device_type"`
	DeviceName  string `yaml:"device_name"`
	PairingHint uint16 `yaml:"pairing_hint"`
}

// Config configures a Stack.
type Config struct {
	Device DeviceInfo `yaml:"device"`

	// CommissioningTimeout is the lifetime of one commissioning window.
	CommissioningTimeout time.Duration `yaml:"commissioning_timeout"`

	// CommissioningAttempts bounds the windows opened by Commission before
	// it gives up. Run re-advertises without bound.
	CommissioningAttempts int `yaml:"commissioning_attempts"`

	// Debounce is how long a link may be down before the device counts
	// the network as lost.
	Debounce time.Duration `yaml:"debounce"`

	// Reconnect paces re-association after a sustained loss.
	Reconnect connection.BackoffConfig `yaml:"reconnect"`

	NetComm    netcomm.Config `yaml:"netcomm"`
	MaxFabrics int            `yaml:"max_fabrics"`

	// BTPWindow is the receive window offered to BLE commissioners.
	BTPWindow uint8 `yaml:"btp_window"`

	Multicast multicast.Config         `yaml:"-"`
	Engine    interaction.EngineConfig `yaml:"-"`

	// App is an optional application loop run alongside the stack. Its
	// return ends Run.
	App func(ctx context.Context) error `yaml:"-"`

	// OnModeChange observes mode transitions. It runs with transitions
	// serialized and must not block.
	OnModeChange func(from, to Mode) `yaml:"-"`

	Logger         *slog.Logger `yaml:"-"`
	ProtocolLogger log.Logger   `yaml:"-"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		CommissioningTimeout:  DefaultCommissioningTimeout,
		CommissioningAttempts: DefaultCommissioningAttempts,
		Debounce:              netif.DefaultDebounce,
		Reconnect:             connection.DefaultBackoffConfig(),
		NetComm:               netcomm.DefaultConfig(),
		MaxFabrics:            fabric.DefaultMaxFabrics,
		BTPWindow:             btp.DefaultWindow,
		Multicast:             multicast.DefaultConfig(),
		Engine:                interaction.DefaultEngineConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CommissioningTimeout < window.MinTimeout || c.CommissioningTimeout > window.MaxTimeout {
		return fmt.Errorf("commissioning timeout %s: %w", c.CommissioningTimeout, window.ErrInvalidTimeout)
	}
	if c.CommissioningAttempts < 1 {
		return fmt.Errorf("commissioning attempts must be positive: %d", c.CommissioningAttempts)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive: %s", c.Debounce)
	}
	if c.BTPWindow == 0 {
		return errors.New("btp window must be positive")
	}
	if err := c.NetComm.Validate(); err != nil {
		return fmt.Errorf("netcomm: %w", err)
	}
	return nil
}

// Peripherals are the platform handles the stack drives. They are owned
// by the embedder and never constructed by the stack.
type Peripherals struct {
	// Clock drives every timer. Nil uses the real clock.
	Clock clock.WithTickerAndDelayedExecution

	// Storage is the flash partition holding the reserved namespace.
	Storage nvs.Partition

	// WiFi is the station driver. Nil selects the Ethernet variant, which
	// commissions over the IP network instead of BLE.
	WiFi netcomm.Driver

	// BLE is the GATT server used for commissioning. Required with WiFi.
	BLE btp.Peripheral

	// Netif delivers link status changes of the IP interface.
	Netif <-chan netif.Event

	// Listen opens the operational UDP socket. It is called again when the
	// interface addresses change.
	Listen func(ctx context.Context) (net.PacketConn, error)

	// Advertiser announces DNS-SD records.
	Advertiser discovery.Advertiser

	// Radios arbitrates BLE and WiFi. Nil creates an arbiter that allows
	// both at once only when NetComm.Concurrent is set.
	Radios *radio.Arbiter
}

// Validate checks that the required handles are present.
func (p Peripherals) Validate() error {
	switch {
	case p.Storage == nil:
		return errors.New("peripherals: storage is required")
	case p.Listen == nil:
		return errors.New("peripherals: listen is required")
	case p.Advertiser == nil:
		return errors.New("peripherals: advertiser is required")
	case p.WiFi != nil && p.BLE == nil:
		return errors.New("peripherals: wifi devices commission over ble")
	}
	return nil
}
