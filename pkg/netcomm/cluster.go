package netcomm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/nvs"
	"github.com/mash-protocol/matter-stack/pkg/wire"
)

// Config configures a Cluster.
type Config struct {
	MaxNetworks    int           `yaml:"max_networks"`
	MaxScanResults int           `yaml:"max_scan_results"`
	ScanTimeout    time.Duration `yaml:"scan_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// Concurrent is true when WiFi can associate while the commissioning
	// radio is active.
	Concurrent bool `yaml:"concurrent"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		MaxNetworks:    DefaultMaxNetworks,
		MaxScanResults: DefaultMaxScanResults,
		ScanTimeout:    ScanMaxTime,
		ConnectTimeout: ConnectMaxTime,
		Concurrent:     true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxNetworks < 1 || c.MaxNetworks > 255 {
		return fmt.Errorf("max networks out of range: %d", c.MaxNetworks)
	}
	if c.MaxScanResults < 1 {
		return fmt.Errorf("max scan results out of range: %d", c.MaxScanResults)
	}
	if c.ScanTimeout <= 0 || c.ScanTimeout > ScanMaxTime {
		return fmt.Errorf("scan timeout out of range: %s", c.ScanTimeout)
	}
	if c.ConnectTimeout <= 0 || c.ConnectTimeout > ConnectMaxTime {
		return fmt.Errorf("connect timeout out of range: %s", c.ConnectTimeout)
	}
	return nil
}

type lastStatus struct {
	status    Status
	networkID []byte
	value     *int32
}

// Cluster is the Network Commissioning cluster handler.
type Cluster struct {
	config Config
	store  *nvs.Store
	driver Driver
	logger *slog.Logger

	// exchange admits one command at a time.
	exchange chan struct{}
	requests chan []byte

	mu        sync.RWMutex
	armed     bool
	enabled   bool
	networks  []Credentials
	connected []byte
	last      *lastStatus

	onCommitted func(Credentials)
	onChange    func()
}

var _ interaction.Handler = (*Cluster)(nil)

// New creates the cluster. Previously committed credentials are loaded
// from store and appear as the first staged network.
func New(store *nvs.Store, driver Driver, cfg Config) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Cluster{
		config:   cfg,
		store:    store,
		driver:   driver,
		logger:   cfg.Logger,
		exchange: make(chan struct{}, 1),
		requests: make(chan []byte, 1),
		enabled:  true,
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCredentials returns the committed credentials, or ErrNoNetwork.
func LoadCredentials(store *nvs.Store) (Credentials, error) {
	creds, err := nvs.Load[Credentials](store, nvs.KeyWiFiCredentials)
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	if creds == nil || len(creds.SSID) == 0 {
		return Credentials{}, ErrNoNetwork
	}
	return *creds, nil
}

// Reload discards staged networks and re-reads the committed credentials.
func (c *Cluster) Reload() error {
	creds, err := LoadCredentials(c.store)
	if err != nil && !errors.Is(err, ErrNoNetwork) {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.networks, c.connected, c.last = nil, nil, nil
	if err == nil {
		c.networks = []Credentials{creds}
	}
	return nil
}

// Arm enables the configuration commands. The orchestrator arms the
// cluster only while commissioning.
func (c *Cluster) Arm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = true
}

// Disarm rejects configuration commands again.
func (c *Cluster) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = false
}

// Armed reports whether configuration commands are accepted.
func (c *Cluster) Armed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.armed
}

// OnCommitted sets a callback invoked after credentials were committed.
func (c *Cluster) OnCommitted(fn func(Credentials)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommitted = fn
}

// OnChange sets a callback invoked when an attribute changed.
func (c *Cluster) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Networks returns the staged networks in priority order.
func (c *Cluster) Networks() []Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.networks)
}

// ConnectRequested delivers the network id of a ConnectNetwork received
// in non-concurrent mode.
func (c *Cluster) ConnectRequested() <-chan []byte {
	return c.requests
}

// Connected returns the SSID of the associated network, or nil.
func (c *Cluster) Connected() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return bytes.Clone(c.connected)
}

// MarkDisconnected clears the connected flag of the Networks attribute.
func (c *Cluster) MarkDisconnected() {
	c.mu.Lock()
	c.connected = nil
	c.mu.Unlock()
	c.changed()
}

// Read implements interaction.Handler.
func (c *Cluster) Read(_ context.Context, path wire.Path) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch path.ID {
	case AttrMaxNetworks:
		return uint8(c.config.MaxNetworks), nil
	case AttrNetworks:
		out := make([]NetworkInfo, 0, len(c.networks))
		for _, n := range c.networks {
			out = append(out, NetworkInfo{
				NetworkID: n.SSID,
				Connected: c.connected != nil && bytes.Equal(c.connected, n.SSID),
			})
		}
		return out, nil
	case AttrScanMaxTimeSeconds:
		return uint8(c.config.ScanTimeout / time.Second), nil
	case AttrConnectMaxTimeSeconds:
		return uint8(c.config.ConnectTimeout / time.Second), nil
	case AttrInterfaceEnabled:
		return c.enabled, nil
	case AttrLastNetworkingStatus:
		if c.last == nil {
			return nil, nil
		}
		return c.last.status, nil
	case AttrLastNetworkID:
		if c.last == nil {
			return nil, nil
		}
		return c.last.networkID, nil
	case AttrLastConnectErrorValue:
		if c.last == nil || c.last.value == nil {
			return nil, nil
		}
		return *c.last.value, nil
	}
	return nil, interaction.NewStatus(wire.StatusUnsupportedAttribute)
}

// Write implements interaction.Handler. Only InterfaceEnabled is writable.
func (c *Cluster) Write(_ context.Context, path wire.Path, value cbor.RawMessage) error {
	if path.ID != AttrInterfaceEnabled {
		return interaction.NewStatus(wire.StatusUnsupportedWrite)
	}
	var enabled bool
	if err := wire.DecodePayload(value, &enabled); err != nil {
		return interaction.Errorf(wire.StatusConstraintError, "interface enabled: %v", err)
	}

	c.mu.Lock()
	was := c.enabled
	c.enabled = enabled
	c.mu.Unlock()

	if was && !enabled {
		if err := c.driver.Disconnect(); err != nil {
			c.debugLog("netcomm: disconnect failed", "error", err)
		}
		c.MarkDisconnected()
		return nil
	}
	c.changed()
	return nil
}

// Invoke implements interaction.Handler.
func (c *Cluster) Invoke(ctx context.Context, path wire.Path, args cbor.RawMessage) (any, error) {
	if !c.Armed() {
		return nil, interaction.NewStatus(wire.StatusFailsafeRequired)
	}

	select {
	case c.exchange <- struct{}{}:
		defer func() { <-c.exchange }()
	default:
		return nil, interaction.NewStatus(wire.StatusBusy)
	}

	switch path.ID {
	case CmdScanNetworks:
		var req ScanNetworksRequest
		if err := wire.DecodePayload(args, &req); err != nil {
			return nil, interaction.Errorf(wire.StatusInvalidCommand, "ScanNetworks: %v", err)
		}
		return c.scan(ctx, &req), nil

	case CmdAddOrUpdateWiFiNetwork:
		var req AddOrUpdateWiFiNetworkRequest
		if err := wire.DecodePayload(args, &req); err != nil {
			return nil, interaction.Errorf(wire.StatusInvalidCommand, "AddOrUpdateWiFiNetwork: %v", err)
		}
		return c.addOrUpdate(&req), nil

	case CmdRemoveNetwork:
		var req RemoveNetworkRequest
		if err := wire.DecodePayload(args, &req); err != nil {
			return nil, interaction.Errorf(wire.StatusInvalidCommand, "RemoveNetwork: %v", err)
		}
		return c.remove(&req), nil

	case CmdReorderNetwork:
		var req ReorderNetworkRequest
		if err := wire.DecodePayload(args, &req); err != nil {
			return nil, interaction.Errorf(wire.StatusInvalidCommand, "ReorderNetwork: %v", err)
		}
		return c.reorder(&req), nil

	case CmdConnectNetwork:
		var req ConnectNetworkRequest
		if err := wire.DecodePayload(args, &req); err != nil {
			return nil, interaction.Errorf(wire.StatusInvalidCommand, "ConnectNetwork: %v", err)
		}
		if c.config.Concurrent {
			resp, err := c.Join(ctx, req.NetworkID)
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
		return c.requestConnect(ctx, req.NetworkID)
	}
	return nil, interaction.NewStatus(wire.StatusUnsupportedCommand)
}

func (c *Cluster) scan(ctx context.Context, req *ScanNetworksRequest) *ScanNetworksResponse {
	if len(req.SSID) > MaxSSIDLen {
		return &ScanNetworksResponse{Status: StatusOutOfRange}
	}

	sctx, cancel := context.WithTimeout(ctx, c.config.ScanTimeout)
	defer cancel()

	results, err := c.driver.Scan(sctx, req.SSID)
	if err != nil {
		c.debugLog("netcomm: scan failed", "error", err)
		status, _ := statusFor(err)
		c.record(status, req.SSID, nil)
		return &ScanNetworksResponse{Status: status, DebugText: err.Error()}
	}
	if len(results) > c.config.MaxScanResults {
		results = results[:c.config.MaxScanResults]
	}
	c.debugLog("netcomm: scan complete", "results", len(results))
	return &ScanNetworksResponse{Status: StatusSuccess, Results: results}
}

func (c *Cluster) addOrUpdate(req *AddOrUpdateWiFiNetworkRequest) *NetworkConfigResponse {
	if err := ValidateCredentials(req.SSID, req.Credentials); err != nil {
		return &NetworkConfigResponse{Status: StatusOutOfRange, DebugText: err.Error()}
	}
	creds := Credentials{
		SSID:        bytes.Clone(req.SSID),
		Credentials: bytes.Clone(req.Credentials),
	}

	c.mu.Lock()
	i := c.indexLocked(req.SSID)
	switch {
	case i >= 0:
		c.networks[i] = creds
	case len(c.networks) >= c.config.MaxNetworks:
		c.mu.Unlock()
		return &NetworkConfigResponse{Status: StatusBoundsExceeded}
	default:
		c.networks = append(c.networks, creds)
		i = len(c.networks) - 1
	}
	c.mu.Unlock()

	c.debugLog("netcomm: network staged", "network", creds, "index", i)
	c.changed()
	return &NetworkConfigResponse{Status: StatusSuccess, NetworkIndex: index(i)}
}

func (c *Cluster) remove(req *RemoveNetworkRequest) *NetworkConfigResponse {
	c.mu.Lock()
	i := c.indexLocked(req.NetworkID)
	if i < 0 {
		c.mu.Unlock()
		return &NetworkConfigResponse{Status: StatusNetworkIDNotFound}
	}
	c.networks = slices.Delete(c.networks, i, i+1)
	c.mu.Unlock()

	c.changed()
	return &NetworkConfigResponse{Status: StatusSuccess, NetworkIndex: index(i)}
}

func (c *Cluster) reorder(req *ReorderNetworkRequest) *NetworkConfigResponse {
	c.mu.Lock()
	i := c.indexLocked(req.NetworkID)
	if i < 0 {
		c.mu.Unlock()
		return &NetworkConfigResponse{Status: StatusNetworkIDNotFound}
	}
	to := int(req.NetworkIndex)
	if to >= len(c.networks) {
		c.mu.Unlock()
		return &NetworkConfigResponse{Status: StatusOutOfRange, NetworkIndex: index(to)}
	}
	n := c.networks[i]
	c.networks = slices.Insert(slices.Delete(c.networks, i, i+1), to, n)
	c.mu.Unlock()

	c.changed()
	return &NetworkConfigResponse{Status: StatusSuccess, NetworkIndex: index(to)}
}

// requestConnect hands the request to the owner of the radio and waits
// for the exchange to be torn down along with the commissioning link.
func (c *Cluster) requestConnect(ctx context.Context, networkID []byte) (any, error) {
	c.mu.RLock()
	staged := c.indexLocked(networkID) >= 0
	c.mu.RUnlock()
	if !staged {
		c.record(StatusNetworkIDNotFound, networkID, nil)
		return &ConnectNetworkResponse{Status: StatusNetworkIDNotFound}, nil
	}

	select {
	case c.requests <- bytes.Clone(networkID):
	default:
		// A request is already pending.
	}
	c.debugLog("netcomm: connect requested", "ssid", string(networkID))

	<-ctx.Done()
	return nil, ctx.Err()
}

// Join associates with a staged network and commits its credentials on
// success. A failed association leaves the committed credentials as they
// were. The returned error is non-nil only when the commit itself failed
// or ctx ended.
func (c *Cluster) Join(ctx context.Context, networkID []byte) (*ConnectNetworkResponse, error) {
	c.mu.RLock()
	i := c.indexLocked(networkID)
	var creds Credentials
	if i >= 0 {
		creds = c.networks[i]
	}
	c.mu.RUnlock()

	if i < 0 {
		c.record(StatusNetworkIDNotFound, networkID, nil)
		return &ConnectNetworkResponse{Status: StatusNetworkIDNotFound}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	err := c.driver.Connect(cctx, creds)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		status, value := statusFor(err)
		c.debugLog("netcomm: connect failed", "network", creds, "status", status, "error", err)
		c.record(status, networkID, &value)
		return &ConnectNetworkResponse{Status: status, DebugText: err.Error(), ErrorValue: &value}, nil
	}

	if err := nvs.Save(c.store, nvs.KeyWiFiCredentials, &creds); err != nil {
		if derr := c.driver.Disconnect(); derr != nil {
			c.debugLog("netcomm: disconnect after failed commit", "error", derr)
		}
		c.record(StatusUnknownError, networkID, nil)
		return nil, fmt.Errorf("commit credentials: %w", err)
	}

	c.mu.Lock()
	c.connected = bytes.Clone(creds.SSID)
	c.last = &lastStatus{status: StatusSuccess, networkID: bytes.Clone(networkID)}
	fn := c.onCommitted
	c.mu.Unlock()

	c.debugLog("netcomm: credentials committed", "network", creds)
	c.changed()
	if fn != nil {
		fn(creds)
	}
	return &ConnectNetworkResponse{Status: StatusSuccess}, nil
}

func (c *Cluster) indexLocked(ssid []byte) int {
	return slices.IndexFunc(c.networks, func(n Credentials) bool {
		return bytes.Equal(n.SSID, ssid)
	})
}

func (c *Cluster) record(status Status, networkID []byte, value *int32) {
	c.mu.Lock()
	c.last = &lastStatus{status: status, networkID: bytes.Clone(networkID), value: value}
	c.mu.Unlock()
	c.changed()
}

func (c *Cluster) changed() {
	c.mu.RLock()
	fn := c.onChange
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Cluster) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func index(i int) *uint8 {
	v := uint8(i)
	return &v
}
