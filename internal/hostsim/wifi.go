package hostsim

import (
	"bytes"
	"context"
	"net/netip"
	"sync"

	"github.com/mash-protocol/matter-stack/pkg/netcomm"
	"github.com/mash-protocol/matter-stack/pkg/netif"
)

// StationAddr is the address a WiFi station gets on association.
var StationAddr = netip.MustParseAddr("192.168.4.2")

type accessPoint struct {
	secret []byte
	result netcomm.ScanResult
}

// WiFi is an in-memory station driver. Association succeeds for access
// points added with AddNetwork when the secret matches.
type WiFi struct {
	link *Link

	mu          sync.Mutex
	aps         map[string]accessPoint
	order       []string
	fail        error
	connected   []byte
	connects    int
	disconnects int
}

var _ netcomm.Driver = (*WiFi)(nil)

// NewWiFi creates a station. A non-nil link reports association changes.
func NewWiFi(link *Link) *WiFi {
	return &WiFi{link: link, aps: make(map[string]accessPoint)}
}

// AddNetwork makes an access point visible.
func (w *WiFi) AddNetwork(ssid, secret string, rssi int8) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.aps[ssid]; !ok {
		w.order = append(w.order, ssid)
	}
	w.aps[ssid] = accessPoint{
		secret: []byte(secret),
		result: netcomm.ScanResult{
			Security: netcomm.SecurityWPA2Personal,
			SSID:     []byte(ssid),
			BSSID:    []byte{0x02, 0, 0, 0, 0, byte(len(w.order))},
			Channel:  6,
			RSSI:     rssi,
		},
	}
}

// FailConnects makes every association fail with err until called with nil.
func (w *WiFi) FailConnects(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = err
}

// Connected returns the SSID of the current association, or nil.
func (w *WiFi) Connected() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return bytes.Clone(w.connected)
}

// Connects counts association attempts.
func (w *WiFi) Connects() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connects
}

// Disconnects counts Disconnect calls.
func (w *WiFi) Disconnects() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disconnects
}

// DropAssociation simulates the access point going away.
func (w *WiFi) DropAssociation() {
	w.mu.Lock()
	was := w.connected != nil
	w.connected = nil
	w.mu.Unlock()
	if was && w.link != nil {
		w.link.Down()
	}
}

// Scan implements netcomm.Driver.
func (w *WiFi) Scan(ctx context.Context, ssid []byte) ([]netcomm.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []netcomm.ScanResult
	for _, name := range w.order {
		if len(ssid) > 0 && !bytes.Equal(ssid, []byte(name)) {
			continue
		}
		out = append(out, w.aps[name].result)
	}
	return out, nil
}

// Connect implements netcomm.Driver.
func (w *WiFi) Connect(ctx context.Context, creds netcomm.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	w.connects++
	if w.fail != nil {
		err := w.fail
		w.mu.Unlock()
		return err
	}
	ap, ok := w.aps[string(creds.SSID)]
	switch {
	case !ok:
		w.mu.Unlock()
		return netcomm.ErrNetworkNotFound
	case !bytes.Equal(ap.secret, creds.Credentials):
		w.mu.Unlock()
		return netcomm.ErrAuthFailure
	}
	w.connected = bytes.Clone(creds.SSID)
	w.mu.Unlock()

	if w.link != nil {
		w.link.Up(StationAddr)
	}
	return nil
}

// Disconnect implements netcomm.Driver.
func (w *WiFi) Disconnect() error {
	w.mu.Lock()
	w.disconnects++
	was := w.connected != nil
	w.connected = nil
	w.mu.Unlock()
	if was && w.link != nil {
		w.link.Down()
	}
	return nil
}

// Link is a host network interface. Its events feed a netif.Monitor.
type Link struct {
	events chan netif.Event
}

// NewLink creates a link with a buffered event channel.
func NewLink() *Link {
	return &Link{events: make(chan netif.Event, linkQueue)}
}

// Events returns the event channel for Peripherals.Netif.
func (l *Link) Events() <-chan netif.Event {
	return l.events
}

// Up reports the link up with the given addresses.
func (l *Link) Up(addrs ...netip.Addr) {
	l.events <- netif.Event{Kind: netif.LinkUp, Addrs: addrs}
}

// Down reports the link down.
func (l *Link) Down() {
	l.events <- netif.Event{Kind: netif.LinkDown}
}

// SetAddrs reports an address change.
func (l *Link) SetAddrs(addrs ...netip.Addr) {
	l.events <- netif.Event{Kind: netif.AddrsChanged, Addrs: addrs}
}
