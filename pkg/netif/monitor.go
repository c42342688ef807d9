// Package netif tracks IP connectivity and filters link flapping.
//
// The Monitor consumes raw link events from the platform. A loss that is
// followed by recovery within the debounce window only pauses and resumes
// outbound traffic; a loss that outlasts the window is reported as lost.
package netif

import (
	"context"
	"log/slog"
	"net/netip"
	"slices"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultDebounce is the grace period before a link loss is sustained.
const DefaultDebounce = 3 * time.Second

// EventKind is the kind of a raw link event.
type EventKind uint8

const (
	LinkUp EventKind = iota
	LinkDown
	AddrsChanged
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case LinkUp:
		return "LINK_UP"
	case LinkDown:
		return "LINK_DOWN"
	case AddrsChanged:
		return "ADDRS_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// Event is a raw link event from the platform.
type Event struct {
	Kind  EventKind
	Addrs []netip.Addr
}

// State is the debounced connectivity state.
type State uint8

const (
	StateDown State = iota
	StateUp
	StateDebouncing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDown:
		return "DOWN"
	case StateUp:
		return "UP"
	case StateDebouncing:
		return "DEBOUNCING"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Monitor.
type Config struct {
	Debounce time.Duration              `yaml:"debounce"`
	Clock    clock.WithDelayedExecution `yaml:"-"`
	Logger   *slog.Logger               `yaml:"-"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{Debounce: DefaultDebounce}
}

// Handlers receive debounced connectivity changes. Nil fields are skipped.
type Handlers struct {
	// Pause is called when the link drops; outbound traffic should hold.
	Pause func()

	// Resume is called when the link returns within the debounce window.
	Resume func()

	// Lost is called when the loss outlasted the debounce window.
	Lost func()

	// Restored is called when the link comes up from StateDown.
	Restored func()

	// AddrsChanged is called with the new address set.
	AddrsChanged func(addrs []netip.Addr)
}

// Monitor debounces link events.
type Monitor struct {
	mu sync.Mutex

	debounce time.Duration
	clock    clock.WithDelayedExecution
	logger   *slog.Logger
	handlers Handlers

	state State
	addrs []netip.Addr
	timer clock.Timer
	epoch uint64
}

// NewMonitor creates a monitor in StateDown.
func NewMonitor(cfg Config, h Handlers) *Monitor {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	return &Monitor{
		debounce: cfg.Debounce,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		handlers: h,
		state:    StateDown,
	}
}

// State returns the debounced state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Addrs returns the last reported address set.
func (m *Monitor) Addrs() []netip.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.addrs)
}

// Run feeds events into the monitor until ctx is done or events closes.
func (m *Monitor) Run(ctx context.Context, events <-chan Event) error {
	defer m.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.Handle(ev)
		}
	}
}

// Handle processes one raw event.
func (m *Monitor) Handle(ev Event) {
	switch ev.Kind {
	case LinkUp:
		m.up(ev.Addrs)
	case LinkDown:
		m.down()
	case AddrsChanged:
		m.setAddrs(ev.Addrs)
	}
}

// Stop cancels a pending debounce timer.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

func (m *Monitor) up(addrs []netip.Addr) {
	m.mu.Lock()
	prev := m.state
	m.stopTimerLocked()
	m.state = StateUp
	m.mu.Unlock()

	m.debugLog("netif: link up", "from", prev)
	switch prev {
	case StateDebouncing:
		call(m.handlers.Resume)
	case StateDown:
		call(m.handlers.Restored)
	}
	if addrs != nil {
		m.setAddrs(addrs)
	}
}

func (m *Monitor) down() {
	m.mu.Lock()
	if m.state != StateUp {
		m.mu.Unlock()
		return
	}
	m.state = StateDebouncing
	m.epoch++
	epoch := m.epoch
	m.timer = m.clock.AfterFunc(m.debounce, func() { m.expire(epoch) })
	m.mu.Unlock()

	m.debugLog("netif: link down, debouncing", "window", m.debounce)
	call(m.handlers.Pause)
}

func (m *Monitor) expire(epoch uint64) {
	m.mu.Lock()
	if m.state != StateDebouncing || m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.state = StateDown
	m.timer = nil
	m.mu.Unlock()

	m.debugLog("netif: link lost")
	call(m.handlers.Lost)
}

func (m *Monitor) setAddrs(addrs []netip.Addr) {
	next := slices.Clone(addrs)
	slices.SortFunc(next, func(a, b netip.Addr) int { return a.Compare(b) })

	m.mu.Lock()
	if slices.Equal(m.addrs, next) {
		m.mu.Unlock()
		return
	}
	m.addrs = next
	m.mu.Unlock()

	m.debugLog("netif: addresses changed", "addrs", next)
	if fn := m.handlers.AddrsChanged; fn != nil {
		fn(slices.Clone(next))
	}
}

func (m *Monitor) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
