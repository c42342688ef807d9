package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Manager errors.
var (
	ErrManagerClosed    = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// DefaultAttemptTimeout bounds a single association attempt.
const DefaultAttemptTimeout = 60 * time.Second

// State is the link state tracked by a Manager.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc performs one association attempt.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Backoff        BackoffConfig
	AttemptTimeout time.Duration
	Clock          clock.Clock
}

// Manager keeps a link associated. After NotifyConnectionLost it retries
// connectFn with exponential backoff forever, until an attempt succeeds,
// MarkConnected is called, or Run's context ends.
type Manager struct {
	mu sync.RWMutex

	state          State
	backoff        *Backoff
	connectFn      ConnectFunc
	clock          clock.Clock
	attemptTimeout time.Duration

	lost chan struct{}

	onStateChange  func(oldState, newState State)
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a manager around connectFn.
func NewManager(connectFn ConnectFunc, cfg ManagerConfig) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	return &Manager{
		state:          StateDisconnected,
		backoff:        NewBackoff(cfg.Backoff),
		connectFn:      connectFn,
		clock:          cfg.Clock,
		attemptTimeout: cfg.AttemptTimeout,
		lost:           make(chan struct{}, 1),
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Connect performs a single bounded association attempt.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.mu.Unlock()

	m.setState(StateConnecting)

	actx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
	err := m.connectFn(actx)
	cancel()

	if err != nil {
		m.setState(StateDisconnected)
		return err
	}
	m.backoff.Reset()
	m.setState(StateConnected)
	return nil
}

// MarkConnected records that the link came back on its own.
func (m *Manager) MarkConnected() {
	m.backoff.Reset()
	m.setState(StateConnected)
}

// NotifyConnectionLost starts the retry loop (if Run is active).
func (m *Manager) NotifyConnectionLost() {
	m.mu.Lock()
	if m.state == StateClosed || m.state == StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.setState(StateReconnecting)
	select {
	case m.lost <- struct{}{}:
	default:
	}
}

// Run services reconnect requests until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			m.setState(StateClosed)
			return ctx.Err()
		case <-m.lost:
			m.reconnect(ctx)
		}
	}
}

func (m *Manager) reconnect(ctx context.Context) {
	for {
		if m.State() != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		m.mu.RLock()
		fn := m.onReconnecting
		m.mu.RUnlock()
		if fn != nil {
			fn(m.backoff.Attempts(), delay)
		}

		t := m.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C():
		}

		if m.State() != StateReconnecting {
			return
		}

		actx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
		err := m.connectFn(actx)
		cancel()

		if err == nil {
			m.backoff.Reset()
			m.setState(StateConnected)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	old := m.state
	if old == StateClosed || old == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	fn := m.onStateChange
	m.mu.Unlock()

	if fn != nil {
		fn(old, s)
	}
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnReconnecting sets a callback invoked before each backoff delay.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// Attempts returns the number of retries since the last success.
func (m *Manager) Attempts() int {
	return m.backoff.Attempts()
}
