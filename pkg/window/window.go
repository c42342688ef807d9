package window

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

// Timeout bounds.
const (
	DefaultTimeout = 15 * time.Minute
	MinTimeout     = 3 * time.Minute
	MaxTimeout     = 15 * time.Minute
)

// State is the state of the commissioning window.
type State uint8

const (
	Closed State = iota
	Open
	InProgress
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case InProgress:
		return "IN_PROGRESS"
	default:
		return "UNKNOWN"
	}
}

// Window errors.
var (
	ErrClosed         = errors.New("commissioning window is closed")
	ErrBusy           = errors.New("commissioning already in progress")
	ErrNotInProgress  = errors.New("no commissioning session in progress")
	ErrInvalidTimeout = errors.New("invalid timeout value")
	ErrSession        = errors.New("invalid session id")
)

// Trigger indicates why the window was opened.
type Trigger uint8

const (
	TriggerBoot Trigger = iota
	TriggerButton
	TriggerReadvertise
	TriggerFactoryReset
)

// String returns a human-readable trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerBoot:
		return "BOOT"
	case TriggerButton:
		return "BUTTON"
	case TriggerReadvertise:
		return "READVERTISE"
	case TriggerFactoryReset:
		return "FACTORY_RESET"
	default:
		return "UNKNOWN"
	}
}

// Window is the commissioning window state machine.
type Window struct {
	mu sync.RWMutex

	clock   clock.WithDelayedExecution
	state   State
	timeout time.Duration
	timer   clock.Timer

	openedAt time.Time
	trigger  Trigger
	openings int

	sessionID string

	onStateChange func(oldState, newState State)
	onTimeout     func()
}

// New creates a closed window. A nil clk uses the real clock.
func New(clk clock.WithDelayedExecution) *Window {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Window{
		clock:   clk,
		state:   Closed,
		timeout: DefaultTimeout,
	}
}

// State returns the current state.
func (w *Window) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// IsOpen returns true if the window accepts a new commissioner.
func (w *Window) IsOpen() bool {
	return w.State() == Open
}

// Trigger returns what opened the window last.
func (w *Window) Trigger() Trigger {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.trigger
}

// Openings returns how many times the window was opened since the last
// ResetOpenings.
func (w *Window) Openings() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.openings
}

// ResetOpenings zeroes the openings counter.
func (w *Window) ResetOpenings() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.openings = 0
}

// RemainingTime returns the time until the window closes, or 0.
func (w *Window) RemainingTime() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.remainingLocked()
}

// SetTimeout sets the window timeout used by the next Open.
func (w *Window) SetTimeout(d time.Duration) error {
	if d < MinTimeout || d > MaxTimeout {
		return ErrInvalidTimeout
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = d
	return nil
}

// Timeout returns the timeout setting.
func (w *Window) Timeout() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.timeout
}

// Open opens the window. Opening an open window restarts its timer.
func (w *Window) Open(trigger Trigger) {
	w.mu.Lock()
	w.trigger = trigger
	w.openings++
	w.startTimerLocked()
	if w.state != Closed {
		w.mu.Unlock()
		return
	}

	old := w.state
	w.state = Open
	w.sessionID = ""
	fn := w.onStateChange
	w.mu.Unlock()

	if fn != nil {
		fn(old, Open)
	}
}

// Close closes the window and stops its timer.
func (w *Window) Close() {
	w.mu.Lock()
	if w.state == Closed {
		w.mu.Unlock()
		return
	}
	old := w.state
	w.closeLocked()
	fn := w.onStateChange
	w.mu.Unlock()

	if fn != nil {
		fn(old, Closed)
	}
}

// Begin records that a commissioner connected and returns its session id.
func (w *Window) Begin() (string, error) {
	w.mu.Lock()
	switch w.state {
	case Closed:
		w.mu.Unlock()
		return "", ErrClosed
	case InProgress:
		w.mu.Unlock()
		return "", ErrBusy
	}

	w.state = InProgress
	w.sessionID = uuid.NewString()
	id := w.sessionID
	fn := w.onStateChange
	w.mu.Unlock()

	if fn != nil {
		fn(Open, InProgress)
	}
	return id, nil
}

// End finishes a session. Success closes the window; failure re-opens it
// while time remains.
func (w *Window) End(sessionID string, success bool) error {
	w.mu.Lock()
	if w.state != InProgress {
		w.mu.Unlock()
		return ErrNotInProgress
	}
	if w.sessionID != sessionID {
		w.mu.Unlock()
		return ErrSession
	}

	w.sessionID = ""
	if success || w.remainingLocked() <= 0 {
		w.closeLocked()
	} else {
		w.state = Open
	}
	next := w.state
	fn := w.onStateChange
	w.mu.Unlock()

	if fn != nil {
		fn(InProgress, next)
	}
	return nil
}

// SessionID returns the id of the session in progress, or "".
func (w *Window) SessionID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sessionID
}

// OnStateChange sets a callback for state changes.
func (w *Window) OnStateChange(fn func(oldState, newState State)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onStateChange = fn
}

// OnTimeout sets a callback for when the window times out.
func (w *Window) OnTimeout(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onTimeout = fn
}

func (w *Window) handleTimeout() {
	w.mu.Lock()
	if w.state == Closed {
		w.mu.Unlock()
		return
	}
	old := w.state
	w.state = Closed
	w.sessionID = ""
	w.timer = nil
	stateFn := w.onStateChange
	timeoutFn := w.onTimeout
	w.mu.Unlock()

	if stateFn != nil {
		stateFn(old, Closed)
	}
	if timeoutFn != nil {
		timeoutFn()
	}
}

func (w *Window) startTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.openedAt = w.clock.Now()
	w.timer = w.clock.AfterFunc(w.timeout, w.handleTimeout)
}

func (w *Window) closeLocked() {
	w.state = Closed
	w.sessionID = ""
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Window) remainingLocked() time.Duration {
	if w.state == Closed {
		return 0
	}
	remaining := w.timeout - w.clock.Since(w.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
