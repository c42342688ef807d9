package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/log"
	"github.com/mash-protocol/matter-stack/pkg/netcomm"
	"github.com/mash-protocol/matter-stack/pkg/nvs"
)

// Stack errors.
var (
	ErrTaken                = errors.New("stack already taken")
	ErrUnbound              = errors.New("stack has no peripherals bound")
	ErrRunning              = errors.New("stack is already running")
	ErrNotCommissioned      = errors.New("device is not commissioned")
	ErrCommissioningTimeout = errors.New("commissioning window timed out")
)

// errFactoryReset unwinds the active mode so the reset runs with every
// transport down.
var errFactoryReset = errors.New("factory reset requested")

var taken atomic.Bool

// Take returns the process-wide stack. Only the first successful call
// returns a Stack; later calls fail with ErrTaken.
func Take(cfg Config) (*Stack, error) {
	if !taken.CompareAndSwap(false, true) {
		return nil, ErrTaken
	}
	s, err := New(cfg)
	if err != nil {
		taken.Store(false)
		return nil, err
	}
	return s, nil
}

// Stack orchestrates commissioning and operation of one device.
type Stack struct {
	config Config
	logger *slog.Logger
	plog   log.Logger

	mode    atomic.Uint32
	transMu sync.Mutex

	mu       sync.Mutex
	res      *resources
	verifier *Verifier
	running  bool

	resets chan struct{}
}

// New creates a stack in Uncommissioned mode. Most embedders use Take.
func New(cfg Config) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Stack{
		config: cfg,
		logger: cfg.Logger,
		plog:   log.OrNoop(cfg.ProtocolLogger),
		resets: make(chan struct{}, 1),
	}, nil
}

// Mode returns the current mode.
func (s *Stack) Mode() Mode {
	return Mode(s.mode.Load())
}

// Verifier returns the setup verifier derived by the last Run or
// Commission, or nil.
func (s *Stack) Verifier() *Verifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifier
}

// Bind attaches the peripherals and the application handler. Run,
// Commission and Operate bind on first use; every later call reuses the
// first binding.
func (s *Stack) Bind(p Peripherals, h interaction.Handler) error {
	_, err := s.bind(p, h)
	return err
}

func (s *Stack) bind(p Peripherals, h interaction.Handler) (*resources, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.res != nil {
		return s.res, nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r, err := s.newResources(p, h)
	if err != nil {
		return nil, err
	}
	s.res = r
	return r, nil
}

func (s *Stack) bound() (*resources, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.res == nil {
		return nil, ErrUnbound
	}
	return s.res, nil
}

// prepare derives the verifier for cd and binds.
func (s *Stack) prepare(p Peripherals, cd CommissioningData, h interaction.Handler) (*resources, error) {
	v, err := cd.Verifier()
	if err != nil {
		return nil, fmt.Errorf("commissioning data: %w", err)
	}
	r, err := s.bind(p, h)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.verifier = v
	s.mu.Unlock()
	return r, nil
}

// acquire marks the stack running. The returned func releases it and
// runs a factory reset that was requested but never picked up.
func (s *Stack) acquire(r *resources) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrRunning
	}
	s.running = true
	return func() {
		s.mu.Lock()
		s.running = false
		pending := false
		select {
		case <-s.resets:
			pending = true
		default:
		}
		s.mu.Unlock()

		if pending {
			if err := s.reset(r); err != nil {
				s.warnLog("stack: deferred factory reset failed", "error", err)
			}
		}
	}, nil
}

// NotifyChanged tells the engine that application attributes changed so
// subscribers get reports. It never blocks and is safe from any goroutine.
func (s *Stack) NotifyChanged() {
	s.mu.Lock()
	r := s.res
	s.mu.Unlock()
	if r != nil {
		r.engine.NotifyChanged()
	}
}

// IsCommissioned reports whether the device holds network credentials
// (WiFi only), at least one fabric and the commissioned marker.
func (s *Stack) IsCommissioned() (bool, error) {
	r, err := s.bound()
	if err != nil {
		return false, err
	}
	return r.commissioned()
}

// Run drives the device until ctx ends. It binds p and h, then moves
// between commissioning and operation as events arrive, re-advertising
// without bound while uncommissioned. The engine, the mode lifecycle and
// Config.App run as a race: the first to fail or finish ends Run. Run
// returns nil when ctx ends.
func (s *Stack) Run(ctx context.Context, p Peripherals, cd CommissioningData, h interaction.Handler) error {
	r, err := s.prepare(p, cd, h)
	if err != nil {
		return err
	}
	release, err := s.acquire(r)
	if err != nil {
		return err
	}
	defer release()

	return race(ctx,
		r.engine.Run,
		func(ctx context.Context) error { return s.lifecycle(ctx, r, cd) },
		s.config.App,
	)
}

func (s *Stack) lifecycle(ctx context.Context, r *resources, cd CommissioningData) error {
	for {
		var err error
		switch s.Mode() {
		case Uncommissioned:
			ok, cerr := r.commissioned()
			if cerr != nil {
				return cerr
			}
			s.enter(Initial(ok), "start")
			continue
		case Commissioning:
			err = s.commission(ctx, r, cd, 0, s.config.CommissioningTimeout)
		default:
			err = s.operate(ctx, r)
		}

		switch {
		case errors.Is(err, errFactoryReset):
			if err := s.reset(r); err != nil {
				return err
			}
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}
	}
}

// Commission runs only the commissioning phase. It returns nil once the
// device is commissioned and ErrCommissioningTimeout after
// Config.CommissioningAttempts windows of the given timeout expired. A
// zero timeout uses Config.CommissioningTimeout.
//
// On success Mode reports Operating, the mode the completed
// commissioning leads to, but nothing is served until Operate runs.
func (s *Stack) Commission(ctx context.Context, p Peripherals, cd CommissioningData, h interaction.Handler, timeout time.Duration) error {
	if timeout == 0 {
		timeout = s.config.CommissioningTimeout
	}
	r, err := s.prepare(p, cd, h)
	if err != nil {
		return err
	}
	release, err := s.acquire(r)
	if err != nil {
		return err
	}
	defer release()

	for {
		s.enter(Commissioning, "commission")
		err := race(ctx, r.engine.Run, func(ctx context.Context) error {
			return s.commission(ctx, r, cd, s.config.CommissioningAttempts, timeout)
		})
		if !errors.Is(err, errFactoryReset) {
			return err
		}
		if err := s.reset(r); err != nil {
			return err
		}
	}
}

// Operate joins the stored network and serves h until ctx ends. It fails
// with ErrNotCommissioned when the device was never commissioned, and
// returns after a factory reset.
func (s *Stack) Operate(ctx context.Context, p Peripherals, h interaction.Handler) error {
	r, err := s.bind(p, h)
	if err != nil {
		return err
	}
	release, err := s.acquire(r)
	if err != nil {
		return err
	}
	defer release()

	ok, err := r.commissioned()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotCommissioned
	}

	s.enter(Operating, "operate")
	err = race(ctx, r.engine.Run, func(ctx context.Context) error {
		return s.operate(ctx, r)
	})
	if errors.Is(err, errFactoryReset) {
		return s.reset(r)
	}
	return err
}

// FactoryReset erases the persisted state and returns the device to
// Uncommissioned. While Run, Commission or Operate is active the request
// is handed to it and FactoryReset returns at once.
func (s *Stack) FactoryReset() error {
	r, err := s.bound()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.running {
		select {
		case s.resets <- struct{}{}:
		default:
		}
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.reset(r)
}

// reset runs with every transport of the active mode torn down.
func (s *Stack) reset(r *resources) error {
	s.debugLog("stack: factory reset")

	if err := r.discovery.WithdrawAll(); err != nil {
		s.debugLog("stack: withdraw on reset", "error", err)
	}
	r.engine.DropSubscriptions("")
	if r.wifi != nil {
		if err := r.wifi.Disconnect(); err != nil {
			s.debugLog("stack: wifi disconnect on reset", "error", err)
		}
	}
	r.radios.ReleaseAll()
	r.window.Close()
	r.window.ResetOpenings()

	if err := r.store.Erase(); err != nil {
		s.logEvent(log.Error(log.LayerStack, "factory reset", err))
		return fmt.Errorf("factory reset: %w", err)
	}
	r.fabrics.Clear()
	if r.netcomm != nil {
		if err := r.netcomm.Reload(); err != nil {
			return fmt.Errorf("factory reset: %w", err)
		}
	}
	instance, err := loadInstance(r.store)
	if err != nil {
		return fmt.Errorf("factory reset: %w", err)
	}
	r.instance = instance

	s.post(Event{Kind: EventFactoryReset})
	return nil
}

// commissioned reports whether the persisted state is complete.
func (r *resources) commissioned() (bool, error) {
	if r.fabrics.Count() == 0 {
		return false, nil
	}
	ok, err := r.store.Has(nvs.KeyCommissioned)
	if err != nil || !ok {
		return false, err
	}
	if r.netcomm == nil {
		return true, nil
	}
	_, err = netcomm.LoadCredentials(r.store)
	if errors.Is(err, netcomm.ErrNoNetwork) {
		return false, nil
	}
	return err == nil, err
}

// post applies ev to the current mode and returns the new mode.
func (s *Stack) post(ev Event) Mode {
	s.transMu.Lock()
	defer s.transMu.Unlock()
	from := s.Mode()
	to := Next(from, ev)
	s.transitionLocked(from, to, ev.Kind.String())
	return to
}

// enter moves to m outside the event table. Used when an operation
// starts.
func (s *Stack) enter(m Mode, reason string) {
	s.transMu.Lock()
	defer s.transMu.Unlock()
	s.transitionLocked(s.Mode(), m, reason)
}

func (s *Stack) transitionLocked(from, to Mode, reason string) {
	if from == to {
		s.debugLog("stack: mode unchanged", "mode", from, "reason", reason)
		return
	}
	s.mode.Store(uint32(to))
	s.debugLog("stack: mode changed", "from", from, "to", to, "reason", reason)
	s.logEvent(log.StateChange(log.LayerStack, log.StateEntityMode, from.String(), to.String(), reason))
	if fn := s.config.OnModeChange; fn != nil {
		fn(from, to)
	}
}

func (s *Stack) logEvent(ev log.Event) {
	ev.Mode = s.Mode().String()
	s.plog.Log(ev)
}

func (s *Stack) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Stack) warnLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
