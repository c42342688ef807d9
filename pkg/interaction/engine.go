package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/log"
	"github.com/mash-protocol/matter-stack/pkg/wire"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

// Engine defaults.
const (
	DefaultMaxExchanges     = 4
	DefaultMaxSubscriptions = 16
	DefaultSendTimeout      = 5 * time.Second
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	// MaxExchanges bounds concurrently processed requests. Requests beyond
	// the bound are answered with BUSY.
	MaxExchanges int

	// MaxSubscriptions bounds the subscription table.
	MaxSubscriptions int

	// SendTimeout bounds a single response or report send.
	SendTimeout time.Duration

	Clock          clock.WithDelayedExecution
	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxExchanges:     DefaultMaxExchanges,
		MaxSubscriptions: DefaultMaxSubscriptions,
		SendTimeout:      DefaultSendTimeout,
	}
}

// Engine serves interaction requests against a Handler.
type Engine struct {
	handler Handler
	config  EngineConfig
	clock   clock.WithDelayedExecution
	plog    log.Logger

	slots   chan struct{}
	changed chan struct{}

	mu         sync.Mutex
	transports map[string]Transport
	subs       map[uint32]*Subscription
	nextSubID  uint32
	paused     bool
	retry      clock.Timer
}

// NewEngine creates an engine for h.
func NewEngine(h Handler, cfg EngineConfig) *Engine {
	if cfg.MaxExchanges <= 0 {
		cfg.MaxExchanges = DefaultMaxExchanges
	}
	if cfg.MaxSubscriptions <= 0 {
		cfg.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Engine{
		handler:    h,
		config:     cfg,
		clock:      clk,
		plog:       log.OrNoop(cfg.ProtocolLogger),
		slots:      make(chan struct{}, cfg.MaxExchanges),
		changed:    make(chan struct{}, 1),
		transports: make(map[string]Transport),
		subs:       make(map[uint32]*Subscription),
		nextSubID:  1,
	}
}

// NotifyChanged schedules a report pass. It never blocks and is safe to
// call from any goroutine.
func (e *Engine) NotifyChanged() {
	select {
	case e.changed <- struct{}{}:
	default:
	}
}

// Pause holds back reports. Subscriptions stay intact and changes made
// while paused are delivered on Resume.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

// Resume releases held-back reports.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.NotifyChanged()
}

// Paused reports whether reports are held back.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Engine) SubscriptionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Subscriptions returns the active subscriptions.
func (e *Engine) Subscriptions() []*Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Subscription, 0, len(e.subs))
	for _, s := range e.subs {
		out = append(out, s)
	}
	return out
}

// DropSubscriptions removes the subscriptions reached over the named
// transport. An empty name removes all of them.
func (e *Engine) DropSubscriptions(transport string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, s := range e.subs {
		if transport == "" || s.Transport == transport {
			delete(e.subs, id)
		}
	}
}

// Attached reports whether a transport with the given name is being served.
func (e *Engine) Attached(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.transports[name]
	return ok
}

// Run delivers subscription reports until ctx is done. It fails when a
// handler reports ErrResourceExhausted.
func (e *Engine) Run(ctx context.Context) error {
	defer e.stopRetry()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.changed:
			if err := e.report(ctx); err != nil {
				return err
			}
		}
	}
}

// Serve processes requests from t until ctx is done or t fails.
func (e *Engine) Serve(ctx context.Context, t Transport) error {
	e.attach(t)
	defer e.detach(t)

	// Reports held for subscribers on this transport can go out now.
	e.NotifyChanged()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			pkt, err := t.Receive(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%s receive: %w", t.Name(), err)
			}

			msg, err := wire.Decode(pkt.Data)
			if err != nil {
				e.plog.Log(e.errorEvent(t, pkt.Peer, "decode", err))
				continue
			}
			if msg.Kind != wire.KindRequest {
				continue
			}
			e.logMessage(t, pkt.Peer, log.DirectionIn, msg, nil)

			select {
			case e.slots <- struct{}{}:
			default:
				e.debugLog("interaction: exchange limit reached", "transport", t.Name(), "exchange", msg.ExchangeID)
				e.respond(gctx, t, pkt.Peer, wire.NewResponse(msg, wire.StatusBusy, nil), nil)
				continue
			}

			peer := pkt.Peer
			g.Go(func() error {
				defer func() { <-e.slots }()
				return e.exchange(gctx, t, peer, msg)
			})
		}
	})
	return g.Wait()
}

func (e *Engine) attach(t Transport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transports[t.Name()] = t
}

func (e *Engine) detach(t Transport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transports[t.Name()] == t {
		delete(e.transports, t.Name())
	}
}

func (e *Engine) exchange(ctx context.Context, t Transport, peer net.Addr, req *wire.Message) error {
	start := e.clock.Now()
	resp, err := e.dispatch(ctx, t, peer, req)
	elapsed := e.clock.Since(start)
	// A request that was handled gets its answer even if serving stops.
	e.respond(context.WithoutCancel(ctx), t, peer, resp, &elapsed)

	if errors.Is(err, ErrResourceExhausted) {
		return fmt.Errorf("%s on %s: %w", req.Opcode, req.Path, err)
	}
	if err != nil && ctx.Err() == nil {
		e.debugLog("interaction: request failed", "opcode", req.Opcode.String(), "path", req.Path.String(), "error", err)
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, t Transport, peer net.Addr, req *wire.Message) (*wire.Message, error) {
	switch req.Opcode {
	case wire.OpRead:
		v, err := e.handler.Read(ctx, req.Path)
		if err != nil {
			return wire.NewResponse(req, Status(err), nil), err
		}
		return e.valueResponse(req, v)

	case wire.OpWrite:
		if err := e.handler.Write(ctx, req.Path, req.Payload); err != nil {
			return wire.NewResponse(req, Status(err), nil), err
		}
		e.NotifyChanged()
		return wire.NewResponse(req, wire.StatusSuccess, nil), nil

	case wire.OpInvoke:
		v, err := e.handler.Invoke(ctx, req.Path, req.Payload)
		if err != nil {
			return wire.NewResponse(req, Status(err), nil), err
		}
		e.NotifyChanged()
		return e.valueResponse(req, v)

	case wire.OpSubscribe:
		return e.subscribe(ctx, t, peer, req)

	default:
		return wire.NewResponse(req, wire.StatusInvalidAction, nil), nil
	}
}

func (e *Engine) valueResponse(req *wire.Message, v any) (*wire.Message, error) {
	payload, err := wire.EncodePayload(v)
	if err != nil {
		return wire.NewResponse(req, wire.StatusFailure, nil), err
	}
	return wire.NewResponse(req, wire.StatusSuccess, payload), nil
}

func (e *Engine) subscribe(ctx context.Context, t Transport, peer net.Addr, req *wire.Message) (*wire.Message, error) {
	var args SubscribeRequest
	if err := wire.DecodePayload(req.Payload, &args); err != nil {
		return wire.NewResponse(req, wire.StatusInvalidAction, nil), err
	}

	v, err := e.handler.Read(ctx, req.Path)
	if err != nil {
		return wire.NewResponse(req, Status(err), nil), err
	}
	priming, err := wire.EncodePayload(v)
	if err != nil {
		return wire.NewResponse(req, wire.StatusFailure, nil), err
	}

	e.mu.Lock()
	if len(e.subs) >= e.config.MaxSubscriptions {
		e.mu.Unlock()
		return wire.NewResponse(req, wire.StatusResourceExhausted, nil), nil
	}
	sub := &Subscription{
		ID:          e.nextSubID,
		Path:        req.Path,
		Transport:   t.Name(),
		Peer:        peer,
		MinInterval: time.Duration(args.MinIntervalMs) * time.Millisecond,
		lastReport:  e.clock.Now(),
		last:        priming,
	}
	e.nextSubID++
	e.subs[sub.ID] = sub
	e.mu.Unlock()

	resp := wire.NewResponse(req, wire.StatusSuccess, priming)
	resp.SubscriptionID = sub.ID
	return resp, nil
}

// report reads every subscribed attribute and delivers changed values.
func (e *Engine) report(ctx context.Context) error {
	e.mu.Lock()
	paused := e.paused
	subs := make([]*Subscription, 0, len(e.subs))
	for _, s := range e.subs {
		subs = append(subs, s)
	}
	e.mu.Unlock()

	var wait time.Duration
	for _, sub := range subs {
		v, err := e.handler.Read(ctx, sub.Path)
		if err != nil {
			if errors.Is(err, ErrResourceExhausted) {
				return fmt.Errorf("report %s: %w", sub.Path, err)
			}
			continue
		}
		value, err := wire.EncodePayload(v)
		if err != nil || !sub.offer(value) || paused {
			continue
		}

		now := e.clock.Now()
		if !sub.due(now) {
			remaining := sub.MinInterval - now.Sub(sub.lastReport)
			if wait == 0 || remaining < wait {
				wait = remaining
			}
			continue
		}

		e.mu.Lock()
		t := e.transports[sub.Transport]
		e.mu.Unlock()
		if t == nil {
			continue
		}

		report := wire.NewReport(sub.ID, sub.Path, sub.pending())
		if e.respond(ctx, t, sub.Peer, report, nil) {
			sub.markReported(now)
		}
	}

	if wait > 0 {
		e.scheduleRetry(wait)
	}
	return nil
}

func (e *Engine) scheduleRetry(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retry != nil {
		e.retry.Stop()
	}
	e.retry = e.clock.AfterFunc(d, e.NotifyChanged)
}

func (e *Engine) stopRetry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
}

// respond encodes and sends msg, reporting whether it was delivered.
func (e *Engine) respond(ctx context.Context, t Transport, peer net.Addr, msg *wire.Message, elapsed *time.Duration) bool {
	data, err := wire.Encode(msg)
	if err != nil {
		e.plog.Log(e.errorEvent(t, peer, "encode", err))
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.SendTimeout)
	defer cancel()
	if err := t.Send(sendCtx, peer, data); err != nil {
		e.plog.Log(e.errorEvent(t, peer, "send", err))
		return false
	}
	e.logMessage(t, peer, log.DirectionOut, msg, elapsed)
	return true
}

func (e *Engine) logMessage(t Transport, peer net.Addr, dir log.Direction, msg *wire.Message, elapsed *time.Duration) {
	ev := &log.MessageEvent{
		Kind:           msg.Kind,
		ExchangeID:     msg.ExchangeID,
		Opcode:         msg.Opcode,
		SubscriptionID: msg.SubscriptionID,
		ProcessingTime: elapsed,
	}
	path := msg.Path
	ev.Path = &path
	if msg.Kind != wire.KindRequest {
		status := msg.Status
		ev.Status = &status
	}
	e.plog.Log(log.Event{
		Timestamp:  e.clock.Now(),
		SessionID:  t.Name(),
		Direction:  dir,
		Layer:      log.LayerInteraction,
		Category:   log.CategoryMessage,
		RemoteAddr: addrString(peer),
		Message:    ev,
	})
}

func (e *Engine) errorEvent(t Transport, peer net.Addr, op string, err error) log.Event {
	ev := log.Error(log.LayerInteraction, op, err)
	ev.SessionID = t.Name()
	ev.RemoteAddr = addrString(peer)
	return ev
}

func (e *Engine) debugLog(msg string, args ...any) {
	if e.config.Logger != nil {
		e.config.Logger.Debug(msg, args...)
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
