package examples

import (
	"context"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mash-protocol/matter-stack/pkg/interaction"
	"github.com/mash-protocol/matter-stack/pkg/wire"
)

// LightEndpoint is the endpoint the light's clusters live on.
const LightEndpoint uint16 = 1

// Cluster IDs.
const (
	OnOffClusterID        uint32 = 0x0006
	LevelControlClusterID uint32 = 0x0008
)

// On/Off cluster.
const (
	AttrOnOff uint32 = 0x0000

	CmdOff    uint32 = 0x00
	CmdOn     uint32 = 0x01
	CmdToggle uint32 = 0x02
)

// Level Control cluster.
const (
	AttrCurrentLevel uint32 = 0x0000
	AttrMinLevel     uint32 = 0x0002
	AttrMaxLevel     uint32 = 0x0003

	CmdMoveToLevel uint32 = 0x00
)

// MoveToLevelRequest is the MoveToLevel command payload.
type MoveToLevelRequest struct {
	Level uint8 `cbor:"0,keyasint"`

	// TransitionTime is in tenths of a second. The light jumps to the
	// level at once.
	TransitionTime uint16 `cbor:"1,keyasint,omitempty"`
}

// LightConfig contains configuration for creating a Light.
type LightConfig struct {
	MinLevel uint8
	MaxLevel uint8

	// OnChange is called after any attribute changed, outside the lock.
	// Wire it to stack.Stack.NotifyChanged.
	OnChange func()
}

// Light is a dimmable light serving the On/Off and Level Control clusters.
type Light struct {
	mu sync.RWMutex

	cfg   LightConfig
	on    bool
	level uint8
}

// NewLight creates a light that is off at its maximum level.
func NewLight(cfg LightConfig) *Light {
	if cfg.MinLevel == 0 {
		cfg.MinLevel = 1
	}
	if cfg.MaxLevel == 0 || cfg.MaxLevel < cfg.MinLevel {
		cfg.MaxLevel = 254
	}
	return &Light{cfg: cfg, level: cfg.MaxLevel}
}

// Handler returns the light's clusters as an interaction handler.
func (l *Light) Handler() interaction.Handler {
	var h interaction.Handler = interaction.NewChain(LightEndpoint, LevelControlClusterID, levelControl{l}, nil)
	return interaction.NewChain(LightEndpoint, OnOffClusterID, onOff{l}, h)
}

// On reports whether the light is on.
func (l *Light) On() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.on
}

// Level returns the current level.
func (l *Light) Level() uint8 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// SetOn switches the light.
func (l *Light) SetOn(on bool) {
	l.mu.Lock()
	changed := l.on != on
	l.on = on
	l.mu.Unlock()
	if changed {
		l.notify()
	}
}

// Toggle inverts the on/off state.
func (l *Light) Toggle() {
	l.mu.Lock()
	l.on = !l.on
	l.mu.Unlock()
	l.notify()
}

// SetLevel moves to level. A level outside the configured range is
// rejected with a constraint error.
func (l *Light) SetLevel(level uint8) error {
	if level < l.cfg.MinLevel || level > l.cfg.MaxLevel {
		return interaction.Errorf(wire.StatusConstraintError, "level %d outside %d..%d", level, l.cfg.MinLevel, l.cfg.MaxLevel)
	}
	l.mu.Lock()
	changed := l.level != level
	l.level = level
	l.mu.Unlock()
	if changed {
		l.notify()
	}
	return nil
}

// Simulate toggles the light every interval until ctx is done. It fits
// stack.Config.App.
func (l *Light) Simulate(interval time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				l.Toggle()
			}
		}
	}
}

func (l *Light) notify() {
	if fn := l.cfg.OnChange; fn != nil {
		fn()
	}
}

type onOff struct{ l *Light }

func (c onOff) Read(_ context.Context, path wire.Path) (any, error) {
	if path.ID == AttrOnOff {
		return c.l.On(), nil
	}
	return nil, interaction.NewStatus(wire.StatusUnsupportedAttribute)
}

func (c onOff) Write(context.Context, wire.Path, cbor.RawMessage) error {
	return interaction.NewStatus(wire.StatusUnsupportedWrite)
}

func (c onOff) Invoke(_ context.Context, path wire.Path, _ cbor.RawMessage) (any, error) {
	switch path.ID {
	case CmdOff:
		c.l.SetOn(false)
	case CmdOn:
		c.l.SetOn(true)
	case CmdToggle:
		c.l.Toggle()
	default:
		return nil, interaction.NewStatus(wire.StatusUnsupportedCommand)
	}
	return nil, nil
}

type levelControl struct{ l *Light }

func (c levelControl) Read(_ context.Context, path wire.Path) (any, error) {
	switch path.ID {
	case AttrCurrentLevel:
		return c.l.Level(), nil
	case AttrMinLevel:
		return c.l.cfg.MinLevel, nil
	case AttrMaxLevel:
		return c.l.cfg.MaxLevel, nil
	}
	return nil, interaction.NewStatus(wire.StatusUnsupportedAttribute)
}

func (c levelControl) Write(context.Context, wire.Path, cbor.RawMessage) error {
	return interaction.NewStatus(wire.StatusUnsupportedWrite)
}

func (c levelControl) Invoke(_ context.Context, path wire.Path, args cbor.RawMessage) (any, error) {
	if path.ID != CmdMoveToLevel {
		return nil, interaction.NewStatus(wire.StatusUnsupportedCommand)
	}
	var req MoveToLevelRequest
	if err := wire.DecodePayload(args, &req); err != nil {
		return nil, interaction.Errorf(wire.StatusInvalidCommand, "MoveToLevel: %v", err)
	}
	return nil, c.l.SetLevel(req.Level)
}
