// Package radio serializes ownership of the device's radios.
//
// Many WiFi/BLE combo chips share one antenna. On such hardware the
// short-range commissioning link and the WiFi station must never be active
// at the same time; the Arbiter enforces this by handing each radio to at
// most one owner and refusing conflicting claims.
package radio

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Radio identifies a radio resource.
type Radio uint8

const (
	BLE Radio = iota
	WiFi
)

// String returns the radio name.
func (r Radio) String() string {
	switch r {
	case BLE:
		return "BLE"
	case WiFi:
		return "WIFI"
	default:
		return "UNKNOWN"
	}
}

// Arbiter errors.
var (
	ErrBusy     = errors.New("radio busy")
	ErrNotOwner = errors.New("radio not held by owner")
)

// Arbiter grants exclusive radio claims.
type Arbiter struct {
	mu sync.Mutex

	// coexist is true when the hardware runs BLE and WiFi simultaneously.
	coexist bool
	owners  map[Radio]string

	onChange func(held []Radio)
}

// NewArbiter creates an arbiter. coexist reports whether BLE and WiFi may
// be claimed at the same time.
func NewArbiter(coexist bool) *Arbiter {
	return &Arbiter{coexist: coexist, owners: make(map[Radio]string)}
}

// Coexist reports whether simultaneous operation is allowed.
func (a *Arbiter) Coexist() bool {
	return a.coexist
}

// Claim hands r to owner. Claiming a radio already held by the same owner
// is a no-op.
func (a *Arbiter) Claim(r Radio, owner string) error {
	a.mu.Lock()
	if cur, ok := a.owners[r]; ok {
		a.mu.Unlock()
		if cur == owner {
			return nil
		}
		return fmt.Errorf("%w: %s held by %s", ErrBusy, r, cur)
	}
	if !a.coexist {
		for other, cur := range a.owners {
			if other != r {
				a.mu.Unlock()
				return fmt.Errorf("%w: %s held by %s", ErrBusy, other, cur)
			}
		}
	}
	a.owners[r] = owner
	held, fn := a.heldLocked(), a.onChange
	a.mu.Unlock()

	if fn != nil {
		fn(held)
	}
	return nil
}

// Release returns r. Only the current owner may release it.
func (a *Arbiter) Release(r Radio, owner string) error {
	a.mu.Lock()
	cur, ok := a.owners[r]
	if !ok || cur != owner {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotOwner, r)
	}
	delete(a.owners, r)
	held, fn := a.heldLocked(), a.onChange
	a.mu.Unlock()

	if fn != nil {
		fn(held)
	}
	return nil
}

// ReleaseAll drops every claim. Used by factory reset.
func (a *Arbiter) ReleaseAll() {
	a.mu.Lock()
	clear(a.owners)
	fn := a.onChange
	a.mu.Unlock()

	if fn != nil {
		fn(nil)
	}
}

// Holds reports whether r is claimed.
func (a *Arbiter) Holds(r Radio) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.owners[r]
	return ok
}

// Owner returns the owner of r, or "".
func (a *Arbiter) Owner(r Radio) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owners[r]
}

// Held returns the claimed radios in order.
func (a *Arbiter) Held() []Radio {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.heldLocked()
}

// OnChange sets a callback invoked with the held radios after each change.
func (a *Arbiter) OnChange(fn func(held []Radio)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

func (a *Arbiter) heldLocked() []Radio {
	held := make([]Radio, 0, len(a.owners))
	for r := range a.owners {
		held = append(held, r)
	}
	slices.Sort(held)
	return held
}
