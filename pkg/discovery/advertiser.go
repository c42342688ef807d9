package discovery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Advertiser provides mDNS service advertising capabilities.
type Advertiser interface {
	// Register starts announcing a record.
	Register(ctx context.Context, rec *Record) error

	// UpdateText replaces the TXT records of an already registered record.
	UpdateText(rec *Record) error

	// Deregister stops announcing a record and sends goodbye packets.
	Deregister(rec *Record) error

	// Shutdown stops all announcements.
	Shutdown()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string `yaml:"interface"`

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration `yaml:"ttl"`
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       120 * time.Second,
	}
}

// Manager tracks the published record set on top of an Advertiser.
//
// Publishing a record identical to the one already published is a no-op.
// A record whose instance is already published with different TXT values
// is updated in place; any other change re-registers it.
type Manager struct {
	mu sync.Mutex

	advertiser Advertiser
	published  map[string]*Record
	logger     *slog.Logger

	onChange func(published []*Record)
}

// NewManager creates a manager. The logger may be nil.
func NewManager(advertiser Advertiser, logger *slog.Logger) *Manager {
	return &Manager{
		advertiser: advertiser,
		published:  make(map[string]*Record),
		logger:     logger,
	}
}

// OnChange sets a callback invoked after the published set changes.
func (m *Manager) OnChange(fn func(published []*Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Publish announces rec.
func (m *Manager) Publish(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	changed, err := m.publishLocked(ctx, rec)
	m.mu.Unlock()

	if changed {
		m.notify()
	}
	return err
}

func (m *Manager) publishLocked(ctx context.Context, rec *Record) (bool, error) {
	key := rec.Key()
	current, exists := m.published[key]

	switch {
	case exists && current.Equal(rec):
		return false, nil

	case exists && current.Port == rec.Port && slices.Equal(current.Subtypes, rec.Subtypes):
		if err := m.advertiser.UpdateText(rec); err != nil {
			return false, fmt.Errorf("update %s: %w", key, err)
		}
		m.debugLog("discovery: updated TXT", "record", key)

	case exists:
		if err := m.advertiser.Deregister(current); err != nil {
			return false, fmt.Errorf("deregister %s: %w", key, err)
		}
		delete(m.published, key)
		if err := m.advertiser.Register(ctx, rec); err != nil {
			return true, fmt.Errorf("register %s: %w", key, err)
		}
		m.debugLog("discovery: re-registered", "record", key)

	default:
		if err := m.advertiser.Register(ctx, rec); err != nil {
			return false, fmt.Errorf("register %s: %w", key, err)
		}
		m.debugLog("discovery: registered", "record", key, "port", rec.Port)
	}

	m.published[key] = rec.Clone()
	return true, nil
}

// Withdraw removes every published record of the given service type.
func (m *Manager) Withdraw(service string) error {
	m.mu.Lock()
	var errs []error
	changed := false
	for key, rec := range m.published {
		if rec.Service != service {
			continue
		}
		if err := m.advertiser.Deregister(rec); err != nil {
			errs = append(errs, fmt.Errorf("deregister %s: %w", key, err))
			continue
		}
		delete(m.published, key)
		changed = true
		m.debugLog("discovery: withdrawn", "record", key)
	}
	m.mu.Unlock()

	if changed {
		m.notify()
	}
	return errors.Join(errs...)
}

// WithdrawAll removes every published record.
func (m *Manager) WithdrawAll() error {
	return errors.Join(
		m.Withdraw(ServiceTypeCommissionable),
		m.Withdraw(ServiceTypeOperational),
	)
}

// Sync makes the published set of the given service type equal to recs.
func (m *Manager) Sync(ctx context.Context, service string, recs []*Record) error {
	want := make(map[string]bool, len(recs))
	for _, rec := range recs {
		if rec.Service != service {
			return fmt.Errorf("%w: %s is not %s", ErrInvalidRecord, rec.Key(), service)
		}
		want[rec.Key()] = true
	}

	m.mu.Lock()
	var errs []error
	changed := false
	for key, rec := range m.published {
		if rec.Service != service || want[key] {
			continue
		}
		if err := m.advertiser.Deregister(rec); err != nil {
			errs = append(errs, fmt.Errorf("deregister %s: %w", key, err))
			continue
		}
		delete(m.published, key)
		changed = true
	}
	m.mu.Unlock()

	if changed {
		m.notify()
	}

	for _, rec := range recs {
		if err := m.Publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reannounce registers every published record again. Advertisers start
// a fresh responder on Register, so this restores multicast membership
// the platform dropped while the link flapped.
func (m *Manager) Reannounce(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for key, rec := range m.published {
		if err := m.advertiser.Register(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("reannounce %s: %w", key, err))
			continue
		}
		m.debugLog("discovery: reannounced", "record", key)
	}
	return errors.Join(errs...)
}

// Published returns a snapshot of the published records sorted by key.
func (m *Manager) Published() []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() []*Record {
	out := make([]*Record, 0, len(m.published))
	for _, rec := range m.published {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b *Record) int {
		return cmp.Compare(a.Key(), b.Key())
	})
	return out
}

// IsPublished reports whether any record of the service type is published.
func (m *Manager) IsPublished(service string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.published {
		if rec.Service == service {
			return true
		}
	}
	return false
}

// Close withdraws everything and shuts the advertiser down.
func (m *Manager) Close() {
	m.mu.Lock()
	m.published = make(map[string]*Record)
	m.mu.Unlock()
	m.advertiser.Shutdown()
	m.notify()
}

func (m *Manager) notify() {
	m.mu.Lock()
	fn := m.onChange
	snap := m.snapshotLocked()
	m.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
