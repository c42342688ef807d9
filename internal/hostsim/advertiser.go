package hostsim

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/mash-protocol/matter-stack/pkg/discovery"
)

// Advertiser records DNS-SD announcements instead of sending them.
type Advertiser struct {
	mu         sync.Mutex
	records    map[string]*discovery.Record
	registered int
	shutdown   bool
}

var _ discovery.Advertiser = (*Advertiser)(nil)

// NewAdvertiser creates an empty recorder.
func NewAdvertiser() *Advertiser {
	return &Advertiser{records: make(map[string]*discovery.Record)}
}

// Register implements discovery.Advertiser.
func (a *Advertiser) Register(_ context.Context, rec *discovery.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shutdown {
		return discovery.ErrClosed
	}
	a.records[rec.Key()] = rec.Clone()
	a.registered++
	return nil
}

// UpdateText implements discovery.Advertiser.
func (a *Advertiser) UpdateText(rec *discovery.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.records[rec.Key()]; !ok {
		return discovery.ErrInvalidRecord
	}
	a.records[rec.Key()] = rec.Clone()
	return nil
}

// Deregister implements discovery.Advertiser.
func (a *Advertiser) Deregister(rec *discovery.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.records, rec.Key())
	return nil
}

// Shutdown implements discovery.Advertiser.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.records)
	a.shutdown = true
}

// Records returns the announced records of a service type. An empty
// service returns all of them.
func (a *Advertiser) Records(service string) []*discovery.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*discovery.Record
	for _, rec := range a.records {
		if service == "" || rec.Service == service {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(x, y *discovery.Record) int {
		return strings.Compare(x.Key(), y.Key())
	})
	return out
}

// Registered counts Register calls.
func (a *Advertiser) Registered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registered
}
