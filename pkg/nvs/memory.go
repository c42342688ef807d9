package nvs

import (
	"sync"
)

// MemoryPartition is a volatile Partition for tests and host simulation.
type MemoryPartition struct {
	mu       sync.RWMutex
	data     map[string]map[string][]byte
	writeErr error
	writes   int
}

// NewMemoryPartition creates an empty partition.
func NewMemoryPartition() *MemoryPartition {
	return &MemoryPartition{data: make(map[string]map[string][]byte)}
}

// FailWrites makes every subsequent Set, Delete and EraseNamespace
// return err, simulating a worn or full flash sector. nil restores
// normal operation.
func (p *MemoryPartition) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Writes returns the number of successful mutating calls.
func (p *MemoryPartition) Writes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.writes
}

// Get returns a copy of the stored blob.
func (p *MemoryPartition) Get(namespace, key string) ([]byte, error) {
	if err := validateEntry(namespace, key, nil); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	v, ok := p.data[namespace][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value.
func (p *MemoryPartition) Set(namespace, key string, value []byte) error {
	if err := validateEntry(namespace, key, value); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil {
		return p.writeErr
	}
	ns, ok := p.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		p.data[namespace] = ns
	}
	ns[key] = append([]byte(nil), value...)
	p.writes++
	return nil
}

// Delete removes the key.
func (p *MemoryPartition) Delete(namespace, key string) error {
	if err := validateEntry(namespace, key, nil); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil {
		return p.writeErr
	}
	delete(p.data[namespace], key)
	p.writes++
	return nil
}

// EraseNamespace drops all keys in the namespace.
func (p *MemoryPartition) EraseNamespace(namespace string) error {
	if err := validateName(namespace); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil {
		return p.writeErr
	}
	delete(p.data, namespace)
	p.writes++
	return nil
}

var _ Partition = (*MemoryPartition)(nil)
