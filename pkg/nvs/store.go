package nvs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Namespace is the reserved namespace holding all protocol state.
const Namespace = "matter"

// Keys of the persisted layout.
const (
	KeyFabrics         = "fabrics"
	KeyACLs            = "acls"
	KeyWiFiCredentials = "wifi-creds"
	KeyDiscovery       = "discovery"

	// KeyCommissioned is written only after both credentials and at least
	// one fabric are committed. Its absence next to either of them means
	// a commissioning attempt was cut short.
	KeyCommissioned = "commissioned"
)

var blobEncMode cbor.EncMode

func init() {
	var err error
	blobEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create nvs CBOR encoder mode: %v", err))
	}
}

// Store scopes a Partition to the reserved namespace.
// Reads may run concurrently; writes are serialized.
type Store struct {
	mu        sync.RWMutex
	part      Partition
	namespace string
	logger    *slog.Logger
}

// NewStore creates a store over part. logger may be nil.
func NewStore(part Partition, logger *slog.Logger) *Store {
	return &Store{part: part, namespace: Namespace, logger: logger}
}

// Partition returns the underlying partition.
func (s *Store) Partition() Partition {
	return s.part
}

// Get returns the blob for key, or ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.part.Get(s.namespace, key)
}

// Has reports whether key holds a value.
func (s *Store) Has(key string) (bool, error) {
	_, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Set commits value under key.
func (s *Store) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.part.Set(s.namespace, key, value); err != nil {
		return fmt.Errorf("nvs set %s: %w", key, err)
	}
	s.debugLog("nvs committed", "key", key, "size", len(value))
	return nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.part.Delete(s.namespace, key); err != nil {
		return fmt.Errorf("nvs delete %s: %w", key, err)
	}
	s.debugLog("nvs deleted", "key", key)
	return nil
}

// Erase removes every key in the namespace (factory reset).
func (s *Store) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.part.EraseNamespace(s.namespace); err != nil {
		return fmt.Errorf("nvs erase: %w", err)
	}
	s.debugLog("nvs namespace erased", "namespace", s.namespace)
	return nil
}

func (s *Store) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// Load decodes the CBOR value stored under key.
// Returns nil, nil if the key is absent.
func Load[T any](s *Store, key string) (*T, error) {
	data, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v := new(T)
	if err := cbor.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

// Save encodes v as CBOR and commits it under key.
func Save[T any](s *Store, key string, v *T) error {
	data, err := blobEncMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(key, data)
}
