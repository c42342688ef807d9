package nvs

import (
	"errors"
	"fmt"
)

// Limits mirror the vendor flash KV store.
const (
	// MaxKeyLen is the longest key or namespace name accepted.
	MaxKeyLen = 15

	// MaxValueSize is the largest blob accepted.
	MaxValueSize = 4096
)

// Partition errors.
var (
	ErrNotFound        = errors.New("key not found")
	ErrInvalidKey      = errors.New("invalid key")
	ErrValueTooLarge   = errors.New("value too large")
	ErrPartitionLocked = errors.New("partition locked by another process")
	ErrClosed          = errors.New("partition closed")
)

// Partition is a flash-backed key/value store divided into namespaces.
// Implementations must make Set and Delete durable before returning and
// must be safe for concurrent use.
type Partition interface {
	// Get returns a copy of the blob, or ErrNotFound.
	Get(namespace, key string) ([]byte, error)

	// Set stores the blob, replacing any previous value.
	Set(namespace, key string, value []byte) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(namespace, key string) error

	// EraseNamespace removes every key in the namespace.
	EraseNamespace(namespace string) error
}

func validateName(name string) error {
	if name == "" || len(name) > MaxKeyLen {
		return fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || c == '/' || c == '\\' {
			return fmt.Errorf("%w: %q", ErrInvalidKey, name)
		}
	}
	return nil
}

func validateEntry(namespace, key string, value []byte) error {
	if err := validateName(namespace); err != nil {
		return err
	}
	if err := validateName(key); err != nil {
		return err
	}
	if len(value) > MaxValueSize {
		return fmt.Errorf("%w: %d bytes", ErrValueTooLarge, len(value))
	}
	return nil
}
