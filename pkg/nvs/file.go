package nvs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// FilePartition stores each key as a file under dir/<namespace>/.
// Writes go to a temporary file that is fsynced and renamed over the old
// value, then the directory is fsynced, so a reader after power loss sees
// either the old or the new blob. An advisory lock on dir/.lock keeps a
// second process from opening the same partition.
type FilePartition struct {
	mu     sync.RWMutex
	dir    string
	lock   *flock.Flock
	closed bool
}

// OpenFilePartition opens (creating if needed) a partition rooted at dir.
// Returns ErrPartitionLocked if another process holds it.
func OpenFilePartition(dir string) (*FilePartition, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create partition dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock partition: %w", err)
	}
	if !ok {
		return nil, ErrPartitionLocked
	}

	return &FilePartition{dir: dir, lock: lock}, nil
}

// Close releases the partition lock.
func (p *FilePartition) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.lock.Unlock()
}

// Get reads the blob stored under namespace/key.
func (p *FilePartition) Get(namespace, key string) ([]byte, error) {
	if err := validateEntry(namespace, key, nil); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}
	data, err := os.ReadFile(filepath.Join(p.dir, namespace, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set atomically replaces the blob and syncs it to disk.
func (p *FilePartition) Set(namespace, key string, value []byte) error {
	if err := validateEntry(namespace, key, value); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	nsDir := filepath.Join(p.dir, namespace)
	if err := os.MkdirAll(nsDir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(nsDir, "."+key+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(nsDir, key)); err != nil {
		return err
	}
	return syncDir(nsDir)
}

// Delete removes the key and syncs the namespace directory.
func (p *FilePartition) Delete(namespace, key string) error {
	if err := validateEntry(namespace, key, nil); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	nsDir := filepath.Join(p.dir, namespace)
	err := os.Remove(filepath.Join(nsDir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return syncDir(nsDir)
}

// EraseNamespace removes the namespace directory.
func (p *FilePartition) EraseNamespace(namespace string) error {
	if err := validateName(namespace); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if err := os.RemoveAll(filepath.Join(p.dir, namespace)); err != nil {
		return err
	}
	return syncDir(p.dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

var _ Partition = (*FilePartition)(nil)
