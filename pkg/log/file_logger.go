package log

import (
	"os"
	"sync"
)

// DefaultMaxFileBytes bounds a capture file before it is rotated.
const DefaultMaxFileBytes = 256 * 1024

// FileLogger writes events to a CBOR capture file.
// When the file grows past its size limit it is renamed to path+".1"
// (replacing any older rotation) and a fresh file is started, so flash
// usage stays bounded at two files.
type FileLogger struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	size     int64
	maxBytes int64
	closed   bool
}

// NewFileLogger opens (or appends to) the capture file at path.
// maxBytes <= 0 selects DefaultMaxFileBytes.
func NewFileLogger(path string, maxBytes int64) (*FileLogger, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	l := &FileLogger{path: path, maxBytes: maxBytes}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.file = f
	l.size = info.Size()
	return nil
}

// Log appends an event. Encoding and I/O errors are dropped.
func (l *FileLogger) Log(event Event) {
	data, err := EncodeEvent(event)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if l.size > 0 && l.size+int64(len(data)) > l.maxBytes {
		if err := l.rotate(); err != nil {
			return
		}
	}
	n, _ := l.file.Write(data)
	l.size += int64(n)
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return err
	}
	return l.open()
}

// Close closes the capture file. Further Log calls are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
