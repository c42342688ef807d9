package log

import (
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects capture records. Zero fields match everything.
type Filter struct {
	SessionID string
	Layer     *Layer
	Category  *Category
	Entity    *StateEntity
	// Mode matches the orchestrator mode recorded with the event.
	Mode      string
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Match reports whether event passes the filter.
func (f Filter) Match(event Event) bool {
	switch {
	case f.SessionID != "" && f.SessionID != event.SessionID:
	case f.Layer != nil && *f.Layer != event.Layer:
	case f.Category != nil && *f.Category != event.Category:
	case f.Entity != nil && (event.StateChange == nil || *f.Entity != event.StateChange.Entity):
	case f.Mode != "" && f.Mode != event.Mode:
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
	default:
		return true
	}
	return false
}

// Reader streams records from a capture file and, when present, the
// rotated segment written before it. The rotated segment is read first
// so records come out oldest first.
type Reader struct {
	segments []string
	file     *os.File
	dec      *cbor.Decoder
	filter   Filter
}

// NewReader opens the capture at path. The rotated segment path+".1" is
// included if it exists.
func NewReader(path string, filter Filter) (*Reader, error) {
	segments := []string{path}
	if _, err := os.Stat(path + ".1"); err == nil {
		segments = []string{path + ".1", path}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	r := &Reader{segments: segments, filter: filter}
	if err := r.advance(); err != nil {
		return nil, err
	}
	return r, nil
}

// advance closes the current segment and opens the next one.
func (r *Reader) advance() error {
	if r.file != nil {
		r.file.Close()
		r.file, r.dec = nil, nil
	}
	if len(r.segments) == 0 {
		return io.EOF
	}
	f, err := os.Open(r.segments[0])
	if err != nil {
		return err
	}
	r.segments = r.segments[1:]
	r.file, r.dec = f, NewDecoder(f)
	return nil
}

// Next returns the next matching record, or io.EOF once every segment is
// exhausted. A torn final record in a segment ends that segment.
func (r *Reader) Next() (Event, error) {
	for r.dec != nil {
		var event Event
		err := r.dec.Decode(&event)
		switch {
		case err == nil:
			if r.filter.Match(event) {
				return event, nil
			}
		case errors.Is(err, io.EOF) || tornRecord(err):
			if err := r.advance(); err != nil {
				return Event{}, err
			}
		default:
			return Event{}, err
		}
	}
	return Event{}, io.EOF
}

// All yields the remaining matching records. Iteration stops after the
// first read error, which is yielded with a zero Event.
func (r *Reader) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the open segment.
func (r *Reader) Close() error {
	r.segments = nil
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file, r.dec = nil, nil
	return err
}
