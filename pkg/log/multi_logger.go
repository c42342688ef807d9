package log

import (
	"errors"
	"io"
)

// sink is one destination of a MultiLogger.
type sink struct {
	logger Logger
	filter *Filter
}

// MultiLogger fans events out to several sinks, e.g. a SlogAdapter on
// the console and a FileLogger on flash. A sink may carry a Filter so
// that only part of the traffic reaches it.
type MultiLogger struct {
	sinks []sink
}

// NewMultiLogger creates a MultiLogger that forwards every event to each
// of loggers. Nil loggers are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		m.add(l, nil)
	}
	return m
}

// AddFiltered adds a sink that only receives events matching f.
func (m *MultiLogger) AddFiltered(l Logger, f Filter) *MultiLogger {
	m.add(l, &f)
	return m
}

func (m *MultiLogger) add(l Logger, f *Filter) {
	if l == nil {
		return
	}
	m.sinks = append(m.sinks, sink{logger: l, filter: f})
}

// Log forwards event to each sink whose filter accepts it.
func (m *MultiLogger) Log(event Event) {
	for _, s := range m.sinks {
		if s.filter == nil || s.filter.Match(event) {
			s.logger.Log(event)
		}
	}
}

// Close closes every sink that implements io.Closer.
func (m *MultiLogger) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.logger.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

var _ Logger = (*MultiLogger)(nil)
