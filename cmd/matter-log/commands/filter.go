package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/log"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	SessionID string
	TimeStart string
	TimeEnd   string
	Layer     string
	Category  string
	Entity    string
	Mode      string
}

func (o FilterOptions) filter() (log.Filter, error) {
	filter := log.Filter{SessionID: o.SessionID, Mode: strings.ToUpper(o.Mode)}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if o.Layer != "" {
		l, err := ParseLayer(o.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if o.Category != "" {
		c, err := ParseCategory(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if o.Entity != "" {
		e, err := ParseEntity(o.Entity)
		if err != nil {
			return filter, err
		}
		filter.Entity = &e
	}
	return filter, nil
}

// RunFilter copies the matching events of path into opts.Output and
// reports how many were written.
func RunFilter(path string, opts FilterOptions, w io.Writer) error {
	filter, err := opts.filter()
	if err != nil {
		return err
	}

	reader, err := log.NewReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	// No rotation: the output holds the whole selection.
	logger, err := log.NewFileLogger(opts.Output, 1<<62)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer logger.Close()

	count := 0
	for event, err := range reader.All() {
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, opts.Output)
	return nil
}
