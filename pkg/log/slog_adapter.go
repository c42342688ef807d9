package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger.
//
// Window and mode transitions are logged at Info and error events at
// Warn. Everything else is logged at Debug.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event as structured attributes.
func (a *SlogAdapter) Log(event Event) {
	level, msg, payload := describe(event)

	attrs := []slog.Attr{slog.String("layer", event.Layer.String())}
	if event.Category == CategoryMessage {
		attrs = append(attrs, slog.String("direction", event.Direction.String()))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session", event.SessionID))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if event.Mode != "" {
		attrs = append(attrs, slog.String("mode", event.Mode))
	}
	attrs = append(attrs, payload...)

	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// describe picks the level, message and payload attributes for event.
func describe(event Event) (slog.Level, string, []slog.Attr) {
	switch {
	case event.Frame != nil:
		f := event.Frame
		attrs := []slog.Attr{
			slog.Int("size", f.Size),
			slog.Int("flags", int(f.Flags)),
			slog.Int("seq", int(f.Sequence)),
		}
		if f.Truncated {
			attrs = append(attrs, slog.Bool("truncated", true))
		}
		return slog.LevelDebug, "btp frame", attrs

	case event.Message != nil:
		m := event.Message
		attrs := []slog.Attr{
			slog.String("kind", m.Kind.String()),
			slog.Uint64("exchange", uint64(m.ExchangeID)),
		}
		if m.Opcode != 0 {
			attrs = append(attrs, slog.String("opcode", m.Opcode.String()))
		}
		if m.Path != nil {
			attrs = append(attrs, slog.String("path", m.Path.String()))
		}
		if m.Status != nil {
			attrs = append(attrs, slog.String("status", m.Status.String()))
		}
		if m.ProcessingTime != nil {
			attrs = append(attrs, slog.Duration("took", *m.ProcessingTime))
		}
		return slog.LevelDebug, "interaction " + m.Kind.String(), attrs

	case event.StateChange != nil:
		sc := event.StateChange
		attrs := []slog.Attr{
			slog.String("entity", sc.Entity.String()),
			slog.String("old_state", sc.OldState),
			slog.String("new_state", sc.NewState),
		}
		if sc.Reason != "" {
			attrs = append(attrs, slog.String("reason", sc.Reason))
		}
		level := slog.LevelDebug
		if sc.Entity == StateEntityMode || sc.Entity == StateEntityWindow {
			level = slog.LevelInfo
		}
		return level, "state change", attrs

	case event.Error != nil:
		attrs := []slog.Attr{
			slog.String("error", event.Error.Message),
			slog.String("context", event.Error.Context),
		}
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("code", *event.Error.Code))
		}
		return slog.LevelWarn, "protocol error", attrs
	}
	return slog.LevelDebug, "protocol", nil
}

var _ Logger = (*SlogAdapter)(nil)
