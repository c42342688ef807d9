// Package commands implements the matter-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	Entity    *log.StateEntity
}

func (f ViewFilter) matches(e log.Event) bool {
	if f.Layer != nil && e.Layer != *f.Layer {
		return false
	}
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	if f.Category != nil && e.Category != *f.Category {
		return false
	}
	if f.Entity != nil && (e.StateChange == nil || e.StateChange.Entity != *f.Entity) {
		return false
	}
	return true
}

// typeLabel names the payload carried by an event.
func typeLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Message != nil:
		return event.Message.Kind.String()
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	}
	return "Unknown"
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// timestamp [session] DIRECTION LAYER Type (mode)
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [%s] %-3s %s %s", ts, shortenSessionID(event.SessionID),
		event.Direction.String(), event.Layer.String(), typeLabel(event))
	if event.Mode != "" {
		fmt.Fprintf(w, " (%s)", event.Mode)
	}
	fmt.Fprintln(w)

	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Peer: %s\n", event.RemoteAddr)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenSessionID returns the first 8 characters of the session ID, or
// "-" for lifecycle events outside a session.
func shortenSessionID(id string) string {
	switch {
	case id == "":
		return "-"
	case len(id) > 8:
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if frame.Flags != 0 || frame.Sequence != 0 {
		fmt.Fprintf(w, "  Flags: 0x%02x  Seq: %d\n", frame.Flags, frame.Sequence)
	}
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  Exchange: %d\n", msg.ExchangeID)
	if msg.Opcode != 0 {
		fmt.Fprintf(w, "  Opcode: %s\n", msg.Opcode.String())
	}
	if msg.Path != nil {
		fmt.Fprintf(w, "  Path: %s\n", msg.Path.String())
	}
	if msg.Status != nil {
		fmt.Fprintf(w, "  Status: %s (0x%02X)\n", msg.Status.String(), uint8(*msg.Status))
	}
	if msg.SubscriptionID != 0 {
		fmt.Fprintf(w, "  Subscription: %d\n", msg.SubscriptionID)
	}
	if msg.ProcessingTime != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*msg.ProcessingTime))
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "btp":
		return log.LayerBTP, nil
	case "udp":
		return log.LayerUDP, nil
	case "interaction":
		return log.LayerInteraction, nil
	case "stack":
		return log.LayerStack, nil
	}
	return 0, fmt.Errorf("invalid layer: %s (must be btp, udp, interaction, or stack)", s)
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	}
	return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	}
	return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
}

// ParseEntity parses a state entity name (case-insensitive).
func ParseEntity(s string) (log.StateEntity, error) {
	switch strings.ToLower(s) {
	case "mode":
		return log.StateEntityMode, nil
	case "window":
		return log.StateEntityWindow, nil
	case "link":
		return log.StateEntityLink, nil
	case "radio":
		return log.StateEntityRadio, nil
	case "pipe":
		return log.StateEntityPipe, nil
	}
	return 0, fmt.Errorf("invalid entity: %s (must be mode, window, link, radio, or pipe)", s)
}

// RunView prints every matching event in path.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewReader(path, log.Filter{})
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if filter.matches(event) {
			formatEvent(output, event)
		}
	}
}
