package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/log"
	"github.com/mash-protocol/matter-stack/pkg/wire"
)

func TestFormatFrameEvent(t *testing.T) {
	event := log.Event{
		Timestamp:  time.Date(2026, 3, 2, 10, 15, 32, 123456000, time.UTC),
		SessionID:  "abc12345-6789",
		Direction:  log.DirectionOut,
		Layer:      log.LayerBTP,
		Category:   log.CategoryMessage,
		RemoteAddr: "ble:central-1",
		Frame: &log.FrameEvent{
			Size:      20,
			Flags:     0x05,
			Sequence:  3,
			Data:      []byte{0xa1, 0x01},
			Truncated: true,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{
		"2026-03-02T10:15:32.123456Z",
		"[abc12345]",
		"OUT",
		"BTP Frame",
		"Peer: ble:central-1",
		"Size: 20 bytes",
		"Flags: 0x05  Seq: 3",
		"Data: a101 (truncated)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFormatMessageEvent(t *testing.T) {
	status := wire.StatusConstraintError
	elapsed := 1500 * time.Microsecond
	event := log.Event{
		Timestamp: time.Date(2026, 3, 2, 10, 15, 32, 0, time.UTC),
		SessionID: "sess",
		Direction: log.DirectionOut,
		Layer:     log.LayerInteraction,
		Category:  log.CategoryMessage,
		Mode:      "OPERATING",
		Message: &log.MessageEvent{
			Kind:           wire.KindResponse,
			ExchangeID:     42,
			Opcode:         wire.OpInvoke,
			Path:           &wire.Path{Endpoint: 1, Cluster: 0x0008, ID: 0},
			Status:         &status,
			ProcessingTime: &elapsed,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{
		"INTERACTION RESPONSE (OPERATING)",
		"Exchange: 42",
		"Opcode: Invoke",
		"Path: 1/0x0008/0x0000",
		"(0x87)",
		"Duration: 1.500ms",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFormatStateChangeEvent(t *testing.T) {
	event := log.StateChange(log.LayerStack, log.StateEntityWindow, "CLOSED", "OPEN", "READVERTISE")

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{"[-]", "STACK State", "Entity: WINDOW", "CLOSED -> OPEN", "Reason: READVERTISE"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFormatErrorEvent(t *testing.T) {
	code := 3
	event := log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerStack,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerStack,
			Message: "flash write failed",
			Code:    &code,
			Context: "factory reset",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{"STACK Error", "Message: flash write failed", "Code: 3", "Context: factory reset"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Nanosecond, "0.500us"},
		{2500 * time.Microsecond, "2.500ms"},
		{1500 * time.Millisecond, "1.500s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayer("BTP"); err != nil || l != log.LayerBTP {
		t.Errorf("ParseLayer(BTP) = %v, %v", l, err)
	}
	if l, err := ParseLayer("stack"); err != nil || l != log.LayerStack {
		t.Errorf("ParseLayer(stack) = %v, %v", l, err)
	}
	if _, err := ParseLayer("wire"); err == nil {
		t.Error("expected error for unknown layer")
	}
	if d, err := ParseDirection("In"); err != nil || d != log.DirectionIn {
		t.Errorf("ParseDirection(In) = %v, %v", d, err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
	if c, err := ParseCategory("error"); err != nil || c != log.CategoryError {
		t.Errorf("ParseCategory(error) = %v, %v", c, err)
	}
	if _, err := ParseCategory("control"); err == nil {
		t.Error("expected error for unknown category")
	}
	if e, err := ParseEntity("radio"); err != nil || e != log.StateEntityRadio {
		t.Errorf("ParseEntity(radio) = %v, %v", e, err)
	}
	if _, err := ParseEntity("zone"); err == nil {
		t.Error("expected error for unknown entity")
	}
}

func TestRunViewFilters(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	entity := log.StateEntityMode
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Entity: &entity}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if n := strings.Count(buf.String(), "Entity: MODE"); n != 1 {
		t.Errorf("expected one mode event, got %d:\n%s", n, buf.String())
	}
	if strings.Contains(buf.String(), "Frame") {
		t.Error("frame should be filtered out")
	}

	dir := log.DirectionOut
	layer := log.LayerInteraction
	buf.Reset()
	if err := RunView(path, ViewFilter{Direction: &dir, Layer: &layer}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Exchange: 7") || strings.Contains(buf.String(), "Entity:") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestRunViewMissingFile(t *testing.T) {
	var buf bytes.Buffer
	if err := RunView("/nonexistent/capture.cbor", ViewFilter{}, &buf); err == nil {
		t.Error("expected error for missing file")
	}
}
