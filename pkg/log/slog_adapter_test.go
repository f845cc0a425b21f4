package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONSlog(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestSlogAdapterLogsFrameEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(newJSONSlog(&buf))

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		Frame:        &FrameEvent{Size: 24, Type: "PV"},
	})

	m := decodeLine(t, &buf)
	assert.Equal(t, "capture", m["msg"])
	assert.Equal(t, "DEBUG", m["level"])
	assert.Equal(t, "conn-123", m["conn_id"])
	assert.Equal(t, "IN", m["direction"])
	assert.Equal(t, float64(24), m["frame_size"])
	assert.Equal(t, "PV", m["frame_type"])
}

func TestSlogAdapterLogsParameterEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(newJSONSlog(&buf))

	latency := 2 * time.Millisecond
	adapter.Log(Event{
		Timestamp: time.Now(),
		Direction: DirectionOut,
		Layer:     LayerSync,
		Category:  CategoryMessage,
		DeviceID:  "SL32-0001",
		Parameter: &ParameterEvent{Path: "main/mute", Value: 1, Latency: &latency},
	})

	m := decodeLine(t, &buf)
	assert.Equal(t, "SL32-0001", m["device_id"])
	assert.Equal(t, "main/mute", m["path"])
	assert.Equal(t, float64(1), m["value"])
	assert.Equal(t, float64(latency), m["latency"])
}

func TestSlogAdapterLogsStateAndError(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(newJSONSlog(&buf))

	adapter.Log(Event{
		Category:    CategoryState,
		PortID:      "out:X-Touch",
		StateChange: &StateChangeEvent{Entity: StateEntityPort, OldState: "CONNECTED", NewState: "DISCONNECTED", Reason: "unplugged"},
	})
	m := decodeLine(t, &buf)
	assert.Equal(t, "out:X-Touch", m["port_id"])
	assert.Equal(t, "PORT", m["entity"])
	assert.Equal(t, "unplugged", m["reason"])

	buf.Reset()
	adapter.Log(Event{
		Category: CategoryError,
		Error:    &ErrorEventData{Layer: LayerWire, Message: "boom", Context: "decode"},
	})
	m = decodeLine(t, &buf)
	assert.Equal(t, "WIRE", m["error_layer"])
	assert.Equal(t, "boom", m["error_msg"])
}

func TestSlogAdapterSkipsBelowDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	NewSlogAdapter(logger).Log(Event{ControlMsg: &ControlMsgEvent{Type: ControlMsgKeepAlive}})

	if buf.Len() != 0 {
		t.Errorf("expected no output at info level, got %q", buf.String())
	}
}

func TestSlogAdapterInterfaceSatisfaction(t *testing.T) {
	var _ Logger = (*SlogAdapter)(nil)
}
