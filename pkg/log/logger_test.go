package log

import (
	"sync"
	"testing"
	"time"
)

// recordingLogger records events.
type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingLogger) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestNoopLoggerAcceptsEveryPayload(t *testing.T) {
	var logger NoopLogger
	for _, e := range []Event{
		{Frame: &FrameEvent{Size: 10}},
		{Parameter: &ParameterEvent{Path: "line/ch1/volume", Value: 0.5}},
		{StateChange: &StateChangeEvent{Entity: StateEntityLearn, NewState: "LISTENING"}},
		{ControlMsg: &ControlMsgEvent{Type: ControlMsgKeepAlive}},
		{Error: &ErrorEventData{Message: "boom"}},
	} {
		logger.Log(e)
	}
}

func TestLoggerFunc(t *testing.T) {
	var got []string
	logger := LoggerFunc(func(e Event) { got = append(got, e.DeviceID) })

	logger.Log(Event{DeviceID: "SL32R-1234"})
	logger.Log(Event{DeviceID: "QM-7"})

	if len(got) != 2 || got[0] != "SL32R-1234" || got[1] != "QM-7" {
		t.Errorf("got %v, want [SL32R-1234 QM-7]", got)
	}
}

func TestMultiLogger(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	multi := NewMultiLogger(a, nil, b)

	multi.Log(Event{Timestamp: time.Now(), ConnectionID: "conn-1"})
	multi.Log(Event{Timestamp: time.Now(), ConnectionID: "conn-2"})

	for name, r := range map[string]*recordingLogger{"a": a, "b": b} {
		events := r.Events()
		if len(events) != 2 {
			t.Fatalf("logger %s got %d events, want 2", name, len(events))
		}
		if events[1].ConnectionID != "conn-2" {
			t.Errorf("logger %s second event = %q, want conn-2", name, events[1].ConnectionID)
		}
	}
}

func TestMultiLoggerEmpty(t *testing.T) {
	NewMultiLogger().Log(Event{})
	NewMultiLogger(nil, nil).Log(Event{})
}

func TestFilterLogger(t *testing.T) {
	rec := &recordingLogger{}
	layer := LayerSync
	logger := NewFilterLogger(rec, Filter{Layer: &layer})

	logger.Log(Event{Layer: LayerTransport, Frame: &FrameEvent{Size: 8}})
	logger.Log(Event{Layer: LayerSync, Parameter: &ParameterEvent{Path: "main/volume", Value: 0.7}})
	logger.Log(Event{Layer: LayerMIDI, PortID: "in:X-Touch"})

	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Parameter == nil || events[0].Parameter.Path != "main/volume" {
		t.Errorf("forwarded %+v, want the main/volume event", events[0])
	}
}
