package service

import (
	"errors"
	"time"

	"github.com/ucbridge/ucbridge-go/pkg/midi"
	"github.com/ucbridge/ucbridge-go/pkg/transport"
	"github.com/ucbridge/ucbridge-go/pkg/wire"
)

// deviceHandler feeds one device connection into the service.
type deviceHandler struct {
	s    *Service
	id   string
	conn transport.DeviceConnection
}

// OnMessage implements transport.ConnectionHandler.
func (h *deviceHandler) OnMessage(msg wire.Message) {
	pv, ok := msg.(wire.ParameterValue)
	if !ok {
		return
	}
	if err := h.s.engine.SubmitDevice(h.id, pv.Path, pv.Value, time.Now()); err != nil {
		h.s.logger.Warn("dropping device value", "device", h.id, "path", pv.Path, "error", err)
		h.s.emitEvent(Event{Type: EventError, DeviceID: h.id, Path: pv.Path, Op: "queue", Error: err})
	}
}

// OnStateChange implements transport.ConnectionHandler.
func (h *deviceHandler) OnStateChange(oldState, newState transport.State) {
	h.s.mu.Lock()
	if handle, ok := h.s.known[h.id]; ok {
		handle.State = newState
		h.s.known[h.id] = handle
	}
	h.s.mu.Unlock()

	h.s.emitEvent(Event{
		Type:     EventConnectionStateChanged,
		DeviceID: h.id,
		OldState: oldState,
		NewState: newState,
	})

	if newState.IsTerminal() && h.conn != nil {
		h.s.dropConnection(h.id, h.conn)
	}
}

// OnError implements transport.ConnectionHandler.
func (h *deviceHandler) OnError(err error) {
	h.s.emitEvent(Event{Type: EventError, DeviceID: h.id, Op: opOf(err), Error: err})
}

func opOf(err error) string {
	var derr *transport.DeviceError
	if errors.As(err, &derr) {
		return derr.Op
	}
	var perr *midi.PortError
	if errors.As(err, &perr) {
		return perr.Op
	}
	return ""
}

// portHandler feeds the MIDI port manager into the service.
type portHandler struct {
	s *Service
}

// OnMessage implements midi.ManagerHandler. A message that completes a
// learn session is not synced.
func (h *portHandler) OnMessage(portID string, msg midi.Message, at time.Time) {
	if h.s.learn.Offer(msg) {
		return
	}
	if err := h.s.engine.SubmitMIDI(portID, msg, at); err != nil {
		h.s.logger.Warn("dropping midi message", "port", portID, "msg", msg, "error", err)
		h.s.emitEvent(Event{Type: EventError, PortID: portID, Op: "queue", Error: err})
	}
}

// OnPortChange implements midi.ManagerHandler.
func (h *portHandler) OnPortChange(change midi.PortChange) {
	h.s.emitEvent(Event{Type: EventPortListChanged, Ports: change.Ports})
}

// OnPortStatus implements midi.ManagerHandler.
func (h *portHandler) OnPortStatus(port midi.ControllerPort, _ midi.Status) {
	h.s.emitEvent(Event{Type: EventPortStatusChanged, PortID: port.ID(), Ports: []midi.ControllerPort{port}})
}

// OnError implements midi.ManagerHandler.
func (h *portHandler) OnError(err error) {
	var perr *midi.PortError
	portID := ""
	if errors.As(err, &perr) {
		portID = perr.PortID
	}
	h.s.emitEvent(Event{Type: EventError, PortID: portID, Op: opOf(err), Error: err})
}

// Compile-time interface satisfaction checks.
var (
	_ transport.ConnectionHandler = (*deviceHandler)(nil)
	_ midi.ManagerHandler         = (*portHandler)(nil)
)
