package midi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ucbridge/ucbridge-go/pkg/log"
)

// DefaultPollInterval is the hot-plug polling interval.
const DefaultPollInterval = time.Second

// ManagerHandler receives port traffic and lifecycle notifications.
// Callbacks may run on backend goroutines and must not block.
type ManagerHandler interface {
	// OnMessage is called for every decoded message on a connected input.
	OnMessage(portID string, msg Message, at time.Time)

	// OnPortChange is called when an enumeration pass adds or removes ports.
	OnPortChange(change PortChange)

	// OnPortStatus is called when a port's status changes.
	OnPortStatus(port ControllerPort, old Status)

	// OnError is called for errors not returned to a caller, such as read
	// errors and lost ports. Errors are *PortError where a port is known.
	OnError(err error)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Backend enumerates and opens ports.
	Backend Backend

	// PollInterval is the default Watch interval (default: 1s).
	PollInterval time.Duration

	// Logger receives operational logs (nil = discard).
	Logger *slog.Logger

	// ProtocolLogger captures MIDI traffic and port state changes (optional).
	ProtocolLogger log.Logger
}

// Manager tracks ports and their connections.
type Manager struct {
	config  ManagerConfig
	logger  *slog.Logger
	handler ManagerHandler

	mu       sync.Mutex
	entries  map[string]*portEntry
	snapshot []ControllerPort
}

type portEntry struct {
	port ControllerPort
	in   io.Closer
	out  Output
}

type statusChange struct {
	port ControllerPort
	old  Status
}

// NewManager creates a manager. handler may be nil.
func NewManager(config ManagerConfig, handler ManagerHandler) *Manager {
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if handler == nil {
		handler = nopHandler{}
	}
	return &Manager{
		config:  config,
		logger:  logger,
		handler: handler,
		entries: make(map[string]*portEntry),
	}
}

// Enumerate runs one enumeration pass and diffs it against the previous one.
// Connected ports that disappeared are closed and marked disconnected.
func (m *Manager) Enumerate() (PortChange, error) {
	ports, err := m.config.Backend.Ports()
	if err != nil {
		return PortChange{}, fmt.Errorf("enumerate midi ports: %w", err)
	}
	for i := range ports {
		ports[i].Status = StatusAvailable
	}
	numberDuplicates(ports)

	m.mu.Lock()
	added, removed := Diff(m.snapshot, ports)
	m.snapshot = ports

	var changes []statusChange
	var lost []string

	for _, p := range removed {
		e, ok := m.entries[p.ID()]
		if !ok {
			continue
		}
		if e.port.Status != StatusConnected {
			delete(m.entries, p.ID())
			continue
		}
		m.closeEntry(e)
		e.port.Status = StatusDisconnected
		changes = append(changes, statusChange{e.port, StatusConnected})
		lost = append(lost, p.ID())
	}

	current := make([]ControllerPort, 0, len(ports))
	for _, p := range ports {
		e, ok := m.entries[p.ID()]
		if !ok {
			e = &portEntry{port: p}
			m.entries[p.ID()] = e
		} else {
			e.port.Index = p.Index
			e.port.Manufacturer = p.Manufacturer
			if e.port.Status == StatusDisconnected {
				e.port.Status = StatusAvailable
				changes = append(changes, statusChange{e.port, StatusDisconnected})
			}
		}
		current = append(current, e.port)
	}
	m.mu.Unlock()

	sortPorts(current)
	change := PortChange{Added: added, Removed: removed, Ports: current}

	for _, id := range lost {
		m.logger.Warn("midi port lost while connected", "port", id)
		m.handler.OnError(portErr(id, "watch", ErrUnknownPort))
	}
	m.notifyStatus(changes)
	if change.Changed() {
		m.logger.Debug("midi ports changed", "added", len(added), "removed", len(removed))
		m.handler.OnPortChange(change)
	}
	return change, nil
}

// Watch polls Enumerate until ctx is done. interval 0 uses the configured
// poll interval. Enumeration errors go to the handler.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.config.PollInterval
	}

	if _, err := m.Enumerate(); err != nil {
		m.handler.OnError(err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Enumerate(); err != nil {
				m.handler.OnError(err)
			}
		}
	}
}

// Ports returns all known ports, including ones lost while connected.
func (m *Manager) Ports() []ControllerPort {
	m.mu.Lock()
	ports := make([]ControllerPort, 0, len(m.entries))
	for _, e := range m.entries {
		ports = append(ports, e.port)
	}
	m.mu.Unlock()

	sortPorts(ports)
	return ports
}

// Port returns one port by ID.
func (m *Manager) Port(portID string) (ControllerPort, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[portID]
	if !ok {
		return ControllerPort{}, false
	}
	return e.port, true
}

// Connect opens a port from the last enumeration.
func (m *Manager) Connect(portID string) error {
	m.mu.Lock()
	e, ok := m.entries[portID]
	if !ok || e.port.Status == StatusDisconnected {
		m.mu.Unlock()
		return portErr(portID, "connect", ErrUnknownPort)
	}
	if e.port.Status == StatusConnected {
		m.mu.Unlock()
		return portErr(portID, "connect", ErrPortAlreadyConnected)
	}

	var err error
	switch e.port.Direction {
	case DirectionIn:
		e.in, err = m.config.Backend.OpenIn(e.port,
			func(msg Message, at time.Time) { m.receive(portID, msg, at) },
			func(err error) { m.handler.OnError(portErr(portID, "read", err)) })
	case DirectionOut:
		e.out, err = m.config.Backend.OpenOut(e.port)
	}
	if err != nil {
		m.mu.Unlock()
		return portErr(portID, "connect", err)
	}

	old := e.port.Status
	e.port.Status = StatusConnected
	port := e.port
	m.mu.Unlock()

	m.logger.Info("midi port connected", "port", portID)
	m.notifyStatus([]statusChange{{port, old}})
	return nil
}

// Disconnect closes a connected port.
func (m *Manager) Disconnect(portID string) error {
	m.mu.Lock()
	e, ok := m.entries[portID]
	if !ok {
		m.mu.Unlock()
		return portErr(portID, "disconnect", ErrUnknownPort)
	}
	if e.port.Status != StatusConnected {
		m.mu.Unlock()
		return portErr(portID, "disconnect", ErrPortNotConnected)
	}
	err := m.closeEntry(e)
	e.port.Status = StatusAvailable
	port := e.port
	m.mu.Unlock()

	m.logger.Info("midi port disconnected", "port", portID)
	m.notifyStatus([]statusChange{{port, StatusConnected}})
	if err != nil {
		return portErr(portID, "disconnect", err)
	}
	return nil
}

// Send writes msg to one connected output.
func (m *Manager) Send(portID string, msg Message) error {
	m.mu.Lock()
	e, ok := m.entries[portID]
	if !ok {
		m.mu.Unlock()
		return portErr(portID, "send", ErrUnknownPort)
	}
	if e.port.Direction != DirectionOut {
		m.mu.Unlock()
		return portErr(portID, "send", ErrWrongDirection)
	}
	out := e.out
	m.mu.Unlock()

	if out == nil {
		return portErr(portID, "send", ErrPortNotConnected)
	}
	return m.send(portID, out, msg)
}

// Broadcast writes msg to every connected output. It returns the number of
// successful sends; failures are joined PortErrors.
func (m *Manager) Broadcast(msg Message) (int, error) {
	type target struct {
		id  string
		out Output
	}

	m.mu.Lock()
	var targets []target
	for id, e := range m.entries {
		if e.out != nil {
			targets = append(targets, target{id, e.out})
		}
	}
	m.mu.Unlock()

	var errs []error
	sent := 0
	for _, t := range targets {
		if err := m.send(t.id, t.out, msg); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// ConnectedOutputs returns the IDs of connected outputs.
func (m *Manager) ConnectedOutputs() []string {
	var ids []string
	for _, p := range m.Ports() {
		if p.Direction == DirectionOut && p.Status == StatusConnected {
			ids = append(ids, p.ID())
		}
	}
	return ids
}

// Close disconnects every port.
func (m *Manager) Close() error {
	var errs []error
	for _, p := range m.Ports() {
		if p.Status == StatusConnected {
			if err := m.Disconnect(p.ID()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) send(portID string, out Output, msg Message) error {
	if err := out.Send(msg); err != nil {
		return portErr(portID, "send", err)
	}
	m.logMessage(portID, msg, log.DirectionOut)
	return nil
}

func (m *Manager) receive(portID string, msg Message, at time.Time) {
	m.logMessage(portID, msg, log.DirectionIn)
	m.handler.OnMessage(portID, msg, at)
}

// closeEntry closes the entry's handles. Caller holds m.mu.
func (m *Manager) closeEntry(e *portEntry) error {
	var err error
	if e.in != nil {
		err = e.in.Close()
		e.in = nil
	}
	if e.out != nil {
		err = errors.Join(err, e.out.Close())
		e.out = nil
	}
	return err
}

func (m *Manager) notifyStatus(changes []statusChange) {
	for _, c := range changes {
		if m.config.ProtocolLogger != nil {
			m.config.ProtocolLogger.Log(log.Event{
				Timestamp: time.Now(),
				Layer:     log.LayerMIDI,
				Category:  log.CategoryState,
				PortID:    c.port.ID(),
				StateChange: &log.StateChangeEvent{
					Entity:   log.StateEntityPort,
					OldState: c.old.String(),
					NewState: c.port.Status.String(),
				},
			})
		}
		m.handler.OnPortStatus(c.port, c.old)
	}
}

func (m *Manager) logMessage(portID string, msg Message, dir log.Direction) {
	if m.config.ProtocolLogger == nil {
		return
	}
	raw, err := msg.Encode()
	if err != nil {
		return
	}
	m.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: dir,
		Layer:     log.LayerMIDI,
		Category:  log.CategoryMessage,
		PortID:    portID,
		Frame: &log.FrameEvent{
			Size: len(raw),
			Data: []byte(raw),
			Type: msg.Kind.String(),
		},
	})
}

type nopHandler struct{}

func (nopHandler) OnMessage(string, Message, time.Time) {}
func (nopHandler) OnPortChange(PortChange)               {}
func (nopHandler) OnPortStatus(ControllerPort, Status)   {}
func (nopHandler) OnError(error)                         {}
