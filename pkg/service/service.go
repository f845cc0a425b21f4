package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ucbridge/ucbridge-go/pkg/discovery"
	"github.com/ucbridge/ucbridge-go/pkg/learn"
	"github.com/ucbridge/ucbridge-go/pkg/log"
	"github.com/ucbridge/ucbridge-go/pkg/mapping"
	"github.com/ucbridge/ucbridge-go/pkg/midi"
	"github.com/ucbridge/ucbridge-go/pkg/shadow"
	"github.com/ucbridge/ucbridge-go/pkg/transport"
)

// ErrNoMIDIBackend is returned by NewService without a MIDI backend.
var ErrNoMIDIBackend = errors.New("no midi backend configured")

// ConnectionFactory creates a device connection. The default is
// transport.NewConnection.
type ConnectionFactory func(handle transport.DeviceHandle, config transport.ConnectionConfig, handler transport.ConnectionHandler) transport.DeviceConnection

// Config configures the bridge service.
type Config struct {
	// Discoverer finds devices. Usually a discovery.Multi.
	Discoverer discovery.Discoverer

	// Connection is the template for every device connection.
	Connection transport.ConnectionConfig

	// NewConnection overrides connection creation, for tests.
	NewConnection ConnectionFactory

	// MIDI is the port backend (required).
	MIDI midi.Backend

	// WatchPorts polls for port hot-plug while running.
	WatchPorts bool

	// PortPollInterval is the hot-plug poll interval (default: 1s).
	PortPollInterval time.Duration

	// LearnTimeout is the learn session length (default: 10s).
	LearnTimeout time.Duration

	// AddLearnedMappings adds the mapping produced by a successful learn
	// session to the active set.
	AddLearnedMappings bool

	// Shadow configures the shadow table.
	Shadow shadow.Config

	// ShadowSweepInterval is the eviction sweep interval (default: 1s).
	ShadowSweepInterval time.Duration

	// Engine configures the sync engine. OnEvent is set by the service.
	Engine EngineConfig

	// Logger receives operational logs (nil = discard).
	Logger *slog.Logger

	// ProtocolLogger receives capture events from every layer (nil = disabled).
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default service configuration without a
// discoverer or MIDI backend.
func DefaultConfig() Config {
	return Config{
		Connection:          transport.DefaultConnectionConfig(),
		PortPollInterval:    midi.DefaultPollInterval,
		LearnTimeout:        learn.DefaultTimeout,
		AddLearnedMappings:  true,
		ShadowSweepInterval: shadow.DefaultSweepInterval,
		Engine:              DefaultEngineConfig(),
	}
}

// Service is the bridge between controllers and devices.
type Service struct {
	config Config
	logger *slog.Logger

	mu            sync.RWMutex
	state         ServiceState
	known         map[string]transport.DeviceHandle
	conns         map[string]transport.DeviceConnection
	eventHandlers []EventHandler

	ports    *midi.Manager
	mappings *mapping.Set
	learn    *learn.Machine
	shadow   *shadow.Table
	engine   *Engine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a stopped service.
func NewService(config Config) (*Service, error) {
	if config.MIDI == nil {
		return nil, ErrNoMIDIBackend
	}
	if config.NewConnection == nil {
		config.NewConnection = func(h transport.DeviceHandle, c transport.ConnectionConfig, hd transport.ConnectionHandler) transport.DeviceConnection {
			return transport.NewConnection(h, c, hd)
		}
	}
	if config.PortPollInterval == 0 {
		config.PortPollInterval = midi.DefaultPollInterval
	}
	if config.ShadowSweepInterval == 0 {
		config.ShadowSweepInterval = shadow.DefaultSweepInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.Connection.Logger == nil {
		config.Connection.Logger = logger
	}
	if config.Connection.ProtocolLogger == nil {
		config.Connection.ProtocolLogger = config.ProtocolLogger
	}

	s := &Service{
		config:   config,
		logger:   logger,
		state:    StateIdle,
		known:    make(map[string]transport.DeviceHandle),
		conns:    make(map[string]transport.DeviceConnection),
		mappings: mapping.NewSet(),
		shadow:   shadow.New(config.Shadow),
	}

	s.ports = midi.NewManager(midi.ManagerConfig{
		Backend:        config.MIDI,
		PollInterval:   config.PortPollInterval,
		Logger:         logger.With("component", "midi"),
		ProtocolLogger: config.ProtocolLogger,
	}, &portHandler{s: s})

	engineConfig := config.Engine
	engineConfig.OnEvent = s.emitEvent
	if engineConfig.Logger == nil {
		engineConfig.Logger = logger.With("component", "sync")
	}
	if engineConfig.ProtocolLogger == nil {
		engineConfig.ProtocolLogger = config.ProtocolLogger
	}
	s.engine = NewEngine(engineConfig, s.mappings, s.shadow, s, s.ports)

	s.learn = learn.NewMachine(learn.Config{
		Timeout:       config.LearnTimeout,
		OnStateChange: s.handleLearnState,
		OnResult:      s.handleLearnResult,
		Logger:        logger.With("component", "learn"),
	})

	return s, nil
}

// OnEvent registers a handler for service events. Handlers run on their own
// goroutine per event.
func (s *Service) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// State returns the service state.
func (s *Service) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Start runs the sync engine, the shadow sweeper and, if configured, the
// port watcher, after an initial port enumeration.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	if _, err := s.ports.Enumerate(); err != nil {
		s.logger.Warn("initial midi port enumeration failed", "error", err)
		s.emitEvent(Event{Type: EventError, Op: "enumerate-ports", Error: err})
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.engine.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.shadow.Run(runCtx, s.config.ShadowSweepInterval)
	}()
	if s.config.WatchPorts {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ports.Watch(runCtx, s.config.PortPollInterval)
		}()
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("bridge started", "mappings", s.mappings.Len(), "watch_ports", s.config.WatchPorts)
	return nil
}

// Stop cancels any learn session, disconnects all devices and ports, and
// waits for background tasks.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	cancel := s.cancel
	conns := make([]transport.DeviceConnection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	_ = s.learn.Cancel()

	for _, c := range conns {
		if c.State() == transport.StateConnected {
			if err := c.Disconnect(); err != nil {
				s.logger.Warn("disconnect on stop failed", "device", c.ID(), "error", err)
			}
		}
	}
	if err := s.ports.Close(); err != nil {
		s.logger.Warn("closing midi ports failed", "error", err)
	}

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.conns = make(map[string]transport.DeviceConnection)
	s.state = StateStopped
	s.mu.Unlock()

	s.logger.Info("bridge stopped")
	return nil
}

// DiscoverDevices runs device discovery and replaces the known device list.
// Devices with a live connection stay known even if they were not found.
func (s *Service) DiscoverDevices(ctx context.Context) ([]transport.DeviceHandle, error) {
	if s.config.Discoverer == nil {
		return nil, s.reject("discover", "", ErrNoDiscoverer)
	}

	found, err := s.config.Discoverer.Discover(ctx)
	if err != nil {
		return nil, s.reject("discover", "", err)
	}
	found = discovery.Dedup(found)

	s.mu.Lock()
	known := make(map[string]transport.DeviceHandle, len(found))
	for _, h := range found {
		known[h.ID()] = h
	}
	for id, c := range s.conns {
		known[id] = c.Handle()
	}
	s.known = known
	s.mu.Unlock()

	devices := s.Devices()
	s.logger.Info("device discovery finished", "found", len(found))
	s.emitEvent(Event{Type: EventDeviceListChanged, Devices: devices})
	return devices, nil
}

// Devices returns known devices sorted by id, with live connection state.
func (s *Service) Devices() []transport.DeviceHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]transport.DeviceHandle, 0, len(s.known))
	for id, h := range s.known {
		if c, ok := s.conns[id]; ok {
			h = c.Handle()
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ConnectDevice connects a discovered device. Handshake failures are
// reported through the connection's own error and state events.
func (s *Service) ConnectDevice(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return s.reject("connect", deviceID, ErrNotStarted)
	}
	handle, ok := s.known[deviceID]
	if !ok {
		s.mu.Unlock()
		return s.reject("connect", deviceID, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID))
	}
	if c, ok := s.conns[deviceID]; ok {
		st := c.State()
		if st == transport.StateConnecting || st == transport.StateConnected {
			s.mu.Unlock()
			return s.reject("connect", deviceID, fmt.Errorf("%w: %s", ErrAlreadyConnected, deviceID))
		}
	}

	handler := &deviceHandler{s: s, id: deviceID}
	conn := s.config.NewConnection(handle, s.config.Connection, handler)
	handler.conn = conn
	s.conns[deviceID] = conn
	s.mu.Unlock()

	if err := conn.Connect(ctx); err != nil {
		s.dropConnection(deviceID, conn)
		return err
	}
	return nil
}

// DisconnectDevice closes a device connection and clears its shadow state.
func (s *Service) DisconnectDevice(deviceID string) error {
	s.mu.RLock()
	conn, ok := s.conns[deviceID]
	s.mu.RUnlock()
	if !ok {
		return s.reject("disconnect", deviceID, fmt.Errorf("%w: %s", ErrNotConnected, deviceID))
	}
	if err := conn.Disconnect(); err != nil {
		return s.reject("disconnect", deviceID, err)
	}
	s.dropConnection(deviceID, conn)
	return nil
}

// WriteParameter implements DeviceWriter for the engine.
func (s *Service) WriteParameter(deviceID, path string, value float32) error {
	s.mu.RLock()
	conn, ok := s.conns[deviceID]
	s.mu.RUnlock()
	if !ok {
		return &transport.DeviceError{DeviceID: deviceID, Op: "write", Err: transport.ErrNotConnected}
	}
	return conn.WriteParameter(path, value)
}

// dropConnection forgets conn if it is still the registered connection for
// deviceID, and clears the device's shadow entries.
func (s *Service) dropConnection(deviceID string, conn transport.DeviceConnection) {
	s.mu.Lock()
	if cur, ok := s.conns[deviceID]; ok && cur == conn {
		delete(s.conns, deviceID)
		if h, known := s.known[deviceID]; known {
			h.State = conn.State()
			s.known[deviceID] = h
		}
	}
	s.mu.Unlock()

	if n := s.shadow.Clear(deviceID); n > 0 {
		s.logger.Debug("cleared shadow state", "device", deviceID, "entries", n)
	}
}

// DiscoverPorts enumerates MIDI ports now.
func (s *Service) DiscoverPorts() (midi.PortChange, error) {
	change, err := s.ports.Enumerate()
	if err != nil {
		return midi.PortChange{}, s.reject("discover-ports", "", err)
	}
	return change, nil
}

// Ports returns the known MIDI ports.
func (s *Service) Ports() []midi.ControllerPort {
	return s.ports.Ports()
}

// ConnectPort opens a MIDI port.
func (s *Service) ConnectPort(portID string) error {
	if s.State() != StateRunning {
		return s.rejectPort("port-connect", portID, ErrNotStarted)
	}
	if err := s.ports.Connect(portID); err != nil {
		return s.rejectPort("port-connect", portID, err)
	}
	return nil
}

// DisconnectPort closes a MIDI port.
func (s *Service) DisconnectPort(portID string) error {
	if err := s.ports.Disconnect(portID); err != nil {
		return s.rejectPort("port-disconnect", portID, err)
	}
	return nil
}

// AddMapping validates and adds m. An empty ID is assigned.
func (s *Service) AddMapping(m mapping.ParameterMapping) (mapping.ParameterMapping, error) {
	added, err := s.mappings.Add(m)
	if err != nil {
		return mapping.ParameterMapping{}, s.reject("map", m.Target.DeviceID, err)
	}
	s.logger.Info("mapping added", "id", added.ID, "source", added.Source, "target", added.Target)
	return added, nil
}

// RemoveMapping removes the mapping with id.
func (s *Service) RemoveMapping(id string) (mapping.ParameterMapping, error) {
	removed, err := s.mappings.Remove(id)
	if err != nil {
		return mapping.ParameterMapping{}, s.reject("unmap", "", err)
	}
	s.engine.ForgetSource(removed)
	s.logger.Info("mapping removed", "id", id)
	return removed, nil
}

// ClearMappings removes every mapping and returns how many were removed.
func (s *Service) ClearMappings() int {
	removed := s.mappings.Clear()
	s.engine.ResetSources()
	s.logger.Info("mappings cleared", "count", len(removed))
	return len(removed)
}

// ReplaceMappings atomically replaces the mapping set. On error the
// previous set stays active.
func (s *Service) ReplaceMappings(ms []mapping.ParameterMapping) ([]mapping.ParameterMapping, error) {
	stored, err := s.mappings.Replace(ms)
	if err != nil {
		return nil, s.reject("replace-mappings", "", err)
	}
	s.engine.ResetSources()
	s.logger.Info("mappings replaced", "count", len(stored))
	return stored, nil
}

// Mappings returns the active mappings.
func (s *Service) Mappings() []mapping.ParameterMapping {
	return s.mappings.All()
}

// StartLearn starts a learn session for req.
func (s *Service) StartLearn(req learn.Request) (learn.SessionID, error) {
	if s.State() != StateRunning {
		return 0, s.reject("learn", req.DeviceID, ErrNotStarted)
	}
	id, err := s.learn.Start(req)
	if err != nil {
		return 0, s.reject("learn", req.DeviceID, err)
	}
	return id, nil
}

// CancelLearn cancels the active learn session.
func (s *Service) CancelLearn() error {
	if err := s.learn.Cancel(); err != nil {
		return s.reject("cancel-learn", "", err)
	}
	return nil
}

// LearnState returns the learn machine state.
func (s *Service) LearnState() learn.State {
	return s.learn.State()
}

// LatencyStats returns the forward-path latency aggregate.
func (s *Service) LatencyStats() LatencyStats {
	return s.engine.LatencyStats()
}

// ClearLatencyStats resets the latency aggregate.
func (s *Service) ClearLatencyStats() {
	s.engine.ClearLatencyStats()
	s.emitEvent(Event{Type: EventLatencyStatsUpdated})
}

// ClearShadow drops the shadow entries of one device.
func (s *Service) ClearShadow(deviceID string) int {
	return s.shadow.Clear(deviceID)
}

// ClearAllShadow drops every shadow entry.
func (s *Service) ClearAllShadow() int {
	return s.shadow.ClearAll()
}

func (s *Service) handleLearnState(st learn.State) {
	s.emitEvent(Event{Type: EventLearnStateChanged, LearnState: st})
	if s.config.ProtocolLogger != nil {
		s.config.ProtocolLogger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerSync,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityLearn,
				NewState: st.String(),
			},
		})
	}
}

func (s *Service) handleLearnResult(res learn.Result) {
	if res.Outcome == learn.OutcomeSuccess {
		s.engine.ForgetSource(res.Mapping)
		if s.config.AddLearnedMappings {
			added, err := s.mappings.Add(res.Mapping)
			if err != nil {
				s.logger.Warn("learned mapping rejected", "error", err)
				s.emitEvent(Event{Type: EventError, DeviceID: res.Mapping.Target.DeviceID, Op: "learn", Error: err})
			} else {
				res.Mapping = added
			}
		}
	}
	s.emitEvent(Event{Type: EventLearnResult, DeviceID: res.Mapping.Target.DeviceID, LearnResult: &res})
}

// reject reports a failed command and returns err.
func (s *Service) reject(op, deviceID string, err error) error {
	s.logger.Debug("command rejected", "op", op, "device", deviceID, "error", err)
	s.emitEvent(Event{Type: EventError, DeviceID: deviceID, Op: op, Error: err})
	return err
}

func (s *Service) rejectPort(op, portID string, err error) error {
	s.logger.Debug("command rejected", "op", op, "port", portID, "error", err)
	s.emitEvent(Event{Type: EventError, PortID: portID, Op: op, Error: err})
	return err
}

// emitEvent sends an event to all registered handlers.
func (s *Service) emitEvent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.mu.RLock()
	handlers := s.eventHandlers
	s.mu.RUnlock()
	for _, handler := range handlers {
		go handler(event)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ DeviceWriter = (*Service)(nil)
	_ MIDISender   = (*midi.Manager)(nil)
)
