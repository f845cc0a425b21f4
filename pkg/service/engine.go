package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ucbridge/ucbridge-go/pkg/log"
	"github.com/ucbridge/ucbridge-go/pkg/mapping"
	"github.com/ucbridge/ucbridge-go/pkg/midi"
	"github.com/ucbridge/ucbridge-go/pkg/shadow"
	"github.com/ucbridge/ucbridge-go/pkg/translate"
)

// DefaultQueueSize is the capacity of the engine's inbound queue.
const DefaultQueueSize = 1024

// DeviceWriter hands parameter writes to the device transport.
type DeviceWriter interface {
	WriteParameter(deviceID, path string, value float32) error
}

// MIDISender sends reverse-path messages to every connected MIDI output.
// Implemented by *midi.Manager.
type MIDISender interface {
	Broadcast(msg midi.Message) (int, error)
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// QueueSize is the inbound queue capacity (default: 1024).
	QueueSize int

	// LatencyWarning is the forward-path budget (default: 10ms).
	LatencyWarning time.Duration

	// OnEvent receives engine events synchronously from the processing
	// goroutine. It must not block.
	OnEvent func(Event)

	// Logger receives operational logs (nil = discard).
	Logger *slog.Logger

	// ProtocolLogger receives sync-layer capture events (nil = disabled).
	ProtocolLogger log.Logger
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		QueueSize:      DefaultQueueSize,
		LatencyWarning: DefaultLatencyWarning,
	}
}

type inboundKind uint8

const (
	inboundMIDI inboundKind = iota
	inboundDevice
)

// inbound is one queued event. MIDI fields or device fields are set
// according to kind.
type inbound struct {
	kind     inboundKind
	received time.Time

	portID string
	msg    midi.Message

	deviceID string
	path     string
	value    float32
}

// Engine is the sync engine. Producers call SubmitMIDI and SubmitDevice from
// their listener goroutines; Run consumes the queue in arrival order, so
// translation, shadow comparison and writes happen on a single goroutine.
type Engine struct {
	config   EngineConfig
	logger   *slog.Logger
	mappings *mapping.Set
	shadow   *shadow.Table
	msb      *translate.MSBCache
	devices  DeviceWriter
	out      MIDISender
	latency  *latencyTracker

	queue   chan inbound
	step    atomic.Uint64
	dropped atomic.Uint64
}

// NewEngine creates an engine over the given mapping set and shadow table.
func NewEngine(config EngineConfig, mappings *mapping.Set, table *shadow.Table, devices DeviceWriter, out MIDISender) *Engine {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.LatencyWarning == 0 {
		config.LatencyWarning = DefaultLatencyWarning
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{
		config:   config,
		logger:   logger,
		mappings: mappings,
		shadow:   table,
		msb:      translate.NewMSBCache(),
		devices:  devices,
		out:      out,
		latency:  newLatencyTracker(config.LatencyWarning),
		queue:    make(chan inbound, config.QueueSize),
	}
}

// SubmitMIDI queues a controller message received at at. It never blocks;
// a full queue drops the message and returns ErrQueueFull.
func (e *Engine) SubmitMIDI(portID string, msg midi.Message, at time.Time) error {
	return e.submit(inbound{kind: inboundMIDI, received: at, portID: portID, msg: msg})
}

// SubmitDevice queues a parameter value reported by a device.
func (e *Engine) SubmitDevice(deviceID, path string, value float32, at time.Time) error {
	return e.submit(inbound{kind: inboundDevice, received: at, deviceID: deviceID, path: path, value: value})
}

func (e *Engine) submit(in inbound) error {
	select {
	case e.queue <- in:
		return nil
	default:
		e.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns how many events were rejected by a full queue.
func (e *Engine) Dropped() uint64 {
	return e.dropped.Load()
}

// Run consumes the queue until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-e.queue:
			switch in.kind {
			case inboundMIDI:
				e.ProcessMIDI(in.portID, in.msg, in.received)
			case inboundDevice:
				e.ProcessDevice(in.deviceID, in.path, in.value, in.received)
			}
		}
	}
}

// ProcessMIDI runs the forward path for one controller message and returns
// the number of device writes handed to the transport.
func (e *Engine) ProcessMIDI(portID string, msg midi.Message, received time.Time) int {
	step := e.step.Add(1)
	writes := 0

	for _, m := range e.mappings.MatchMIDI(msg) {
		value, ok := translate.Forward(m, msg, e.msb)
		if !ok {
			continue
		}

		key := shadow.Key{DeviceID: m.Target.DeviceID, Path: m.Target.Path}
		if e.isEcho(key, m, msg) {
			e.logger.Debug("suppressed controller echo", "port", portID, "mapping", m.ID, "path", key.Path)
			continue
		}
		change, ok := e.shadow.Observe(key, value, shadow.OriginMIDI, step)
		if !ok {
			continue
		}

		if err := e.devices.WriteParameter(key.DeviceID, key.Path, float32(value)); err != nil {
			// The device never got the value; keep the previous shadow so the
			// next gesture is compared against what the device really holds.
			e.shadow.Revert(change)
			e.logger.Warn("device write failed", "device", key.DeviceID, "path", key.Path, "error", err)
			e.emit(Event{Type: EventError, DeviceID: key.DeviceID, PortID: portID, Path: key.Path, Op: "write", Error: err})
			continue
		}
		writes++

		latency := time.Since(received)
		stats, warn := e.latency.record(latency)
		e.logParameter(key, float32(value), log.DirectionOut, &latency)

		e.emit(Event{
			Type:      EventParameterSynced,
			DeviceID:  key.DeviceID,
			PortID:    portID,
			Path:      key.Path,
			Value:     value,
			Direction: ToDevice,
			Latency:   latency,
		})
		e.emit(Event{Type: EventLatencyStatsUpdated, Latency: latency, Stats: stats})
		if warn {
			e.logger.Warn("forward latency over budget", "device", key.DeviceID, "path", key.Path, "latency", latency)
			e.emit(Event{Type: EventLatencyWarning, DeviceID: key.DeviceID, Path: key.Path, Latency: latency, Stats: stats})
		}
	}
	return writes
}

// isEcho reports whether msg is what the reverse path would have sent for
// the device value currently held in the shadow. Motorized controls send
// those messages back, quantized to 7 or 14 bits, so the translated value
// can differ from the shadow by more than the tolerance.
func (e *Engine) isEcho(key shadow.Key, m mapping.ParameterMapping, msg midi.Message) bool {
	if !m.Bidirectional {
		return false
	}
	entry, ok := e.shadow.Get(key)
	if !ok || entry.Origin != shadow.OriginDevice {
		return false
	}
	for _, sent := range translate.Inverse(m, entry.Value) {
		if sameMessage(sent, msg) {
			return true
		}
	}
	return false
}

func sameMessage(a, b midi.Message) bool {
	if a.Kind != b.Kind || a.Channel != b.Channel {
		return false
	}
	switch a.Kind {
	case midi.KindPitchBend:
		return a.Bend == b.Bend
	case midi.KindNoteOff:
		return a.Data1 == b.Data1
	default:
		return a.Data1 == b.Data1 && a.Data2 == b.Data2
	}
}

// ProcessDevice runs the reverse path for one device parameter value and
// returns the number of MIDI messages handed to output ports.
func (e *Engine) ProcessDevice(deviceID, path string, value float32, received time.Time) int {
	step := e.step.Add(1)

	targets := e.mappings.MatchTarget(deviceID, path)
	if len(targets) == 0 {
		return 0
	}

	key := shadow.Key{DeviceID: deviceID, Path: path}
	v := float64(value)
	if _, ok := e.shadow.Observe(key, v, shadow.OriginDevice, step); !ok {
		return 0
	}
	e.logParameter(key, value, log.DirectionIn, nil)

	sent := 0
	for _, m := range targets {
		if !m.Bidirectional {
			continue
		}
		for _, msg := range translate.Inverse(m, v) {
			n, err := e.out.Broadcast(msg)
			sent += n
			if err != nil {
				e.logger.Warn("midi send failed", "device", deviceID, "path", path, "msg", msg, "error", err)
				e.emit(Event{Type: EventError, DeviceID: deviceID, Path: path, Op: "send", Error: err})
			}
		}
	}

	// Nothing reached a controller, so there is nothing to report as synced.
	if sent > 0 {
		e.emit(Event{
			Type:      EventParameterSynced,
			DeviceID:  deviceID,
			Path:      path,
			Value:     v,
			Direction: ToMIDI,
			Latency:   time.Since(received),
		})
	}
	return sent
}

// LatencyStats returns the forward-path latency aggregate.
func (e *Engine) LatencyStats() LatencyStats {
	return e.latency.snapshot()
}

// ClearLatencyStats resets the latency aggregate.
func (e *Engine) ClearLatencyStats() {
	e.latency.reset()
}

// ForgetSource drops cached 14-bit MSBs that m's controller could combine
// with: its own number as an MSB, and any pair on the channel using it as
// the LSB.
func (e *Engine) ForgetSource(m mapping.ParameterMapping) {
	if m.Source.Kind == mapping.SourceNote {
		return
	}
	e.msb.Invalidate(m.Channel, m.Source.Number)
	for _, other := range e.mappings.All() {
		if other.Source.Kind == mapping.SourceControl14 && other.Channel == m.Channel && other.Source.LSB == m.Source.Number {
			e.msb.Invalidate(other.Channel, other.Source.Number)
		}
	}
}

// ResetSources drops all cached 14-bit MSBs.
func (e *Engine) ResetSources() {
	e.msb.Reset()
}

func (e *Engine) emit(event Event) {
	if e.config.OnEvent == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.config.OnEvent(event)
}

func (e *Engine) logParameter(key shadow.Key, value float32, dir log.Direction, latency *time.Duration) {
	if e.config.ProtocolLogger == nil {
		return
	}
	e.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: dir,
		Layer:     log.LayerSync,
		Category:  log.CategoryMessage,
		DeviceID:  key.DeviceID,
		Parameter: &log.ParameterEvent{Path: key.Path, Value: value, Latency: latency},
	})
}
