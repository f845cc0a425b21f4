package service

import (
	"errors"
	"time"

	"github.com/ucbridge/ucbridge-go/pkg/learn"
	"github.com/ucbridge/ucbridge-go/pkg/midi"
	"github.com/ucbridge/ucbridge-go/pkg/transport"
)

// Service errors.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrAlreadyStarted   = errors.New("service already started")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrAlreadyConnected = errors.New("device already connected")
	ErrNotConnected     = errors.New("device not connected")
	ErrQueueFull        = errors.New("sync queue full")
	ErrNoDiscoverer     = errors.New("no device discoverer configured")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateStarting - service is starting up.
	StateStarting

	// StateRunning - service is running normally.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Direction is the sync direction of a parameter update.
type Direction uint8

const (
	// ToDevice is the forward path: MIDI to device.
	ToDevice Direction = iota

	// ToMIDI is the reverse path: device to MIDI.
	ToMIDI
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case ToDevice:
		return "TO_DEVICE"
	case ToMIDI:
		return "TO_MIDI"
	default:
		return "UNKNOWN"
	}
}

// EventType identifies an event.
type EventType uint8

const (
	// EventConnectionStateChanged - a device connection changed state.
	EventConnectionStateChanged EventType = iota

	// EventDeviceListChanged - discovery produced a new device list.
	EventDeviceListChanged

	// EventPortListChanged - MIDI ports appeared or disappeared.
	EventPortListChanged

	// EventPortStatusChanged - a MIDI port was connected, disconnected or lost.
	EventPortStatusChanged

	// EventParameterSynced - a value was written in either direction.
	EventParameterSynced

	// EventLatencyStatsUpdated - a forward-path latency sample was recorded.
	EventLatencyStatsUpdated

	// EventLatencyWarning - a forward-path sample exceeded the warning threshold.
	EventLatencyWarning

	// EventLearnStateChanged - the learn machine changed state.
	EventLearnStateChanged

	// EventLearnResult - a learn session ended.
	EventLearnResult

	// EventError - a command was rejected or a device/port reported an error.
	EventError
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventConnectionStateChanged:
		return "CONNECTION_STATE_CHANGED"
	case EventDeviceListChanged:
		return "DEVICE_LIST_CHANGED"
	case EventPortListChanged:
		return "PORT_LIST_CHANGED"
	case EventPortStatusChanged:
		return "PORT_STATUS_CHANGED"
	case EventParameterSynced:
		return "PARAMETER_SYNCED"
	case EventLatencyStatsUpdated:
		return "LATENCY_STATS_UPDATED"
	case EventLatencyWarning:
		return "LATENCY_WARNING"
	case EventLearnStateChanged:
		return "LEARN_STATE_CHANGED"
	case EventLearnResult:
		return "LEARN_RESULT"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is a timestamped notification. Only the fields relevant to Type are
// set.
type Event struct {
	Type      EventType
	Timestamp time.Time

	// DeviceID is set for device-related events.
	DeviceID string

	// PortID is set for port-related events.
	PortID string

	// OldState and NewState are set for EventConnectionStateChanged.
	OldState transport.State
	NewState transport.State

	// Devices is set for EventDeviceListChanged.
	Devices []transport.DeviceHandle

	// Ports is set for EventPortListChanged and EventPortStatusChanged.
	Ports []midi.ControllerPort

	// Path, Value and Direction are set for EventParameterSynced.
	Path      string
	Value     float64
	Direction Direction

	// Latency is set for forward-path EventParameterSynced and
	// EventLatencyWarning.
	Latency time.Duration

	// Stats is set for EventLatencyStatsUpdated and EventLatencyWarning.
	Stats LatencyStats

	// LearnState is set for EventLearnStateChanged.
	LearnState learn.State

	// LearnResult is set for EventLearnResult.
	LearnResult *learn.Result

	// Op names the rejected command or failing operation for EventError.
	Op string

	// Error is set for EventError.
	Error error
}

// EventHandler handles service events.
type EventHandler func(Event)
