package log

import "time"

// Event is one captured occurrence at any layer of the bridge. Exactly one
// payload pointer is set. CBOR keys are integers; numbering is part of the
// file format and must not change.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"` // per-connection UUID
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`

	// RemoteAddr is host:port for TCP devices or the serial port name.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`
	DeviceID   string `cbor:"7,keyasint,omitempty"`
	PortID     string `cbor:"8,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Parameter   *ParameterEvent   `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return "UNKNOWN"
	}
	return names[i]
}

// Direction is the flow direction relative to the bridge.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

var directionNames = []string{"IN", "OUT"}

func (d Direction) String() string { return enumName(directionNames, int(d)) }

// Layer is where an event was captured.
type Layer uint8

const (
	// LayerTransport carries raw frame bytes.
	LayerTransport Layer = iota
	// LayerWire carries decoded device messages.
	LayerWire
	// LayerSync carries translated parameter writes.
	LayerSync
	// LayerMIDI carries port lifecycle events.
	LayerMIDI
)

var layerNames = []string{"TRANSPORT", "WIRE", "SYNC", "MIDI"}

func (l Layer) String() string { return enumName(layerNames, int(l)) }

// Category classifies an event.
type Category uint8

const (
	CategoryMessage Category = iota
	CategoryControl
	CategoryState
	CategoryError
)

var categoryNames = []string{"MESSAGE", "CONTROL", "STATE", "ERROR"}

func (c Category) String() string { return enumName(categoryNames, int(c)) }

// FrameEvent is a raw frame seen by the transport. Data may be cut short
// for large frames, in which case Truncated is set.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
	Type      string `cbor:"4,keyasint,omitempty"` // two-character type tag
}

// ParameterEvent is a parameter value read from or written to a device.
type ParameterEvent struct {
	Path  string  `cbor:"1,keyasint"`
	Value float32 `cbor:"2,keyasint"`

	// Latency runs from MIDI receipt to write hand-off. Outbound only.
	Latency *time.Duration `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent records a connection, port or learn transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity is the kind of thing that changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = iota
	StateEntityPort
	StateEntityLearn
)

var stateEntityNames = []string{"CONNECTION", "PORT", "LEARN"}

func (s StateEntity) String() string { return enumName(stateEntityNames, int(s)) }

// ControlMsgEvent is a session control message. Token is set for
// subscribe traffic.
type ControlMsgEvent struct {
	Type  ControlMsgType `cbor:"1,keyasint"`
	Token uint32         `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType enumerates session control messages.
type ControlMsgType uint8

const (
	ControlMsgHello ControlMsgType = iota
	ControlMsgSubscribe
	ControlMsgSubscriptionReply
	ControlMsgKeepAlive
)

var controlMsgNames = []string{"HELLO", "SUBSCRIBE", "SUBSCRIPTION_REPLY", "KEEPALIVE"}

func (c ControlMsgType) String() string { return enumName(controlMsgNames, int(c)) }

// ErrorEventData is an error raised at Layer while doing Context.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Context string `cbor:"3,keyasint,omitempty"`
}
