package wire

import "fmt"

// MessageType is the 2-byte ASCII type tag following the frame length.
type MessageType string

// Known message types.
const (
	TypeHello           MessageType = "UM"
	TypeJSON            MessageType = "JM"
	TypeParameterValue  MessageType = "PV"
	TypeKeepAlive       MessageType = "KA"
	TypeDiscoveryQuery  MessageType = "DQ"
	TypeDiscoveryAdvert MessageType = "DA"
)

// IsKnown reports whether the codec can decode frames of this type.
func (t MessageType) IsKnown() bool {
	switch t {
	case TypeHello, TypeJSON, TypeParameterValue, TypeKeepAlive,
		TypeDiscoveryQuery, TypeDiscoveryAdvert:
		return true
	default:
		return false
	}
}

// String returns the tag, or a hex rendering if it is not printable.
func (t MessageType) String() string {
	for i := 0; i < len(t); i++ {
		if t[i] < 0x20 || t[i] > 0x7e {
			return fmt.Sprintf("%x", string(t))
		}
	}
	return string(t)
}

// JSON message ids carried inside JM frames.
const (
	JSONIDSubscribe         = "Subscribe"
	JSONIDSubscriptionReply = "SubscriptionReply"
)

// Message is a decoded protocol message.
type Message interface {
	Type() MessageType
}

// Hello opens a session and advertises the client's local port.
//
// Payload: uint16 LE port, followed by optional capability bytes.
type Hello struct {
	Port         uint16
	Capabilities []byte
}

// Type implements Message.
func (Hello) Type() MessageType { return TypeHello }

// Subscribe identifies the client to the device. It travels as a JM frame:
// 4-byte LE session token followed by a JSON object.
type Subscribe struct {
	Token              uint32 `json:"-"`
	ClientName         string `json:"clientName"`
	ClientInternalName string `json:"clientInternalName"`
	ClientType         string `json:"clientType"`
	ClientDescription  string `json:"clientDescription,omitempty"`
	ClientIdentifier   string `json:"clientIdentifier,omitempty"`
	ClientOptions      string `json:"clientOptions,omitempty"`
}

// Type implements Message.
func (Subscribe) Type() MessageType { return TypeJSON }

// SubscriptionReply is the device's answer to Subscribe.
type SubscriptionReply struct {
	Token  uint32
	Fields map[string]any
}

// Type implements Message.
func (SubscriptionReply) Type() MessageType { return TypeJSON }

// JSONMessage is a JM frame whose id the codec does not model.
type JSONMessage struct {
	Token uint32
	ID    string
	Body  []byte
}

// Type implements Message.
func (JSONMessage) Type() MessageType { return TypeJSON }

// ParameterValue carries one parameter's linear value.
type ParameterValue struct {
	Path  string
	Value float32
}

// Type implements Message.
func (ParameterValue) Type() MessageType { return TypeParameterValue }

// KeepAlive is sent periodically by both sides.
type KeepAlive struct{}

// Type implements Message.
func (KeepAlive) Type() MessageType { return TypeKeepAlive }

// DiscoveryQuery is broadcast by clients looking for devices.
type DiscoveryQuery struct {
	Payload []byte
}

// Type implements Message.
func (DiscoveryQuery) Type() MessageType { return TypeDiscoveryQuery }

// DiscoveryAdvert is a device's reply to a discovery query.
//
// Payload: uint16 LE control port, then NUL-terminated model, firmware and
// serial strings.
type DiscoveryAdvert struct {
	Port     uint16
	Model    string
	Firmware string
	Serial   string
}

// Type implements Message.
func (DiscoveryAdvert) Type() MessageType { return TypeDiscoveryAdvert }

// RawMessage is an opaque frame body. It lets callers override payloads the
// codec models (hello, subscribe) without changing the codec.
type RawMessage struct {
	MsgType MessageType
	Payload []byte
}

// Type implements Message.
func (m RawMessage) Type() MessageType { return m.MsgType }
