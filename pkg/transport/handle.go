package transport

import "fmt"

// TransportKind is how a device is reached.
type TransportKind uint8

const (
	// TransportNetwork is a TCP connection to a networked device.
	TransportNetwork TransportKind = iota

	// TransportSerial is a direct-attached (USB serial) device.
	TransportSerial
)

// String returns the transport kind name.
func (k TransportKind) String() string {
	switch k {
	case TransportNetwork:
		return "NETWORK"
	case TransportSerial:
		return "SERIAL"
	default:
		return "UNKNOWN"
	}
}

// State is a device connection's lifecycle state.
type State int32

const (
	// StateDiscovered means the device is known but no connection was attempted.
	StateDiscovered State = iota

	// StateConnecting means dial and handshake are in progress.
	StateConnecting

	// StateConnected means the handshake completed and keep-alive is running.
	StateConnected

	// StateDisconnected means the connection ended (request, I/O error or
	// liveness timeout).
	StateDisconnected

	// StateFailed means the dial or handshake failed.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "DISCOVERED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transitions are possible on the
// same connection. A new connection must be created from a discovered handle.
func (s State) IsTerminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// DeviceHandle identifies a device. Handles returned by discovery are value
// snapshots in StateDiscovered.
type DeviceHandle struct {
	Model     string
	Firmware  string
	Serial    string
	Transport TransportKind

	// Address is host:port for network devices and the port name
	// (e.g. /dev/ttyACM0) for serial devices.
	Address string

	State State
}

// ID returns the device identity used to reference the device across the
// bridge. The serial number is preferred since it survives address changes.
func (h DeviceHandle) ID() string {
	if h.Serial != "" {
		return h.Serial
	}
	return h.Model + "@" + h.Address
}

// String returns a human-readable description.
func (h DeviceHandle) String() string {
	return fmt.Sprintf("%s (%s %s, fw %s) %s", h.ID(), h.Transport, h.Address, h.Firmware, h.State)
}
