package midi

import (
	"io"
	"time"
)

// Receiver is called for every decoded inbound message of an open input.
type Receiver func(msg Message, at time.Time)

// Backend enumerates and opens ports. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Ports returns a fresh enumeration. Status is ignored by callers.
	Ports() ([]ControllerPort, error)

	// OpenIn starts delivering messages from an input port. onErr receives
	// read errors; the port stays open. Closing the returned Closer stops
	// delivery.
	OpenIn(port ControllerPort, recv Receiver, onErr func(error)) (io.Closer, error)

	// OpenOut opens an output port.
	OpenOut(port ControllerPort) (Output, error)
}

// Output is an open output port.
type Output interface {
	Send(msg Message) error
	Close() error
}
