package transport

import (
	"context"

	"github.com/ucbridge/ucbridge-go/pkg/wire"
)

// DeviceConnection is one device session as seen by the bridge.
// Implemented by Connection.
type DeviceConnection interface {
	// ID returns the device id.
	ID() string

	// Handle returns the device handle with the current state.
	Handle() DeviceHandle

	// State returns the current lifecycle state.
	State() State

	// Connect dials and performs the handshake.
	Connect(ctx context.Context) error

	// WriteParameter sends a parameter value.
	WriteParameter(path string, value float32) error

	// Disconnect closes the session.
	Disconnect() error
}

// FrameReadWriter provides frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	// ReadFrame reads one complete frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes one complete frame.
	WriteFrame(frame []byte) error

	// WriteMessage encodes and writes a message.
	WriteMessage(msg wire.Message) error
}

// Compile-time interface satisfaction checks.
var (
	_ DeviceConnection = (*Connection)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
	_ Dialer           = TCPDialer{}
	_ Dialer           = SerialDialer{}
	_ Dialer           = KindDialer{}
	_ Dialer           = DialerFunc(nil)
)
