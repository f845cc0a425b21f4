package transport

import (
	"errors"
	"fmt"
)

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrInvalidState     = errors.New("connection is not in discovered state")
	ErrHandshakeTimeout = errors.New("handshake timeout")
	ErrLivenessTimeout  = errors.New("no inbound traffic within liveness timeout")
	ErrConnectionClosed = errors.New("connection closed")
	ErrUnknownTransport = errors.New("unknown transport kind")
)

// DeviceError tags an error with the device it came from.
type DeviceError struct {
	DeviceID string
	Op       string
	Err      error
}

// Error implements error.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.DeviceID, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}
