package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.bug.st/serial"
)

// Transport defaults.
const (
	// DefaultPort is the device's TCP control port.
	DefaultPort = 53000

	// DefaultDialTimeout bounds TCP connection establishment.
	DefaultDialTimeout = 3 * time.Second

	// DefaultBaudRate is used for direct-attached devices.
	DefaultBaudRate = 115200
)

// Dialer opens the byte stream to a device.
type Dialer interface {
	Dial(ctx context.Context, handle DeviceHandle) (io.ReadWriteCloser, error)
}

// TCPDialer reaches networked devices.
type TCPDialer struct {
	// Timeout bounds connection establishment (default: 3s).
	Timeout time.Duration

	// Port is used when the handle's address carries no port (default: 53000).
	Port int
}

// Dial implements Dialer.
func (d TCPDialer) Dial(ctx context.Context, handle DeviceHandle) (io.ReadWriteCloser, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	port := d.Port
	if port == 0 {
		port = DefaultPort
	}

	address := handle.Address
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(port))
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Parameter writes are small and latency bound.
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}

// SerialDialer reaches direct-attached devices through go.bug.st/serial.
type SerialDialer struct {
	// BaudRate for the port (default: 115200).
	BaudRate int

	// Open overrides serial.Open, for tests.
	Open func(name string, mode *serial.Mode) (serial.Port, error)
}

// Dial implements Dialer.
func (d SerialDialer) Dial(ctx context.Context, handle DeviceHandle) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	baud := d.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	open := d.Open
	if open == nil {
		open = serial.Open
	}

	port, err := open(handle.Address, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", handle.Address, err)
	}
	return port, nil
}

// KindDialer picks a dialer by the handle's transport kind.
type KindDialer struct {
	Network Dialer
	Serial  Dialer
}

// DefaultDialer returns a dialer for both transports with default settings.
func DefaultDialer() KindDialer {
	return KindDialer{
		Network: TCPDialer{},
		Serial:  SerialDialer{},
	}
}

// Dial implements Dialer.
func (d KindDialer) Dial(ctx context.Context, handle DeviceHandle) (io.ReadWriteCloser, error) {
	var next Dialer
	switch handle.Transport {
	case TransportNetwork:
		next = d.Network
	case TransportSerial:
		next = d.Serial
	}
	if next == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, handle.Transport)
	}
	return next.Dial(ctx, handle)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, handle DeviceHandle) (io.ReadWriteCloser, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, handle DeviceHandle) (io.ReadWriteCloser, error) {
	return f(ctx, handle)
}
