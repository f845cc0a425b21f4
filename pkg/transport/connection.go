package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ucbridge/ucbridge-go/pkg/log"
	"github.com/ucbridge/ucbridge-go/pkg/wire"
)

// DefaultHandshakeTimeout bounds the wait for the subscription reply.
const DefaultHandshakeTimeout = 5 * time.Second

// Default client identity sent in Subscribe.
const (
	DefaultClientName         = "ucbridge"
	DefaultClientInternalName = "ucbridge"
	DefaultClientType         = "MIDI Bridge"
)

// ConnectionConfig configures a device connection.
type ConnectionConfig struct {
	// ClientName, ClientInternalName and ClientType identify the bridge in
	// the Subscribe message.
	ClientName         string
	ClientInternalName string
	ClientType         string

	// LocalPort is advertised in Hello.
	LocalPort uint16

	// HelloPayload replaces the encoded Hello payload when set.
	HelloPayload []byte

	// SubscribeBody replaces the Subscribe JSON object when set. The session
	// token is still prepended.
	SubscribeBody []byte

	// Token is the session token (0 = random).
	Token uint32

	// HandshakeTimeout bounds the wait for SubscriptionReply (default: 5s).
	HandshakeTimeout time.Duration

	// KeepAlive configuration
	KeepAlive KeepAliveConfig

	// WriteTimeout bounds each write when the stream supports deadlines
	// (0 = no timeout).
	WriteTimeout time.Duration

	// Dialer opens the stream (default: DefaultDialer()).
	Dialer Dialer

	// Logger receives operational logs (nil = discard).
	Logger *slog.Logger

	// ProtocolLogger receives capture events (nil = disabled).
	ProtocolLogger log.Logger
}

// DefaultConnectionConfig returns the default connection configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		ClientName:         DefaultClientName,
		ClientInternalName: DefaultClientInternalName,
		ClientType:         DefaultClientType,
		HandshakeTimeout:   DefaultHandshakeTimeout,
		KeepAlive:          DefaultKeepAliveConfig(),
		Dialer:             DefaultDialer(),
	}
}

// ConnectionHandler handles connection events.
type ConnectionHandler interface {
	// OnMessage is called for every decoded inbound message after the
	// handshake, except keep-alives.
	OnMessage(msg wire.Message)

	// OnStateChange is called when the connection state changes.
	OnStateChange(oldState, newState State)

	// OnError is called for recoverable and fatal errors. Errors are
	// *DeviceError.
	OnError(err error)
}

// Connection drives one device through its lifecycle:
// discovered -> connecting -> connected -> disconnected, or
// connecting -> failed. A Connection is single-use; reconnecting means
// creating a new one from the discovered handle.
type Connection struct {
	config  ConnectionConfig
	handler ConnectionHandler
	handle  DeviceHandle
	logger  *slog.Logger
	connID  string

	// Stream
	rwc    io.ReadWriteCloser
	framer *Framer

	// Keep-alive
	keepAlive *KeepAlive

	// State
	state     atomic.Int32
	closing   atomic.Bool
	closeOnce sync.Once
	readDone  chan struct{}

	// Synchronization
	mu      sync.RWMutex
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewConnection creates a connection for a discovered device.
func NewConnection(handle DeviceHandle, config ConnectionConfig, handler ConnectionHandler) *Connection {
	if config.ClientName == "" {
		config.ClientName = DefaultClientName
	}
	if config.ClientInternalName == "" {
		config.ClientInternalName = DefaultClientInternalName
	}
	if config.ClientType == "" {
		config.ClientType = DefaultClientType
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.Dialer == nil {
		config.Dialer = DefaultDialer()
	}
	if config.Token == 0 {
		id := uuid.New()
		config.Token = binary.LittleEndian.Uint32(id[:4])
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	handle.State = StateDiscovered
	c := &Connection{
		config:   config,
		handler:  handler,
		handle:   handle,
		connID:   uuid.NewString(),
		readDone: make(chan struct{}),
	}
	c.logger = logger.With("device", handle.ID(), "conn_id", c.connID)
	c.state.Store(int32(StateDiscovered))
	return c
}

// ID returns the device id.
func (c *Connection) ID() string {
	return c.handle.ID()
}

// ConnectionID returns the capture connection id.
func (c *Connection) ConnectionID() string {
	return c.connID
}

// State returns the current connection state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Handle returns the device handle with the current state.
func (c *Connection) Handle() DeviceHandle {
	h := c.handle
	h.State = c.State()
	return h
}

// KeepAliveStats returns keep-alive statistics, zero before connect.
func (c *Connection) KeepAliveStats() KeepAliveStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.keepAlive == nil {
		return KeepAliveStats{}
	}
	return c.keepAlive.Stats()
}

// Connect dials the device and performs the handshake. On success the
// connection is StateConnected; on failure it is StateFailed and the
// returned error is a *DeviceError.
func (c *Connection) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDiscovered), int32(StateConnecting)) {
		return c.deviceError("connect", fmt.Errorf("%w: %s", ErrInvalidState, c.State()))
	}
	c.notifyStateChange(StateDiscovered, StateConnecting, "")

	rwc, err := c.config.Dialer.Dial(ctx, c.handle)
	if err != nil {
		return c.fail("dial", err)
	}

	framer := NewFramer(rwc)
	if c.config.ProtocolLogger != nil {
		framer.SetLogger(c.config.ProtocolLogger, c.connID)
	}

	c.mu.Lock()
	c.rwc = rwc
	c.framer = framer
	// The session outlives the caller's connect context.
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Unlock()

	if err := c.handshake(ctx); err != nil {
		rwc.Close()
		c.cancel()
		return c.fail("handshake", err)
	}

	c.mu.Lock()
	c.keepAlive = NewKeepAlive(c.config.KeepAlive, c.sendKeepAlive, c.onLivenessTimeout)
	c.mu.Unlock()

	c.state.Store(int32(StateConnected))
	c.notifyStateChange(StateConnecting, StateConnected, "")
	c.logger.Info("device connected", "address", c.handle.Address)

	c.keepAlive.Start(c.ctx)
	go c.readLoop()

	return nil
}

// handshake sends Hello and Subscribe, then waits for SubscriptionReply.
func (c *Connection) handshake(ctx context.Context) error {
	var hello wire.Message = wire.Hello{Port: c.config.LocalPort}
	if c.config.HelloPayload != nil {
		hello = wire.RawMessage{MsgType: wire.TypeHello, Payload: c.config.HelloPayload}
	}
	if err := c.framer.WriteMessage(hello); err != nil {
		return err
	}
	c.logControl(log.DirectionOut, log.ControlMsgHello, 0)

	var subscribe wire.Message = wire.Subscribe{
		Token:              c.config.Token,
		ClientName:         c.config.ClientName,
		ClientInternalName: c.config.ClientInternalName,
		ClientType:         c.config.ClientType,
	}
	if c.config.SubscribeBody != nil {
		subscribe = wire.JSONMessage{Token: c.config.Token, ID: wire.JSONIDSubscribe, Body: c.config.SubscribeBody}
	}
	if err := c.framer.WriteMessage(subscribe); err != nil {
		return err
	}
	c.logControl(log.DirectionOut, log.ControlMsgSubscribe, c.config.Token)

	hctx, cancel := context.WithTimeout(ctx, c.config.HandshakeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.awaitReply() }()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		// Unblock the pending read.
		c.rwc.Close()
		<-done
		if errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return ErrHandshakeTimeout
		}
		return hctx.Err()
	}
}

func (c *Connection) awaitReply() error {
	for {
		frame, err := c.framer.ReadFrame()
		if err != nil {
			if errors.Is(err, wire.ErrMalformed) {
				c.reportError("handshake read", err)
				continue
			}
			return err
		}
		msg, err := wire.Decode(frame)
		if err != nil {
			c.reportError("handshake decode", err)
			continue
		}
		if reply, ok := msg.(wire.SubscriptionReply); ok {
			c.logControl(log.DirectionIn, log.ControlMsgSubscriptionReply, reply.Token)
			return nil
		}
		c.logger.Debug("ignoring message before subscription reply", "type", msg.Type())
	}
}

// Send writes a message. An I/O error tears the connection down.
func (c *Connection) Send(msg wire.Message) error {
	if c.State() != StateConnected {
		return c.deviceError("send", ErrNotConnected)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	framer := c.framer
	rwc := c.rwc
	c.mu.RUnlock()

	if framer == nil {
		return c.deviceError("send", ErrNotConnected)
	}

	if dl, ok := rwc.(interface{ SetWriteDeadline(time.Time) error }); ok && c.config.WriteTimeout > 0 {
		_ = dl.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer dl.SetWriteDeadline(time.Time{})
	}

	if err := framer.WriteMessage(msg); err != nil {
		if errors.Is(err, wire.ErrInvalidType) || errors.Is(err, wire.ErrPayloadTooLong) {
			return c.deviceError("send", err)
		}
		derr := c.deviceError("send", err)
		c.teardown(err.Error())
		return derr
	}
	return nil
}

// WriteParameter sends a ParameterValue for path.
func (c *Connection) WriteParameter(path string, value float32) error {
	if err := c.Send(wire.ParameterValue{Path: path, Value: value}); err != nil {
		return err
	}
	if c.config.ProtocolLogger != nil {
		c.config.ProtocolLogger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.connID,
			Direction:    log.DirectionOut,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			DeviceID:     c.ID(),
			Parameter:    &log.ParameterEvent{Path: path, Value: value},
		})
	}
	return nil
}

// Disconnect closes a connected session.
func (c *Connection) Disconnect() error {
	if c.State() != StateConnected {
		return c.deviceError("disconnect", ErrNotConnected)
	}
	c.teardown("requested")
	return nil
}

// Done is closed once the read loop has exited after connect.
func (c *Connection) Done() <-chan struct{} {
	return c.readDone
}

func (c *Connection) sendKeepAlive() error {
	if err := c.Send(wire.KeepAlive{}); err != nil {
		return err
	}
	c.logControl(log.DirectionOut, log.ControlMsgKeepAlive, 0)
	return nil
}

func (c *Connection) onLivenessTimeout() {
	c.reportError("liveness", ErrLivenessTimeout)
	c.teardown(ErrLivenessTimeout.Error())
}

// readLoop reads frames until the stream fails or the connection closes.
func (c *Connection) readLoop() {
	defer close(c.readDone)

	c.mu.RLock()
	framer := c.framer
	keepAlive := c.keepAlive
	c.mu.RUnlock()

	// Only this goroutine touches the reassembly buffer.
	defer framer.Reset()

	for {
		frame, err := framer.ReadFrame()
		if err != nil {
			if errors.Is(err, wire.ErrMalformed) {
				keepAlive.Touch()
				c.reportError("read", err)
				continue
			}
			if c.closing.Load() || c.ctx.Err() != nil {
				return // Expected during close
			}
			if !errors.Is(err, io.EOF) {
				c.reportError("read", err)
			}
			c.teardown(fmt.Sprintf("read: %v", err))
			return
		}
		keepAlive.Touch()

		msg, err := wire.Decode(frame)
		if err != nil {
			c.reportError("decode", err)
			continue
		}

		switch m := msg.(type) {
		case wire.KeepAlive:
			c.logControl(log.DirectionIn, log.ControlMsgKeepAlive, 0)
			continue
		case wire.ParameterValue:
			if c.config.ProtocolLogger != nil {
				c.config.ProtocolLogger.Log(log.Event{
					Timestamp:    time.Now(),
					ConnectionID: c.connID,
					Direction:    log.DirectionIn,
					Layer:        log.LayerWire,
					Category:     log.CategoryMessage,
					DeviceID:     c.ID(),
					Parameter:    &log.ParameterEvent{Path: m.Path, Value: m.Value},
				})
			}
		}

		if c.handler != nil {
			c.handler.OnMessage(msg)
		}
	}
}

// teardown moves a connected session to StateDisconnected, stopping
// keep-alive and closing the stream. The read loop then exits and drops
// any partial frame.
func (c *Connection) teardown(reason string) {
	c.closeOnce.Do(func() {
		c.closing.Store(true)

		c.mu.Lock()
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		if c.cancel != nil {
			c.cancel()
		}
		if c.rwc != nil {
			c.rwc.Close()
		}
		c.mu.Unlock()

		old := State(c.state.Swap(int32(StateDisconnected)))
		if old != StateDisconnected {
			c.notifyStateChange(old, StateDisconnected, reason)
		}
		c.logger.Info("device disconnected", "reason", reason)
	})
}

// fail moves a connecting session to StateFailed.
func (c *Connection) fail(op string, err error) error {
	derr := c.deviceError(op, err)
	c.state.Store(int32(StateFailed))
	c.reportError(op, err)
	c.notifyStateChange(StateConnecting, StateFailed, err.Error())
	c.logger.Warn("device connection failed", "op", op, "error", err)
	return derr
}

func (c *Connection) deviceError(op string, err error) *DeviceError {
	return &DeviceError{DeviceID: c.ID(), Op: op, Err: err}
}

func (c *Connection) reportError(op string, err error) {
	layer := log.LayerTransport
	if errors.Is(err, wire.ErrMalformed) {
		layer = log.LayerWire
		c.logger.Debug("dropping malformed frame", "op", op, "error", err)
	}
	if c.config.ProtocolLogger != nil {
		c.config.ProtocolLogger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.connID,
			Layer:        layer,
			Category:     log.CategoryError,
			DeviceID:     c.ID(),
			RemoteAddr:   c.handle.Address,
			Error:        &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: op},
		})
	}
	if c.handler != nil {
		c.handler.OnError(c.deviceError(op, err))
	}
}

func (c *Connection) logControl(dir log.Direction, t log.ControlMsgType, token uint32) {
	if c.config.ProtocolLogger == nil {
		return
	}
	c.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryControl,
		DeviceID:     c.ID(),
		ControlMsg:   &log.ControlMsgEvent{Type: t, Token: token},
	})
}

// notifyStateChange notifies the handler of state changes.
func (c *Connection) notifyStateChange(oldState, newState State, reason string) {
	if c.config.ProtocolLogger != nil {
		c.config.ProtocolLogger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.connID,
			Layer:        log.LayerTransport,
			Category:     log.CategoryState,
			DeviceID:     c.ID(),
			RemoteAddr:   c.handle.Address,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				OldState: oldState.String(),
				NewState: newState.String(),
				Reason:   reason,
			},
		})
	}
	if c.handler != nil {
		c.handler.OnStateChange(oldState, newState)
	}
}
