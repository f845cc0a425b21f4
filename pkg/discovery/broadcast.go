package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/ucbridge/ucbridge-go/pkg/transport"
	"github.com/ucbridge/ucbridge-go/pkg/wire"
)

// Broadcast discovery defaults.
const (
	// DefaultDiscoveryPort is the well-known UDP port devices listen on.
	DefaultDiscoveryPort = 47809

	// DefaultDiscoveryWindow is how long replies are collected.
	DefaultDiscoveryWindow = 2 * time.Second

	maxDatagramSize = 2048
)

// BroadcastConfig configures broadcast discovery.
type BroadcastConfig struct {
	// Port is the destination UDP port (default: 47809).
	Port int

	// BroadcastAddr is the destination address (default: 255.255.255.255).
	BroadcastAddr string

	// Window is how long replies are collected (default: 2s).
	Window time.Duration

	// QueryPayload replaces the discovery query payload when set.
	QueryPayload []byte

	// ListenPacket opens the local socket (default: net.ListenPacket on an
	// ephemeral UDP port). Set in tests.
	ListenPacket func(ctx context.Context) (net.PacketConn, error)

	// Logger receives operational logs (nil = discard).
	Logger *slog.Logger
}

// DefaultBroadcastConfig returns the default broadcast configuration.
func DefaultBroadcastConfig() BroadcastConfig {
	return BroadcastConfig{
		Port:          DefaultDiscoveryPort,
		BroadcastAddr: net.IPv4bcast.String(),
		Window:        DefaultDiscoveryWindow,
	}
}

// BroadcastDiscoverer finds networked devices by broadcasting a discovery
// query and collecting advertisements for a fixed window.
type BroadcastDiscoverer struct {
	config BroadcastConfig
	logger *slog.Logger
}

// NewBroadcastDiscoverer creates a broadcast discoverer.
func NewBroadcastDiscoverer(config BroadcastConfig) *BroadcastDiscoverer {
	if config.Port == 0 {
		config.Port = DefaultDiscoveryPort
	}
	if config.BroadcastAddr == "" {
		config.BroadcastAddr = net.IPv4bcast.String()
	}
	if config.Window == 0 {
		config.Window = DefaultDiscoveryWindow
	}
	if config.ListenPacket == nil {
		config.ListenPacket = func(ctx context.Context) (net.PacketConn, error) {
			var lc net.ListenConfig
			return lc.ListenPacket(ctx, "udp4", ":0")
		}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BroadcastDiscoverer{config: config, logger: logger}
}

// Discover broadcasts one query and returns the devices that answered
// within the window. No replies yields an empty list and a nil error.
func (d *BroadcastDiscoverer) Discover(ctx context.Context) ([]transport.DeviceHandle, error) {
	conn, err := d.config.ListenPacket(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery socket: %w", err)
	}
	defer conn.Close()

	query, err := wire.Encode(wire.DiscoveryQuery{Payload: d.config.QueryPayload})
	if err != nil {
		return nil, err
	}

	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(d.config.BroadcastAddr, strconv.Itoa(d.config.Port)))
	if err != nil {
		return nil, fmt.Errorf("discovery address: %w", err)
	}
	if _, err := conn.WriteTo(query, dst); err != nil {
		return nil, fmt.Errorf("discovery broadcast: %w", err)
	}

	deadline := time.Now().Add(d.config.Window)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	// Unblock the read on cancellation.
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	var found []transport.DeviceHandle
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				break
			}
			return nil, fmt.Errorf("discovery read: %w", err)
		}

		h, ok := d.parseReply(buf[:n], from)
		if ok {
			found = append(found, h)
		}
	}

	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	d.logger.Debug("broadcast discovery finished", "devices", len(found))
	return Dedup(found), nil
}

func (d *BroadcastDiscoverer) parseReply(datagram []byte, from net.Addr) (transport.DeviceHandle, bool) {
	msg, err := wire.Decode(datagram)
	if err != nil {
		d.logger.Debug("ignoring discovery datagram", "from", from, "error", err)
		return transport.DeviceHandle{}, false
	}
	adv, ok := msg.(wire.DiscoveryAdvert)
	if !ok {
		// Our own query echoed back by the broadcast.
		return transport.DeviceHandle{}, false
	}

	host := from.String()
	if udp, ok := from.(*net.UDPAddr); ok {
		host = udp.IP.String()
	}
	port := int(adv.Port)
	if port == 0 {
		port = transport.DefaultPort
	}

	return transport.DeviceHandle{
		Model:     adv.Model,
		Firmware:  adv.Firmware,
		Serial:    adv.Serial,
		Transport: transport.TransportNetwork,
		Address:   net.JoinHostPort(host, strconv.Itoa(port)),
		State:     transport.StateDiscovered,
	}, true
}
