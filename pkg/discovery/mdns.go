package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/ucbridge/ucbridge-go/pkg/transport"
)

// mDNS defaults.
const (
	// DefaultServiceType is browsed when no service type is configured.
	DefaultServiceType = "_ucnet._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultBrowseTimeout bounds one browse pass.
	DefaultBrowseTimeout = 2 * time.Second
)

// MDNSConfig configures mDNS discovery.
type MDNSConfig struct {
	// ServiceType to browse (default: _ucnet._tcp).
	ServiceType string

	// BrowseTimeout bounds one browse pass (default: 2s).
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// Browse overrides zeroconf.Browse, for tests.
	Browse func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error
}

// MDNSDiscoverer finds networked devices that announce themselves over
// DNS-SD. It complements broadcast discovery on networks that filter
// broadcasts.
type MDNSDiscoverer struct {
	config MDNSConfig
}

// NewMDNSDiscoverer creates an mDNS discoverer.
func NewMDNSDiscoverer(config MDNSConfig) *MDNSDiscoverer {
	if config.ServiceType == "" {
		config.ServiceType = DefaultServiceType
	}
	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.Browse == nil {
		config.Browse = browse
	}
	return &MDNSDiscoverer{config: config}
}

func browse(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
	return zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
}

// Discover browses for one window. Entries from several interfaces are
// aggregated by instance name.
func (d *MDNSDiscoverer) Discover(ctx context.Context) ([]transport.DeviceHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.BrowseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	browseErr := make(chan error, 1)
	go func() {
		browseErr <- d.config.Browse(ctx, d.config.ServiceType, Domain, entries, removed, d.browserOptions()...)
	}()

	services := make(map[string]transport.DeviceHandle)
	var order []string

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			h, ok := entryToHandle(entry)
			if !ok {
				continue
			}
			if _, found := services[entry.Instance]; !found {
				order = append(order, entry.Instance)
			}
			services[entry.Instance] = h

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			delete(services, entry.Instance)

		case err := <-browseErr:
			if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("mdns browse: %w", err)
			}
			browseErr = nil

		case <-ctx.Done():
			var found []transport.DeviceHandle
			for _, inst := range order {
				if h, ok := services[inst]; ok {
					found = append(found, h)
				}
			}
			return Dedup(found), nil
		}
	}
}

// browserOptions returns zeroconf client options based on config.
func (d *MDNSDiscoverer) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	// Select specific interface if configured
	if d.config.Interface != "" {
		iface, err := net.InterfaceByName(d.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

// entryToHandle converts a zeroconf entry to a discovered device handle.
// IPv4 addresses are preferred.
func entryToHandle(entry *zeroconf.ServiceEntry) (transport.DeviceHandle, bool) {
	if entry == nil {
		return transport.DeviceHandle{}, false
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		return transport.DeviceHandle{}, false
	}

	port := entry.Port
	if port == 0 {
		port = transport.DefaultPort
	}

	txt := StringsToTXTRecords(entry.Text)
	model := txt.Model()
	if model == "" {
		model = entry.Instance
	}

	return transport.DeviceHandle{
		Model:     model,
		Firmware:  txt.Firmware(),
		Serial:    txt.Serial(),
		Transport: transport.TransportNetwork,
		Address:   net.JoinHostPort(host, strconv.Itoa(port)),
		State:     transport.StateDiscovered,
	}, true
}
