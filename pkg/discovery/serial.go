package discovery

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/ucbridge/ucbridge-go/pkg/transport"
)

// DefaultVendorID is the USB vendor id of direct-attached devices.
const DefaultVendorID = "194F"

// SerialConfig configures serial-bus enumeration.
type SerialConfig struct {
	// VendorID is matched case-insensitively against the USB VID (default: 194F).
	VendorID string

	// ProductIDs restricts matches to these PIDs (empty = any product).
	ProductIDs []string

	// ListPorts overrides enumerator.GetDetailedPortsList, for tests.
	ListPorts func() ([]*enumerator.PortDetails, error)
}

// SerialDiscoverer finds direct-attached devices by USB vendor/product id.
// Discovery needs no handshake.
type SerialDiscoverer struct {
	config SerialConfig
}

// NewSerialDiscoverer creates a serial discoverer.
func NewSerialDiscoverer(config SerialConfig) *SerialDiscoverer {
	if config.VendorID == "" {
		config.VendorID = DefaultVendorID
	}
	if config.ListPorts == nil {
		config.ListPorts = enumerator.GetDetailedPortsList
	}
	return &SerialDiscoverer{config: config}
}

// Discover implements Discoverer.
func (d *SerialDiscoverer) Discover(ctx context.Context) ([]transport.DeviceHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := d.config.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	var found []transport.DeviceHandle
	for _, p := range ports {
		if !d.matches(p) {
			continue
		}
		model := p.Product
		if model == "" {
			model = "USB " + strings.ToUpper(p.VID) + ":" + strings.ToUpper(p.PID)
		}
		found = append(found, transport.DeviceHandle{
			Model:     model,
			Serial:    p.SerialNumber,
			Transport: transport.TransportSerial,
			Address:   p.Name,
			State:     transport.StateDiscovered,
		})
	}
	return Dedup(found), nil
}

func (d *SerialDiscoverer) matches(p *enumerator.PortDetails) bool {
	if p == nil || !p.IsUSB {
		return false
	}
	if !strings.EqualFold(p.VID, d.config.VendorID) {
		return false
	}
	if len(d.config.ProductIDs) == 0 {
		return true
	}
	for _, pid := range d.config.ProductIDs {
		if strings.EqualFold(p.PID, pid) {
			return true
		}
	}
	return false
}
