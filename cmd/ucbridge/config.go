package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ucbridge/ucbridge-go/pkg/discovery"
	"github.com/ucbridge/ucbridge-go/pkg/mapping"
	"github.com/ucbridge/ucbridge-go/pkg/transport"
)

// FileConfig is the YAML configuration file.
type FileConfig struct {
	ClientName string          `yaml:"client_name"`
	Protocol   ProtocolConfig  `yaml:"protocol"`
	Discovery  DiscoveryConfig `yaml:"discovery"`
	MIDI       MIDIConfig      `yaml:"midi"`
	Devices    DevicesConfig   `yaml:"devices"`
	Sync       SyncConfig      `yaml:"sync"`

	// MappingsFile is loaded in addition to Mappings and is where the
	// interactive "save" command writes.
	MappingsFile string                     `yaml:"mappings_file"`
	Mappings     []mapping.ParameterMapping `yaml:"mappings"`
}

// ProtocolConfig overrides handshake payloads for firmware that expects
// something other than the built-in defaults.
type ProtocolConfig struct {
	ClientType string `yaml:"client_type"`
	LocalPort  uint16 `yaml:"local_port"`

	// HelloHex replaces the Hello payload, hex encoded.
	HelloHex string `yaml:"hello_hex"`

	// SubscribeJSON replaces the Subscribe object. The session token is
	// still prepended.
	SubscribeJSON string `yaml:"subscribe_json"`
}

func (p ProtocolConfig) apply(c *transport.ConnectionConfig) error {
	if p.ClientType != "" {
		c.ClientType = p.ClientType
	}
	if p.LocalPort != 0 {
		c.LocalPort = p.LocalPort
	}
	if p.HelloHex != "" {
		b, err := hex.DecodeString(p.HelloHex)
		if err != nil {
			return fmt.Errorf("protocol.hello_hex: %w", err)
		}
		c.HelloPayload = b
	}
	if p.SubscribeJSON != "" {
		if !json.Valid([]byte(p.SubscribeJSON)) {
			return errors.New("protocol.subscribe_json: not valid JSON")
		}
		c.SubscribeBody = []byte(p.SubscribeJSON)
	}
	return nil
}

// DiscoveryConfig selects and tunes the device discoverers.
type DiscoveryConfig struct {
	Broadcast     *bool          `yaml:"broadcast"`
	QueryHex      string         `yaml:"query_hex"`
	MDNS          *bool          `yaml:"mdns"`
	Serial        *bool          `yaml:"serial"`
	Window        time.Duration  `yaml:"window"`
	BroadcastAddr string         `yaml:"broadcast_addr"`
	Interface     string         `yaml:"interface"`
	ProductIDs    []string       `yaml:"product_ids"`
	Static        []StaticDevice `yaml:"static"`
}

// StaticDevice is a device that is always reported by discovery.
type StaticDevice struct {
	Model     string `yaml:"model"`
	Serial    string `yaml:"serial"`
	Address   string `yaml:"address"`
	Transport string `yaml:"transport"`
}

// MIDIConfig configures ports.
type MIDIConfig struct {
	WatchPorts   bool          `yaml:"watch_ports"`
	PollInterval time.Duration `yaml:"poll_interval"`
	VirtualIn    string        `yaml:"virtual_in"`
	VirtualOut   string        `yaml:"virtual_out"`
	Exclude      []string      `yaml:"exclude"`

	// Connect lists port ids opened at startup.
	Connect []string `yaml:"connect"`
}

// DevicesConfig lists devices connected at startup.
type DevicesConfig struct {
	Connect []string `yaml:"connect"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	LatencyWarning  time.Duration `yaml:"latency_warning"`
	ShadowTolerance float64       `yaml:"shadow_tolerance"`
	ShadowMaxAge    time.Duration `yaml:"shadow_max_age"`
	LearnTimeout    time.Duration `yaml:"learn_timeout"`
	QueueSize       int           `yaml:"queue_size"`
}

// loadConfig reads path. An empty path yields the zero configuration.
func loadConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// allMappings returns the inline mappings followed by those from
// MappingsFile, validated.
func (c FileConfig) allMappings() ([]mapping.ParameterMapping, error) {
	out := make([]mapping.ParameterMapping, 0, len(c.Mappings))
	for i, m := range c.Mappings {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("mapping %d: %w", i, err)
		}
		out = append(out, m)
	}

	if c.MappingsFile != "" {
		ms, err := mapping.LoadFile(c.MappingsFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		out = append(out, ms...)
	}
	return out, nil
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// discoverer builds the discoverer set. Broadcast, mDNS and serial
// discovery are enabled unless switched off.
func (c DiscoveryConfig) discoverer() (discovery.Multi, error) {
	var multi discovery.Multi

	if enabled(c.Broadcast) {
		bc := discovery.DefaultBroadcastConfig()
		if c.Window > 0 {
			bc.Window = c.Window
		}
		if c.BroadcastAddr != "" {
			bc.BroadcastAddr = c.BroadcastAddr
		}
		if c.QueryHex != "" {
			q, err := hex.DecodeString(c.QueryHex)
			if err != nil {
				return nil, fmt.Errorf("discovery.query_hex: %w", err)
			}
			bc.QueryPayload = q
		}
		multi = append(multi, discovery.NewBroadcastDiscoverer(bc))
	}
	if enabled(c.MDNS) {
		multi = append(multi, discovery.NewMDNSDiscoverer(discovery.MDNSConfig{
			BrowseTimeout: c.Window,
			Interface:     c.Interface,
		}))
	}
	if enabled(c.Serial) {
		multi = append(multi, discovery.NewSerialDiscoverer(discovery.SerialConfig{
			ProductIDs: c.ProductIDs,
		}))
	}

	if len(c.Static) > 0 {
		handles := make([]transport.DeviceHandle, 0, len(c.Static))
		for _, d := range c.Static {
			h, err := d.handle()
			if err != nil {
				return nil, err
			}
			handles = append(handles, h)
		}
		multi = append(multi, discovery.NewStatic(handles...))
	}
	return multi, nil
}

func (d StaticDevice) handle() (transport.DeviceHandle, error) {
	h := transport.DeviceHandle{
		Model:   d.Model,
		Serial:  d.Serial,
		Address: d.Address,
	}
	if h.Address == "" {
		return h, fmt.Errorf("static device %q: address is required", d.Model)
	}
	switch strings.ToLower(d.Transport) {
	case "", "network", "tcp":
		h.Transport = transport.TransportNetwork
	case "serial", "usb":
		h.Transport = transport.TransportSerial
	default:
		return h, fmt.Errorf("static device %q: unknown transport %q (use: network, serial)", d.Model, d.Transport)
	}
	return h, nil
}
