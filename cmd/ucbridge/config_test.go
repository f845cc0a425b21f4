package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucbridge/ucbridge-go/pkg/mapping"
	"github.com/ucbridge/ucbridge-go/pkg/transport"
)

const sampleConfig = `
client_name: Studio Bridge
discovery:
  broadcast: false
  mdns: false
  serial: false
  static:
    - model: StudioLive 32R
      serial: SL32R-1234
      address: 192.168.1.40:53000
    - model: Quantum
      address: /dev/ttyACM0
      transport: usb
midi:
  watch_ports: true
  poll_interval: 500ms
  connect: ["in:X-Touch", "out:X-Touch"]
devices:
  connect: [SL32R-1234]
sync:
  latency_warning: 5ms
  shadow_tolerance: 0.01
  learn_timeout: 20s
mappings:
  - channel: 0
    source: {kind: control, number: 7}
    target: {device: SL32R-1234, path: line/ch1/volume}
    kind: volume
  - channel: 0
    source: {kind: note, number: 16}
    target: {device: SL32R-1234, path: line/ch1/mute}
    kind: mute
    bidirectional: true
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(writeFile(t, "bridge.yaml", sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "Studio Bridge", cfg.ClientName)
	assert.True(t, cfg.MIDI.WatchPorts)
	assert.Equal(t, 500*time.Millisecond, cfg.MIDI.PollInterval)
	assert.Equal(t, []string{"in:X-Touch", "out:X-Touch"}, cfg.MIDI.Connect)
	assert.Equal(t, []string{"SL32R-1234"}, cfg.Devices.Connect)
	assert.Equal(t, 5*time.Millisecond, cfg.Sync.LatencyWarning)
	assert.Equal(t, 20*time.Second, cfg.Sync.LearnTimeout)
	assert.InDelta(t, 0.01, cfg.Sync.ShadowTolerance, 1e-9)

	ms, err := cfg.allMappings()
	require.NoError(t, err)
	require.Len(t, ms, 2)
	if ms[0].Curve != mapping.CurveAudioTaper {
		t.Errorf("volume curve = %v, want %v", ms[0].Curve, mapping.CurveAudioTaper)
	}
	assert.True(t, ms[1].Bidirectional)
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Mappings)
}

func TestLoadConfigRejectsUnknownField(t *testing.T) {
	_, err := loadConfig(writeFile(t, "bad.yaml", "sync:\n  latency_budget: 5ms\n"))
	assert.Error(t, err)
}

func TestAllMappingsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mappings.yaml")
	extra := mapping.New(1, mapping.Source{Kind: mapping.SourceControl, Number: 10},
		mapping.Target{DeviceID: "SL32R-1234", Path: "line/ch2/pan"}, mapping.KindPan)
	require.NoError(t, mapping.SaveFile(file, []mapping.ParameterMapping{extra}))

	cfg := FileConfig{MappingsFile: file}
	ms, err := cfg.allMappings()
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, mapping.KindPan, ms[0].Kind)

	// A missing file is not an error; save creates it later.
	cfg.MappingsFile = filepath.Join(dir, "missing.yaml")
	ms, err = cfg.allMappings()
	require.NoError(t, err)
	assert.Empty(t, ms)
}

func TestAllMappingsRejectsInvalid(t *testing.T) {
	cfg := FileConfig{Mappings: []mapping.ParameterMapping{{
		Source: mapping.Source{Kind: mapping.SourceControl, Number: 7},
		Target: mapping.Target{DeviceID: "SL32R-1234"},
		Max:    1,
	}}}
	_, err := cfg.allMappings()
	assert.ErrorIs(t, err, mapping.ErrInvalidMapping)
}

func TestDiscovererStatic(t *testing.T) {
	cfg, err := loadConfig(writeFile(t, "bridge.yaml", sampleConfig))
	require.NoError(t, err)

	d, err := cfg.Discovery.discoverer()
	require.NoError(t, err)
	require.Len(t, d, 1)

	handles, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, handles, 2)

	byModel := map[string]transport.DeviceHandle{}
	for _, h := range handles {
		byModel[h.Model] = h
	}
	assert.Equal(t, transport.TransportNetwork, byModel["StudioLive 32R"].Transport)
	assert.Equal(t, transport.TransportSerial, byModel["Quantum"].Transport)
}

func TestDiscovererDefaults(t *testing.T) {
	d, err := DiscoveryConfig{}.discoverer()
	require.NoError(t, err)
	if len(d) != 3 {
		t.Errorf("len(discoverers) = %d, want 3", len(d))
	}
}

func TestProtocolApply(t *testing.T) {
	conn := transport.DefaultConnectionConfig()
	p := ProtocolConfig{
		ClientType:    "Surface Bridge",
		LocalPort:     53001,
		HelloHex:      "1500e400",
		SubscribeJSON: `{"id":"Subscribe","clientName":"x"}`,
	}
	require.NoError(t, p.apply(&conn))
	assert.Equal(t, "Surface Bridge", conn.ClientType)
	assert.Equal(t, uint16(53001), conn.LocalPort)
	assert.Equal(t, []byte{0x15, 0x00, 0xe4, 0x00}, conn.HelloPayload)
	assert.JSONEq(t, `{"id":"Subscribe","clientName":"x"}`, string(conn.SubscribeBody))

	untouched := transport.DefaultConnectionConfig()
	require.NoError(t, ProtocolConfig{}.apply(&untouched))
	assert.Equal(t, transport.DefaultConnectionConfig().ClientType, untouched.ClientType)
	assert.Nil(t, untouched.HelloPayload)
}

func TestProtocolApplyRejects(t *testing.T) {
	conn := transport.DefaultConnectionConfig()
	assert.Error(t, ProtocolConfig{HelloHex: "zz"}.apply(&conn))
	assert.Error(t, ProtocolConfig{SubscribeJSON: "{not json"}.apply(&conn))
}

func TestDiscovererRejectsBadQuery(t *testing.T) {
	off := false
	_, err := DiscoveryConfig{MDNS: &off, Serial: &off, QueryHex: "xyz"}.discoverer()
	assert.Error(t, err)
}

func TestStaticDeviceHandle(t *testing.T) {
	tests := []struct {
		name    string
		device  StaticDevice
		want    transport.TransportKind
		wantErr bool
	}{
		{"default network", StaticDevice{Model: "A", Address: "10.0.0.2:53000"}, transport.TransportNetwork, false},
		{"tcp", StaticDevice{Model: "A", Address: "10.0.0.2:53000", Transport: "TCP"}, transport.TransportNetwork, false},
		{"serial", StaticDevice{Model: "B", Address: "/dev/ttyACM0", Transport: "serial"}, transport.TransportSerial, false},
		{"missing address", StaticDevice{Model: "C"}, 0, true},
		{"unknown transport", StaticDevice{Model: "D", Address: "x", Transport: "bluetooth"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := tt.device.handle()
			if (err != nil) != tt.wantErr {
				t.Fatalf("handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && h.Transport != tt.want {
				t.Errorf("Transport = %v, want %v", h.Transport, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "", "warn", "warning", "error"} {
		if _, err := parseLevel(s); err != nil {
			t.Errorf("parseLevel(%q) error = %v", s, err)
		}
	}
	if _, err := parseLevel("trace"); err == nil {
		t.Error("parseLevel(trace) succeeded")
	}
}
