// Command ucbridge bridges MIDI control surfaces and UCNet mixers.
//
// Usage:
//
//	ucbridge [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write a protocol capture (.uclog) to this file
//	-interactive          Enable interactive command mode
//	-watch-ports          Poll for MIDI port hot-plug
//
// Examples:
//
//	# Bridge with mappings from a config file, interactively
//	ucbridge -config studio.yaml -interactive
//
//	# Capture the session for later analysis with ucbridge-log
//	ucbridge -config studio.yaml -protocol-log session.uclog
//
// Interactive Commands:
//
//	discover    - Discover devices
//	devices     - List devices
//	connect     - Connect a device
//	ports       - List MIDI ports
//	map         - Add a mapping
//	learn       - Learn a mapping from the next gesture
//	stats       - Show sync latency statistics
//	quit        - Exit the bridge
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the rtmidi driver

	"github.com/ucbridge/ucbridge-go/cmd/ucbridge/interactive"
	"github.com/ucbridge/ucbridge-go/pkg/log"
	"github.com/ucbridge/ucbridge-go/pkg/midi"
	"github.com/ucbridge/ucbridge-go/pkg/service"
	"github.com/ucbridge/ucbridge-go/pkg/transport"
)

// Flags holds the command-line flags.
type Flags struct {
	ConfigFile  string
	LogLevel    string
	ProtocolLog string
	Interactive bool
	WatchPorts  bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "YAML configuration file")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write a protocol capture (.uclog) to this file")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
	flag.BoolVar(&flags.WatchPorts, "watch-ports", false, "Poll for MIDI port hot-plug")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ucbridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level, err := parseLevel(flags.LogLevel)
	if err != nil {
		return err
	}
	logOut := &switchWriter{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(flags.ConfigFile)
	if err != nil {
		return err
	}
	mappings, err := cfg.allMappings()
	if err != nil {
		return err
	}
	discoverer, err := cfg.Discovery.discoverer()
	if err != nil {
		return err
	}

	var protoLogger log.Logger
	if flags.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(flags.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer func() {
			written, dropped := fileLogger.Counts()
			fileLogger.Close()
			logger.Info("protocol log closed", "file", flags.ProtocolLog, "events", written, "dropped", dropped)
		}()
		protoLogger = fileLogger
		if level <= slog.LevelDebug {
			// Frames stay in the file; the console gets sync decisions.
			syncLayer := log.LayerSync
			console := log.NewFilterLogger(log.NewSlogAdapter(logger), log.Filter{Layer: &syncLayer})
			protoLogger = log.NewMultiLogger(fileLogger, console)
		}
	}

	backend, err := midi.NewGomidiBackend(midi.GomidiConfig{
		VirtualIn:  cfg.MIDI.VirtualIn,
		VirtualOut: cfg.MIDI.VirtualOut,
		Exclude:    cfg.MIDI.Exclude,
		Logger:     logger.With("component", "gomidi"),
	})
	if err != nil {
		return fmt.Errorf("midi backend: %w", err)
	}
	defer backend.Close()

	svcConfig := service.DefaultConfig()
	svcConfig.Discoverer = discoverer
	svcConfig.MIDI = backend
	svcConfig.WatchPorts = flags.WatchPorts || cfg.MIDI.WatchPorts
	svcConfig.Logger = logger
	svcConfig.ProtocolLogger = protoLogger
	if cfg.ClientName != "" {
		svcConfig.Connection.ClientName = cfg.ClientName
	}
	if err := cfg.Protocol.apply(&svcConfig.Connection); err != nil {
		return err
	}
	if cfg.MIDI.PollInterval > 0 {
		svcConfig.PortPollInterval = cfg.MIDI.PollInterval
	}
	if cfg.Sync.LearnTimeout > 0 {
		svcConfig.LearnTimeout = cfg.Sync.LearnTimeout
	}
	if cfg.Sync.LatencyWarning > 0 {
		svcConfig.Engine.LatencyWarning = cfg.Sync.LatencyWarning
	}
	if cfg.Sync.QueueSize > 0 {
		svcConfig.Engine.QueueSize = cfg.Sync.QueueSize
	}
	svcConfig.Shadow.Tolerance = cfg.Sync.ShadowTolerance
	svcConfig.Shadow.MaxAge = cfg.Sync.ShadowMaxAge

	svc, err := service.NewService(svcConfig)
	if err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}
	if _, err := svc.ReplaceMappings(mappings); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}
	logger.Info("bridge running", "mappings", len(mappings), "state", svc.State(), "midi_driver", driverName())

	autoConnect(ctx, svc, cfg, logger)

	if flags.Interactive {
		shell, err := interactive.New(svc, interactive.Options{MappingsFile: cfg.MappingsFile})
		if err != nil {
			return err
		}
		// Route logs through readline so they do not clobber the prompt.
		logOut.Set(shell.Stderr())
		go shell.Run(ctx, cancel)
	} else {
		svc.OnEvent(eventLogger(logger))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := svc.Stop(); err != nil {
		logger.Warn("stop failed", "error", err)
	}
	return nil
}

// autoConnect opens the configured ports and devices. Failures are logged
// and the bridge keeps running.
func autoConnect(ctx context.Context, svc *service.Service, cfg FileConfig, logger *slog.Logger) {
	for _, id := range cfg.MIDI.Connect {
		if err := svc.ConnectPort(id); err != nil {
			logger.Warn("port connect failed", "port", id, "error", err)
		}
	}

	if len(cfg.Devices.Connect) == 0 {
		return
	}
	discoverCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := svc.DiscoverDevices(discoverCtx)
	cancel()
	if err != nil {
		logger.Warn("device discovery failed", "error", err)
		return
	}
	for _, id := range cfg.Devices.Connect {
		if err := svc.ConnectDevice(ctx, id); err != nil {
			logger.Warn("device connect failed", "device", id, "error", err)
		}
	}
}

func eventLogger(logger *slog.Logger) service.EventHandler {
	return func(e service.Event) {
		switch e.Type {
		case service.EventConnectionStateChanged:
			logger.Info("device state", "device", e.DeviceID, "from", e.OldState, "to", e.NewState)
			if e.NewState == transport.StateDisconnected {
				logger.Warn("device disconnected", "device", e.DeviceID)
			}
		case service.EventDeviceListChanged:
			logger.Info("devices discovered", "count", len(e.Devices))
		case service.EventPortListChanged:
			logger.Info("midi ports changed", "count", len(e.Ports))
		case service.EventPortStatusChanged:
			if len(e.Ports) > 0 {
				logger.Info("midi port status", "port", e.PortID, "status", e.Ports[0].Status)
			}
		case service.EventParameterSynced:
			logger.Debug("synced", "device", e.DeviceID, "path", e.Path, "value", e.Value, "direction", e.Direction, "latency", e.Latency)
		case service.EventLatencyWarning:
			logger.Warn("latency over budget", "device", e.DeviceID, "path", e.Path, "latency", e.Latency, "warnings", e.Stats.Warnings)
		case service.EventLearnResult:
			if e.LearnResult != nil {
				logger.Info("learn finished", "outcome", e.LearnResult.Outcome, "source", e.LearnResult.Mapping.Source)
			}
		case service.EventError:
			logger.Warn("bridge error", "op", e.Op, "device", e.DeviceID, "port", e.PortID, "error", e.Error)
		}
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s (use: debug, info, warn, error)", s)
	}
}

func driverName() string {
	if d := drivers.Get(); d != nil {
		return d.String()
	}
	return "none"
}

// switchWriter lets the log destination change after loggers are built.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}
