// Package interactive provides the interactive command-line interface
// for the bridge.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/ucbridge/ucbridge-go/pkg/learn"
	"github.com/ucbridge/ucbridge-go/pkg/mapping"
	"github.com/ucbridge/ucbridge-go/pkg/service"
	"github.com/ucbridge/ucbridge-go/pkg/transport"
)

// Options configures the shell.
type Options struct {
	// MappingsFile is the default target of the save command.
	MappingsFile string

	// ShowSync prints every synced parameter. Off by default since a
	// moving fader produces dozens of lines per second.
	ShowSync bool
}

// Shell handles interactive mode for ucbridge.
type Shell struct {
	svc  *service.Service
	opts Options
	rl   *readline.Instance
}

// New creates a shell bound to svc.
func New(svc *service.Service, opts Options) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ucbridge> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := &Shell{svc: svc, opts: opts, rl: rl}
	svc.OnEvent(s.handleEvent)
	return s, nil
}

// Stdout returns a writer that coordinates with the readline input.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline input.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run starts the command loop. It calls cancel when the user exits.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "discover", "d":
			s.cmdDiscover(ctx)

		case "devices", "ls":
			s.cmdDevices()

		case "connect", "c":
			s.cmdConnect(ctx, args)

		case "disconnect", "dc":
			s.cmdDisconnect(args)

		case "ports", "p":
			s.cmdPorts(args)

		case "port-connect", "pc":
			s.cmdPortConnect(args)

		case "port-disconnect", "pd":
			s.cmdPortDisconnect(args)

		case "mappings", "m":
			s.cmdMappings()

		case "map":
			s.cmdMap(args)

		case "unmap":
			s.cmdUnmap(args)

		case "learn", "l":
			s.cmdLearn(args)

		case "cancel":
			s.cmdCancel()

		case "stats":
			s.cmdStats()

		case "clear-stats":
			s.svc.ClearLatencyStats()
			fmt.Fprintln(s.rl.Stdout(), "Latency statistics cleared")

		case "clear-shadow":
			s.cmdClearShadow(args)

		case "save":
			s.cmdSave(args)

		case "sync":
			s.opts.ShowSync = !s.opts.ShowSync
			fmt.Fprintf(s.rl.Stdout(), "Sync display %s\n", onOff(s.opts.ShowSync))

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
ucbridge Commands:
  Devices:
    discover                 - Discover UCNet devices
    devices                  - List known devices
    connect <device-id>      - Connect to a device (prefix match)
    disconnect <device-id>   - Disconnect a device

  MIDI:
    ports [refresh]          - List MIDI ports
    port-connect <port-id>   - Open a port (e.g. in:X-Touch)
    port-disconnect <port-id>

  Mappings:
    mappings                 - List mappings
    map <ch> <src> <device-id> <path> <kind> [curve=C] [min=N] [max=N] [invert] [bidir] [label=L]
    unmap <id>|all           - Remove a mapping (prefix match)
    learn <device-id> <path> <kind> [ch|any] [bidir]
    cancel                   - Cancel learn mode
    save [file]              - Write mappings to YAML

  Sync:
    stats                    - Show latency statistics
    clear-stats              - Reset latency statistics
    clear-shadow [device-id] - Forget shadowed values
    sync                     - Toggle per-parameter sync output

  General:
    help                     - Show this help
    quit                     - Exit the bridge

  Sources: cc7, cc1/33 (14-bit), note60, pb
  Kinds:   volume, mute, pan
  Curves:  linear, logarithmic, audio_taper`)
}

func (s *Shell) cmdDiscover(ctx context.Context) {
	fmt.Fprintln(s.rl.Stdout(), "Discovering devices...")

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	devices, err := s.svc.DiscoverDevices(dctx)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Discovery failed: %v\n", err)
		return
	}
	if len(devices) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No devices found")
		return
	}
	s.printDevices(devices)
}

func (s *Shell) cmdDevices() {
	devices := s.svc.Devices()
	if len(devices) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No devices known (run 'discover')")
		return
	}
	s.printDevices(devices)
}

func (s *Shell) printDevices(devices []transport.DeviceHandle) {
	fmt.Fprintf(s.rl.Stdout(), "\nDevices (%d):\n", len(devices))
	fmt.Fprintln(s.rl.Stdout(), "-------------------------------------------")
	for _, d := range devices {
		fmt.Fprintf(s.rl.Stdout(), "  %-24s %-12s %-8s %-22s %s\n",
			d.ID(), d.Model, d.Transport, d.Address, d.State)
	}
	fmt.Fprintln(s.rl.Stdout())
}

func (s *Shell) cmdConnect(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: connect <device-id>")
		return
	}
	id, ok := s.resolveDevice(args[0])
	if !ok {
		return
	}
	if err := s.svc.ConnectDevice(ctx, id); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Connect failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Connected to %s\n", id)
}

func (s *Shell) cmdDisconnect(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: disconnect <device-id>")
		return
	}
	id, ok := s.resolveDevice(args[0])
	if !ok {
		return
	}
	if err := s.svc.DisconnectDevice(id); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Disconnect failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Disconnected %s\n", id)
}

func (s *Shell) resolveDevice(partial string) (string, bool) {
	devices := s.svc.Devices()
	ids := make([]string, len(devices))
	for i, d := range devices {
		ids[i] = d.ID()
	}
	id, err := resolveID(partial, ids)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return "", false
	}
	return id, true
}

func (s *Shell) cmdPorts(args []string) {
	if len(args) > 0 && args[0] == "refresh" {
		change, err := s.svc.DiscoverPorts()
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Port scan failed: %v\n", err)
			return
		}
		fmt.Fprintf(s.rl.Stdout(), "%d added, %d removed\n", len(change.Added), len(change.Removed))
	}

	ports := s.svc.Ports()
	if len(ports) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No MIDI ports")
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "\nMIDI Ports (%d):\n", len(ports))
	fmt.Fprintln(s.rl.Stdout(), "-------------------------------------------")
	for _, p := range ports {
		fmt.Fprintf(s.rl.Stdout(), "  %-32s %s\n", p.ID(), p.Status)
	}
	fmt.Fprintln(s.rl.Stdout())
}

func (s *Shell) cmdPortConnect(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: port-connect <port-id>")
		return
	}
	id := strings.Join(args, " ")
	if err := s.svc.ConnectPort(id); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Port connect failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Opened %s\n", id)
}

func (s *Shell) cmdPortDisconnect(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: port-disconnect <port-id>")
		return
	}
	id := strings.Join(args, " ")
	if err := s.svc.DisconnectPort(id); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Port disconnect failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Closed %s\n", id)
}

func (s *Shell) cmdMappings() {
	mappings := s.svc.Mappings()
	if len(mappings) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No mappings")
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "\nMappings (%d):\n", len(mappings))
	fmt.Fprintln(s.rl.Stdout(), "--------------------------------------------------------------------------------")
	fmt.Fprintf(s.rl.Stdout(), "%-8s %-3s %-8s %-40s %-6s %-12s %s\n",
		"ID", "Ch", "Source", "Target", "Kind", "Curve", "Flags")
	for _, m := range mappings {
		var flags []string
		if m.Bidirectional {
			flags = append(flags, "bidir")
		}
		if m.Invert {
			flags = append(flags, "invert")
		}
		if m.Kind == mapping.KindVolume && (m.Min != 0 || m.Max != 1) {
			flags = append(flags, fmt.Sprintf("[%.2f,%.2f]", m.Min, m.Max))
		}
		if m.Label != "" {
			flags = append(flags, fmt.Sprintf("%q", m.Label))
		}
		fmt.Fprintf(s.rl.Stdout(), "%-8s %-3d %-8s %-40s %-6s %-12s %s\n",
			shortID(m.ID), m.Channel+1, m.Source, m.Target, m.Kind, m.Curve, strings.Join(flags, " "))
	}
	fmt.Fprintln(s.rl.Stdout())
}

func (s *Shell) cmdMap(args []string) {
	m, err := parseMapArgs(args)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	if id, ok := s.resolveDevice(m.Target.DeviceID); ok {
		m.Target.DeviceID = id
	} else {
		return
	}
	added, err := s.svc.AddMapping(m)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Added mapping %s: ch%d %s -> %s\n",
		shortID(added.ID), added.Channel+1, added.Source, added.Target)
}

func (s *Shell) cmdUnmap(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: unmap <id>|all")
		return
	}
	if args[0] == "all" {
		fmt.Fprintf(s.rl.Stdout(), "Removed %d mappings\n", s.svc.ClearMappings())
		return
	}

	mappings := s.svc.Mappings()
	ids := make([]string, len(mappings))
	for i, m := range mappings {
		ids[i] = m.ID
	}
	id, err := resolveID(args[0], ids)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	removed, err := s.svc.RemoveMapping(id)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Removed mapping %s (%s -> %s)\n", shortID(removed.ID), removed.Source, removed.Target)
}

func (s *Shell) cmdLearn(args []string) {
	req, err := parseLearnArgs(args)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	id, ok := s.resolveDevice(req.DeviceID)
	if !ok {
		return
	}
	req.DeviceID = id

	session, err := s.svc.StartLearn(req)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Learn failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Learn session %d: move a control to bind %s %s\n", session, id, req.Path)
}

func (s *Shell) cmdCancel() {
	if err := s.svc.CancelLearn(); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) cmdStats() {
	st := s.svc.LatencyStats()
	if st.Count == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No samples yet")
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "\nSync Latency (MIDI -> device):")
	fmt.Fprintf(s.rl.Stdout(), "  Samples:  %d\n", st.Count)
	fmt.Fprintf(s.rl.Stdout(), "  Min:      %v\n", st.Min)
	fmt.Fprintf(s.rl.Stdout(), "  Average:  %v\n", st.Average)
	fmt.Fprintf(s.rl.Stdout(), "  Max:      %v\n", st.Max)
	fmt.Fprintf(s.rl.Stdout(), "  Last:     %v\n", st.Last)
	fmt.Fprintf(s.rl.Stdout(), "  Warnings: %d\n", st.Warnings)
	fmt.Fprintln(s.rl.Stdout())
}

func (s *Shell) cmdClearShadow(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(s.rl.Stdout(), "Cleared %d shadow entries\n", s.svc.ClearAllShadow())
		return
	}
	id, ok := s.resolveDevice(args[0])
	if !ok {
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Cleared %d shadow entries for %s\n", s.svc.ClearShadow(id), id)
}

func (s *Shell) cmdSave(args []string) {
	path := s.opts.MappingsFile
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		fmt.Fprintln(s.rl.Stdout(), "Usage: save <file> (no mappings_file configured)")
		return
	}
	mappings := s.svc.Mappings()
	if err := mapping.SaveFile(path, mappings); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Save failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Saved %d mappings to %s\n", len(mappings), path)
}

// handleEvent prints service events that the user should see.
func (s *Shell) handleEvent(e service.Event) {
	out := s.rl.Stdout()
	switch e.Type {
	case service.EventConnectionStateChanged:
		fmt.Fprintf(out, "[DEVICE] %s: %s -> %s\n", e.DeviceID, e.OldState, e.NewState)

	case service.EventPortListChanged:
		fmt.Fprintf(out, "[MIDI] %d ports available\n", len(e.Ports))

	case service.EventPortStatusChanged:
		if len(e.Ports) > 0 {
			fmt.Fprintf(out, "[MIDI] %s: %s\n", e.PortID, e.Ports[0].Status)
		}

	case service.EventParameterSynced:
		if s.opts.ShowSync {
			fmt.Fprintf(out, "[SYNC] %s %s/%s = %.3f (%v)\n", e.Direction, e.DeviceID, e.Path, e.Value, e.Latency)
		}

	case service.EventLatencyWarning:
		fmt.Fprintf(out, "[WARN] %s/%s took %v (%d over budget)\n", e.DeviceID, e.Path, e.Latency, e.Stats.Warnings)

	case service.EventLearnStateChanged:
		if _, ok := e.LearnState.(learn.Listening); ok {
			fmt.Fprintln(out, "[LEARN] Listening...")
		}

	case service.EventLearnResult:
		if e.LearnResult == nil {
			return
		}
		res := e.LearnResult
		if res.Outcome == learn.OutcomeSuccess {
			fmt.Fprintf(out, "[LEARN] ch%d %s -> %s (%v)\n",
				res.Mapping.Channel+1, res.Mapping.Source, res.Mapping.Target, res.Elapsed.Round(time.Millisecond))
		} else {
			fmt.Fprintf(out, "[LEARN] %s\n", res.Outcome)
		}

	case service.EventError:
		target := e.DeviceID
		if target == "" {
			target = e.PortID
		}
		fmt.Fprintf(out, "[ERROR] %s %s: %v\n", e.Op, target, e.Error)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
