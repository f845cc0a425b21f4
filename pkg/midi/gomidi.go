package midi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Backend errors.
var (
	ErrNoDriver           = errors.New("no midi driver registered")
	ErrVirtualUnsupported = errors.New("midi driver does not support virtual ports")
	ErrPortNotFound       = errors.New("midi port not found")
)

// virtualOpener is implemented by drivers that can create virtual ports
// (rtmididrv).
type virtualOpener interface {
	OpenVirtualIn(name string) (drivers.In, error)
	OpenVirtualOut(name string) (drivers.Out, error)
}

// GomidiConfig configures the gomidi backend.
type GomidiConfig struct {
	// VirtualIn creates a virtual input with this name when set.
	VirtualIn string

	// VirtualOut creates a virtual output with this name when set.
	VirtualOut string

	// Exclude hides ports whose name contains any of these substrings
	// (case-insensitive), e.g. "Midi Through".
	Exclude []string

	// Logger receives operational logs (nil = discard).
	Logger *slog.Logger
}

// GomidiBackend enumerates and opens ports through the registered gomidi
// driver. Programs select the driver with a blank import, normally
// gitlab.com/gomidi/midi/v2/drivers/rtmididrv.
type GomidiBackend struct {
	config GomidiConfig
	logger *slog.Logger

	mu       sync.Mutex
	virtIns  []drivers.In
	virtOuts []drivers.Out
}

// NewGomidiBackend creates the backend and any configured virtual ports.
func NewGomidiBackend(config GomidiConfig) (*GomidiBackend, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &GomidiBackend{config: config, logger: logger}

	if config.VirtualIn == "" && config.VirtualOut == "" {
		return b, nil
	}

	drv := drivers.Get()
	if drv == nil {
		return nil, ErrNoDriver
	}
	vo, ok := drv.(virtualOpener)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVirtualUnsupported, drv)
	}
	if config.VirtualIn != "" {
		in, err := vo.OpenVirtualIn(config.VirtualIn)
		if err != nil {
			return nil, fmt.Errorf("virtual input %q: %w", config.VirtualIn, err)
		}
		b.virtIns = append(b.virtIns, in)
	}
	if config.VirtualOut != "" {
		out, err := vo.OpenVirtualOut(config.VirtualOut)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("virtual output %q: %w", config.VirtualOut, err)
		}
		b.virtOuts = append(b.virtOuts, out)
	}
	return b, nil
}

// Close closes virtual ports and the driver.
func (b *GomidiBackend) Close() error {
	b.mu.Lock()
	for _, in := range b.virtIns {
		in.Close()
	}
	for _, out := range b.virtOuts {
		out.Close()
	}
	b.virtIns, b.virtOuts = nil, nil
	b.mu.Unlock()

	gomidi.CloseDriver()
	return nil
}

// Ports implements Backend.
func (b *GomidiBackend) Ports() ([]ControllerPort, error) {
	ins, err := b.inputs()
	if err != nil {
		return nil, err
	}
	outs, err := b.outputs()
	if err != nil {
		return nil, err
	}

	ports := make([]ControllerPort, 0, len(ins)+len(outs))
	for _, in := range ins {
		ports = append(ports, ControllerPort{Index: in.Number(), Name: in.String(), Direction: DirectionIn})
	}
	for _, out := range outs {
		ports = append(ports, ControllerPort{Index: out.Number(), Name: out.String(), Direction: DirectionOut})
	}
	return ports, nil
}

// OpenIn implements Backend.
func (b *GomidiBackend) OpenIn(port ControllerPort, recv Receiver, onErr func(error)) (io.Closer, error) {
	ins, err := b.inputs()
	if err != nil {
		return nil, err
	}
	var in drivers.In
	seen := 0
	for _, p := range ins {
		if p.String() != port.Name {
			continue
		}
		if seen == port.Occurrence {
			in = p
			break
		}
		seen++
	}
	if in == nil {
		return nil, fmt.Errorf("%w: %s", ErrPortNotFound, port.ID())
	}

	stop, err := gomidi.ListenTo(in, func(raw gomidi.Message, _ int32) {
		msg, err := Decode(raw)
		if err != nil {
			// Clock, sysex and friends are not translated.
			return
		}
		recv(msg, time.Now())
	}, gomidi.HandleError(func(err error) {
		if onErr != nil {
			onErr(err)
		}
	}))
	if err != nil {
		return nil, err
	}

	return closerFunc(func() error {
		stop()
		if b.isVirtualIn(port.Name) {
			return nil
		}
		return in.Close()
	}), nil
}

// OpenOut implements Backend.
func (b *GomidiBackend) OpenOut(port ControllerPort) (Output, error) {
	outs, err := b.outputs()
	if err != nil {
		return nil, err
	}
	var out drivers.Out
	seen := 0
	for _, p := range outs {
		if p.String() != port.Name {
			continue
		}
		if seen == port.Occurrence {
			out = p
			break
		}
		seen++
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s", ErrPortNotFound, port.ID())
	}

	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, err
	}
	return &gomidiOutput{out: out, send: send, virtual: b.isVirtualOut(port.Name)}, nil
}

func (b *GomidiBackend) inputs() ([]drivers.In, error) {
	ins, err := drivers.Ins()
	if err != nil {
		return nil, fmt.Errorf("list midi inputs: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	// Drivers list our virtual ports too. Identical hardware ports stay.
	virtual := make(map[string]bool, len(b.virtIns))
	var out []drivers.In
	for _, in := range b.virtIns {
		virtual[in.String()] = true
		if !b.excluded(in.String()) {
			out = append(out, in)
		}
	}
	for _, in := range ins {
		name := in.String()
		if virtual[name] || b.excluded(name) {
			continue
		}
		out = append(out, in)
	}
	return out, nil
}

func (b *GomidiBackend) outputs() ([]drivers.Out, error) {
	outs, err := drivers.Outs()
	if err != nil {
		return nil, fmt.Errorf("list midi outputs: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	virtual := make(map[string]bool, len(b.virtOuts))
	var res []drivers.Out
	for _, out := range b.virtOuts {
		virtual[out.String()] = true
		if !b.excluded(out.String()) {
			res = append(res, out)
		}
	}
	for _, out := range outs {
		name := out.String()
		if virtual[name] || b.excluded(name) {
			continue
		}
		res = append(res, out)
	}
	return res, nil
}

func (b *GomidiBackend) excluded(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range b.config.Exclude {
		if pat != "" && strings.Contains(lower, strings.ToLower(pat)) {
			b.logger.Debug("midi port excluded", "port", name)
			return true
		}
	}
	return false
}

func (b *GomidiBackend) isVirtualIn(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range b.virtIns {
		if v.String() == name {
			return true
		}
	}
	return false
}

func (b *GomidiBackend) isVirtualOut(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range b.virtOuts {
		if v.String() == name {
			return true
		}
	}
	return false
}

type gomidiOutput struct {
	out     drivers.Out
	send    func(gomidi.Message) error
	virtual bool
}

func (o *gomidiOutput) Send(msg Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}
	return o.send(raw)
}

func (o *gomidiOutput) Close() error {
	if o.virtual {
		return nil
	}
	return o.out.Close()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var _ Backend = (*GomidiBackend)(nil)
