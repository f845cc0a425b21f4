// Package learn captures the next MIDI gesture and turns it into a mapping.
//
// A Machine is either Idle or Listening. Start moves it to Listening; the
// first qualifying message, the session timer or Cancel moves it back to
// Idle and delivers exactly one Result. Program Change, Note Off and Note On
// with velocity 0 never qualify.
package learn

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ucbridge/ucbridge-go/pkg/mapping"
	"github.com/ucbridge/ucbridge-go/pkg/midi"
)

// DefaultTimeout is how long a session listens.
const DefaultTimeout = 10 * time.Second

// AnyChannel accepts a gesture on any MIDI channel.
const AnyChannel = -1

// Learn errors.
var (
	ErrAlreadyListening = errors.New("learn session already active")
	ErrNotListening     = errors.New("no learn session active")
	ErrInvalidRequest   = errors.New("invalid learn request")
)

// SessionID identifies one learn session.
type SessionID uint64

// Request starts a session.
type Request struct {
	DeviceID string
	Path     string

	// Channel restricts capture to one channel, or AnyChannel.
	Channel int

	Kind          mapping.ParamKind
	Label         string
	Bidirectional bool
}

func (r Request) validate() error {
	if r.DeviceID == "" {
		return fmt.Errorf("%w: empty device id", ErrInvalidRequest)
	}
	if r.Path == "" {
		return fmt.Errorf("%w: empty parameter path", ErrInvalidRequest)
	}
	if r.Channel < AnyChannel || r.Channel > midi.MaxChannel {
		return fmt.Errorf("%w: channel %d", ErrInvalidRequest, r.Channel)
	}
	if r.Kind.String() == "unknown" {
		return fmt.Errorf("%w: parameter kind %d", ErrInvalidRequest, r.Kind)
	}
	return nil
}

// State is Idle or Listening.
type State interface {
	isState()
	String() string
}

// Idle is the resting state.
type Idle struct{}

func (Idle) isState()       {}
func (Idle) String() string { return "IDLE" }

// Listening is an active session.
type Listening struct {
	SessionID SessionID
	DeviceID  string
	Path      string
	Channel   int
	Kind      mapping.ParamKind
	Started   time.Time
}

func (Listening) isState()       {}
func (Listening) String() string { return "LISTENING" }

// Outcome is how a session ended.
type Outcome uint8

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeCancelled
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeTimeout:
		return "TIMEOUT"
	case OutcomeCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Result is the single outcome of a session. Mapping and Message are set
// only on success.
type Result struct {
	SessionID SessionID
	Outcome   Outcome
	Mapping   mapping.ParameterMapping
	Message   midi.Message
	Elapsed   time.Duration
}

// Config configures a Machine.
type Config struct {
	// Timeout is the session length (default: 10s).
	Timeout time.Duration

	// OnResult receives every session outcome. Called without locks held.
	OnResult func(Result)

	// OnStateChange receives every state transition in the order the
	// transitions happened. Called without locks held, before OnResult.
	OnStateChange func(State)

	// Logger receives operational logs (nil = discard).
	Logger *slog.Logger
}

// Machine is the learn state machine. It is safe for concurrent use.
type Machine struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	req    Request
	timer  *time.Timer
	nextID SessionID

	// pending holds callbacks in transition order; one caller at a time
	// drains it.
	pending  []func()
	draining bool
}

// NewMachine returns an idle machine.
func NewMachine(config Config) *Machine {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Machine{config: config, logger: logger, state: Idle{}}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins a session.
func (m *Machine) Start(req Request) (SessionID, error) {
	if err := req.validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	if _, listening := m.state.(Listening); listening {
		m.mu.Unlock()
		return 0, ErrAlreadyListening
	}

	m.nextID++
	id := m.nextID
	st := Listening{
		SessionID: id,
		DeviceID:  req.DeviceID,
		Path:      req.Path,
		Channel:   req.Channel,
		Kind:      req.Kind,
		Started:   time.Now(),
	}
	m.state = st
	m.req = req
	m.timer = time.AfterFunc(m.config.Timeout, func() { m.expire(id) })
	m.queueLocked(func() { m.notifyState(st) })
	m.mu.Unlock()

	m.logger.Info("learn started", "session", id, "device", req.DeviceID, "path", req.Path, "kind", req.Kind)
	m.drain()
	return id, nil
}

// Cancel ends the active session with OutcomeCancelled.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	st, listening := m.state.(Listening)
	if !listening {
		m.mu.Unlock()
		return ErrNotListening
	}
	m.queueResultLocked(m.finishLocked(st, OutcomeCancelled))
	m.mu.Unlock()

	m.drain()
	return nil
}

// Offer tests msg against the active session. It returns true if msg
// completed the session.
func (m *Machine) Offer(msg midi.Message) bool {
	m.mu.Lock()
	st, listening := m.state.(Listening)
	if !listening {
		m.mu.Unlock()
		return false
	}
	if st.Channel != AnyChannel && int(msg.Channel) != st.Channel {
		m.mu.Unlock()
		return false
	}
	src, ok := Qualify(msg)
	if !ok {
		m.mu.Unlock()
		return false
	}

	res := m.finishLocked(st, OutcomeSuccess)
	res.Message = msg
	res.Mapping = mapping.New(msg.Channel, src, mapping.Target{DeviceID: st.DeviceID, Path: st.Path}, st.Kind)
	res.Mapping.Label = m.req.Label
	res.Mapping.Bidirectional = m.req.Bidirectional
	m.queueResultLocked(res)
	m.mu.Unlock()

	m.drain()
	return true
}

// Qualify reports whether msg is a learnable gesture and returns its source.
func Qualify(msg midi.Message) (mapping.Source, bool) {
	switch msg.Kind {
	case midi.KindControlChange:
		return mapping.Source{Kind: mapping.SourceControl, Number: msg.Data1}, true
	case midi.KindNoteOn:
		if msg.Data2 == 0 {
			return mapping.Source{}, false
		}
		return mapping.Source{Kind: mapping.SourceNote, Number: msg.Data1}, true
	case midi.KindPitchBend:
		return mapping.Source{Kind: mapping.SourceControl, Number: mapping.PitchBendController}, true
	default:
		return mapping.Source{}, false
	}
}

func (m *Machine) expire(id SessionID) {
	m.mu.Lock()
	st, listening := m.state.(Listening)
	if !listening || st.SessionID != id {
		m.mu.Unlock()
		return
	}
	m.queueResultLocked(m.finishLocked(st, OutcomeTimeout))
	m.mu.Unlock()

	m.drain()
}

// finishLocked returns to Idle. Caller holds m.mu.
func (m *Machine) finishLocked(st Listening, outcome Outcome) Result {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.state = Idle{}
	return Result{SessionID: st.SessionID, Outcome: outcome, Elapsed: time.Since(st.Started)}
}

// queueResultLocked schedules the Idle notification and res. Caller holds
// m.mu.
func (m *Machine) queueResultLocked(res Result) {
	m.queueLocked(func() {
		m.logger.Info("learn finished", "session", res.SessionID, "outcome", res.Outcome)
		m.notifyState(Idle{})
		if m.config.OnResult != nil {
			m.config.OnResult(res)
		}
	})
}

func (m *Machine) queueLocked(fn func()) {
	m.pending = append(m.pending, fn)
}

// drain runs queued callbacks without holding m.mu. If another caller is
// already draining, it returns at once and that caller runs them.
func (m *Machine) drain() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.pending) > 0 {
		fn := m.pending[0]
		m.pending[0] = nil
		m.pending = m.pending[1:]
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

func (m *Machine) notifyState(st State) {
	if m.config.OnStateChange != nil {
		m.config.OnStateChange(st)
	}
}
