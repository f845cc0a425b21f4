package mapping

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ucbridge/ucbridge-go/pkg/midi"
)

// ErrInvalidMapping is wrapped by every ValidationError.
var ErrInvalidMapping = errors.New("invalid mapping")

// ValidationError names the offending field of a rejected mapping.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid mapping: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidMapping
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Source describes the MIDI side of a mapping.
type Source struct {
	Kind SourceKind `yaml:"kind"`

	// Number is the controller (MSB for 14-bit pairs) or note number.
	Number uint8 `yaml:"number"`

	// LSB is the low controller of a 14-bit pair.
	LSB uint8 `yaml:"lsb,omitempty"`
}

// String returns a compact form such as "cc7", "note60", "cc1/33" or "pb".
func (s Source) String() string {
	switch s.Kind {
	case SourceNote:
		return fmt.Sprintf("note%d", s.Number)
	case SourceControl14:
		return fmt.Sprintf("cc%d/%d", s.Number, s.LSB)
	default:
		if s.Number == PitchBendController {
			return "pb"
		}
		return fmt.Sprintf("cc%d", s.Number)
	}
}

// ParseSource parses the form produced by Source.String.
func ParseSource(s string) (Source, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "pb":
		return Source{Kind: SourceControl, Number: PitchBendController}, nil
	case strings.HasPrefix(s, "note"):
		n, err := parseNumber(s[len("note"):])
		if err != nil {
			return Source{}, fmt.Errorf("source %q: %w", s, err)
		}
		return Source{Kind: SourceNote, Number: n}, nil
	case strings.HasPrefix(s, "cc"):
		msb, lsb, pair := strings.Cut(s[len("cc"):], "/")
		n, err := parseNumber(msb)
		if err != nil {
			return Source{}, fmt.Errorf("source %q: %w", s, err)
		}
		if !pair {
			return Source{Kind: SourceControl, Number: n}, nil
		}
		l, err := parseNumber(lsb)
		if err != nil {
			return Source{}, fmt.Errorf("source %q: %w", s, err)
		}
		return Source{Kind: SourceControl14, Number: n, LSB: l}, nil
	default:
		return Source{}, fmt.Errorf("source %q: use ccN, ccN/M, noteN or pb", s)
	}
}

func parseNumber(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n > midi.MaxData7 {
		return 0, fmt.Errorf("number %q out of range 0-127", s)
	}
	return uint8(n), nil
}

// Target is a device parameter.
type Target struct {
	DeviceID string `yaml:"device"`
	Path     string `yaml:"path"`
}

// String returns "device:path".
func (t Target) String() string {
	return t.DeviceID + ":" + t.Path
}

// ParameterMapping binds one MIDI source to one device parameter.
type ParameterMapping struct {
	// ID identifies the mapping within a Set. Assigned on insert when empty.
	ID string `yaml:"id,omitempty"`

	// Channel is the zero-based MIDI channel.
	Channel uint8 `yaml:"channel"`

	Source Source    `yaml:"source"`
	Target Target    `yaml:"target"`
	Kind   ParamKind `yaml:"kind"`
	Curve  Curve     `yaml:"curve"`

	// Min and Max bound volume values. Ignored for mute and pan.
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`

	// Invert flips the shaped value before range mapping.
	Invert bool `yaml:"invert,omitempty"`

	// Bidirectional enables device to MIDI feedback.
	Bidirectional bool `yaml:"bidirectional,omitempty"`

	Label string `yaml:"label,omitempty"`
}

// New returns a mapping with the default curve for kind and range [0, 1].
func New(channel uint8, source Source, target Target, kind ParamKind) ParameterMapping {
	return ParameterMapping{
		Channel: channel,
		Source:  source,
		Target:  target,
		Kind:    kind,
		Curve:   DefaultCurve(kind),
		Min:     0,
		Max:     1,
	}
}

// Validate checks every field against protocol ranges.
func (m ParameterMapping) Validate() error {
	if m.Channel > midi.MaxChannel {
		return invalid("channel", "%d out of range 0-%d", m.Channel, midi.MaxChannel)
	}

	switch m.Source.Kind {
	case SourceControl:
		if m.Source.Number > midi.MaxData7 && m.Source.Number != PitchBendController {
			return invalid("source.number", "controller %d out of range 0-127", m.Source.Number)
		}
	case SourceNote:
		if m.Source.Number > midi.MaxData7 {
			return invalid("source.number", "note %d out of range 0-127", m.Source.Number)
		}
	case SourceControl14:
		if m.Source.Number > midi.MaxData7 {
			return invalid("source.number", "MSB controller %d out of range 0-127", m.Source.Number)
		}
		if m.Source.LSB > midi.MaxData7 {
			return invalid("source.lsb", "LSB controller %d out of range 0-127", m.Source.LSB)
		}
		if m.Source.LSB == m.Source.Number {
			return invalid("source.lsb", "LSB controller equals MSB controller %d", m.Source.Number)
		}
	default:
		return invalid("source.kind", "unknown source kind %d", m.Source.Kind)
	}

	if m.Target.DeviceID == "" {
		return invalid("target.device", "empty")
	}
	if m.Target.Path == "" {
		return invalid("target.path", "empty")
	}
	if _, ok := paramKindNames[m.Kind]; !ok {
		return invalid("kind", "unknown parameter kind %d", m.Kind)
	}
	if _, ok := curveNames[m.Curve]; !ok {
		return invalid("curve", "unknown curve %d", m.Curve)
	}
	if math.IsNaN(m.Min) || math.IsNaN(m.Max) || math.IsInf(m.Min, 0) || math.IsInf(m.Max, 0) {
		return invalid("range", "bounds must be finite")
	}
	if m.Min >= m.Max {
		return invalid("range", "min %g must be less than max %g", m.Min, m.Max)
	}
	return nil
}

// MatchesMIDI reports whether msg feeds this mapping.
func (m ParameterMapping) MatchesMIDI(msg midi.Message) bool {
	if msg.Channel != m.Channel {
		return false
	}
	switch msg.Kind {
	case midi.KindControlChange:
		switch m.Source.Kind {
		case SourceControl:
			return m.Source.Number == msg.Data1
		case SourceControl14:
			return m.Source.Number == msg.Data1 || m.Source.LSB == msg.Data1
		}
	case midi.KindNoteOn, midi.KindNoteOff:
		return m.Source.Kind == SourceNote && m.Source.Number == msg.Data1
	case midi.KindPitchBend:
		return m.Source.Kind == SourceControl && m.Source.Number == PitchBendController
	}
	return false
}

// withID returns m with a fresh ID if it has none.
func (m ParameterMapping) withID() ParameterMapping {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return m
}
