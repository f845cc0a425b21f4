package midi

import (
	"errors"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Message limits.
const (
	// MaxChannel is the highest zero-based MIDI channel.
	MaxChannel = 15

	// MaxData7 is the highest 7-bit data value.
	MaxData7 = 127

	// MaxBend is the highest 14-bit pitch bend value. Center is 8192.
	MaxBend = 16383

	// BendCenter is the pitch bend rest position.
	BendCenter = 8192
)

// ErrUnsupportedMessage is returned by Decode for messages the bridge does
// not translate (system messages, aftertouch, ...).
var ErrUnsupportedMessage = errors.New("unsupported midi message")

// Kind is the type of a channel message.
type Kind uint8

const (
	// KindControlChange is a 7-bit controller change.
	KindControlChange Kind = iota + 1

	// KindNoteOn is a note on. Velocity 0 is kept as a note on.
	KindNoteOn

	// KindNoteOff is a note off.
	KindNoteOff

	// KindPitchBend is a 14-bit pitch bend.
	KindPitchBend

	// KindProgramChange is a program change.
	KindProgramChange
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindControlChange:
		return "CONTROL_CHANGE"
	case KindNoteOn:
		return "NOTE_ON"
	case KindNoteOff:
		return "NOTE_OFF"
	case KindPitchBend:
		return "PITCH_BEND"
	case KindProgramChange:
		return "PROGRAM_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// Message is a decoded channel message.
//
// Data1 is the controller, note or program number. Data2 is the controller
// value or velocity. Bend holds the 14-bit pitch bend value (0-16383) and is
// only set for KindPitchBend.
type Message struct {
	Kind    Kind
	Channel uint8
	Data1   uint8
	Data2   uint8
	Bend    uint16
}

// ControlChange returns a Control Change message.
func ControlChange(channel, controller, value uint8) Message {
	return Message{Kind: KindControlChange, Channel: channel, Data1: controller, Data2: value}
}

// NoteOn returns a Note On message.
func NoteOn(channel, note, velocity uint8) Message {
	return Message{Kind: KindNoteOn, Channel: channel, Data1: note, Data2: velocity}
}

// NoteOff returns a Note Off message.
func NoteOff(channel, note uint8) Message {
	return Message{Kind: KindNoteOff, Channel: channel, Data1: note}
}

// PitchBend returns a Pitch Bend message. value is clamped to 0-16383.
func PitchBend(channel uint8, value uint16) Message {
	if value > MaxBend {
		value = MaxBend
	}
	return Message{Kind: KindPitchBend, Channel: channel, Bend: value}
}

// ProgramChange returns a Program Change message.
func ProgramChange(channel, program uint8) Message {
	return Message{Kind: KindProgramChange, Channel: channel, Data1: program}
}

// Valid reports whether all fields are in range for the kind.
func (m Message) Valid() bool {
	if m.Channel > MaxChannel {
		return false
	}
	switch m.Kind {
	case KindControlChange, KindNoteOn, KindNoteOff:
		return m.Data1 <= MaxData7 && m.Data2 <= MaxData7
	case KindProgramChange:
		return m.Data1 <= MaxData7
	case KindPitchBend:
		return m.Bend <= MaxBend
	default:
		return false
	}
}

// String returns a compact human-readable form.
func (m Message) String() string {
	switch m.Kind {
	case KindControlChange:
		return fmt.Sprintf("CC ch=%d cc=%d val=%d", m.Channel, m.Data1, m.Data2)
	case KindNoteOn:
		return fmt.Sprintf("NoteOn ch=%d note=%d vel=%d", m.Channel, m.Data1, m.Data2)
	case KindNoteOff:
		return fmt.Sprintf("NoteOff ch=%d note=%d", m.Channel, m.Data1)
	case KindPitchBend:
		return fmt.Sprintf("PitchBend ch=%d val=%d", m.Channel, m.Bend)
	case KindProgramChange:
		return fmt.Sprintf("ProgramChange ch=%d prog=%d", m.Channel, m.Data1)
	default:
		return "Unknown"
	}
}

// Decode converts a raw gomidi message.
//
// Note On with velocity 0 stays KindNoteOn; callers that care about the
// release convention check Data2.
func Decode(raw gomidi.Message) (Message, error) {
	if len(raw) == 0 {
		return Message{}, fmt.Errorf("%w: empty", ErrUnsupportedMessage)
	}

	var ch, a, b uint8
	switch {
	case raw.GetControlChange(&ch, &a, &b):
		return ControlChange(ch, a, b), nil

	case raw[0]&0xF0 == 0x90 && len(raw) >= 3:
		// Read directly: gomidi reports velocity 0 as a note off.
		return NoteOn(raw[0]&0x0F, raw[1]&0x7F, raw[2]&0x7F), nil

	case raw.GetNoteOff(&ch, &a, &b):
		return NoteOff(ch, a), nil

	case raw.Is(gomidi.PitchBendMsg):
		var rel int16
		var abs uint16
		raw.GetPitchBend(&ch, &rel, &abs)
		return PitchBend(ch, abs), nil

	case raw.GetProgramChange(&ch, &a):
		return ProgramChange(ch, a), nil
	}

	return Message{}, fmt.Errorf("%w: % X", ErrUnsupportedMessage, []byte(raw))
}

// Encode converts m to a raw gomidi message.
func (m Message) Encode() (gomidi.Message, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid midi message: %s", m)
	}

	switch m.Kind {
	case KindControlChange:
		return gomidi.ControlChange(m.Channel, m.Data1, m.Data2), nil
	case KindNoteOn:
		return gomidi.NoteOn(m.Channel, m.Data1, m.Data2), nil
	case KindNoteOff:
		return gomidi.NoteOff(m.Channel, m.Data1), nil
	case KindPitchBend:
		return gomidi.Pitchbend(m.Channel, int16(int(m.Bend)-BendCenter)), nil
	case KindProgramChange:
		return gomidi.ProgramChange(m.Channel, m.Data1), nil
	}
	return nil, fmt.Errorf("%w: kind %s", ErrUnsupportedMessage, m.Kind)
}
