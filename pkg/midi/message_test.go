package midi

import (
	"errors"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"control change", ControlChange(0, 7, 100)},
		{"control change max", ControlChange(15, 127, 127)},
		{"note on", NoteOn(3, 60, 90)},
		{"note on zero velocity", NoteOn(3, 60, 0)},
		{"note off", NoteOff(9, 36)},
		{"pitch bend min", PitchBend(1, 0)},
		{"pitch bend center", PitchBend(1, BendCenter)},
		{"pitch bend max", PitchBend(1, MaxBend)},
		{"program change", ProgramChange(2, 42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.msg.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.msg {
				t.Errorf("Decode(Encode()) = %+v, want %+v", got, tt.msg)
			}
		})
	}
}

func TestDecodeRawBytes(t *testing.T) {
	tests := []struct {
		name string
		raw  gomidi.Message
		want Message
	}{
		{"cc", gomidi.Message{0xB0, 7, 100}, ControlChange(0, 7, 100)},
		{"note on", gomidi.Message{0x92, 64, 1}, NoteOn(2, 64, 1)},
		{"note on release", gomidi.Message{0x92, 64, 0}, NoteOn(2, 64, 0)},
		{"note off", gomidi.Message{0x85, 64, 40}, NoteOff(5, 64)},
		{"pitch bend", gomidi.Message{0xE0, 0x7F, 0x7F}, PitchBend(0, MaxBend)},
		{"program change", gomidi.Message{0xC4, 10}, ProgramChange(4, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeUnsupported(t *testing.T) {
	for _, raw := range []gomidi.Message{nil, {0xF8}, {0xD0, 10}} {
		if _, err := Decode(raw); !errors.Is(err, ErrUnsupportedMessage) {
			t.Errorf("Decode(% X) error = %v, want ErrUnsupportedMessage", []byte(raw), err)
		}
	}
}

func TestEncodeRejectsInvalid(t *testing.T) {
	tests := []Message{
		{Kind: KindControlChange, Channel: 16},
		{Kind: KindControlChange, Data1: 128},
		{Kind: KindNoteOn, Data2: 200},
		{Kind: KindPitchBend, Bend: MaxBend + 1},
		{},
	}
	for _, msg := range tests {
		if _, err := msg.Encode(); err == nil {
			t.Errorf("Encode(%+v) succeeded, want error", msg)
		}
	}
}

func TestPitchBendClamps(t *testing.T) {
	if got := PitchBend(0, 20000).Bend; got != MaxBend {
		t.Errorf("PitchBend(20000).Bend = %d, want %d", got, MaxBend)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindControlChange, "CONTROL_CHANGE"},
		{KindNoteOn, "NOTE_ON"},
		{KindNoteOff, "NOTE_OFF"},
		{KindPitchBend, "PITCH_BEND"},
		{KindProgramChange, "PROGRAM_CHANGE"},
		{Kind(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %s, want %s", tt.kind, got, tt.want)
		}
	}
}
