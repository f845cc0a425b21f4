package translate

import (
	"github.com/ucbridge/ucbridge-go/pkg/mapping"
	"github.com/ucbridge/ucbridge-go/pkg/midi"
)

// Forward translates msg through m to a device value. ok is false when msg
// does not feed m or when a 14-bit pair is still missing its MSB. cache may
// be nil for mappings without a 14-bit source.
func Forward(m mapping.ParameterMapping, msg midi.Message, cache *MSBCache) (value float64, ok bool) {
	x, on, ok := sourceValue(m, msg, cache)
	if !ok {
		return 0, false
	}

	switch m.Kind {
	case mapping.KindMute:
		if on {
			return 1, true
		}
		return 0, true

	case mapping.KindPan:
		y := Shape(m.Curve, x)
		if m.Invert {
			y = 1 - y
		}
		return 2*y - 1, true

	default:
		y := Shape(m.Curve, x)
		if m.Invert {
			y = 1 - y
		}
		return m.Min + y*(m.Max-m.Min), true
	}
}

// sourceValue extracts the normalized input from msg. on is the boolean
// reading used by mute mappings.
func sourceValue(m mapping.ParameterMapping, msg midi.Message, cache *MSBCache) (x float64, on bool, ok bool) {
	if !m.MatchesMIDI(msg) {
		return 0, false, false
	}

	switch m.Source.Kind {
	case mapping.SourceNote:
		if msg.Kind == midi.KindNoteOff {
			return 0, false, true
		}
		return Normalize7(msg.Data2), msg.Data2 > 0, true

	case mapping.SourceControl14:
		if cache == nil {
			return 0, false, false
		}
		if msg.Data1 == m.Source.Number {
			cache.Store(m.Channel, m.Source.Number, msg.Data2)
			return 0, false, false
		}
		msb, found := cache.Lookup(m.Channel, m.Source.Number)
		if !found {
			return 0, false, false
		}
		x = Combine14(msb, msg.Data2)
		return x, x > 0, true

	default:
		if m.Source.Number == mapping.PitchBendController {
			x = NormalizeBend(msg.Bend)
			return x, x > 0, true
		}
		return Normalize7(msg.Data2), msg.Data2 > 0, true
	}
}

// Inverse translates a device value back to MIDI for m. 14-bit sources
// yield the MSB then the LSB message.
func Inverse(m mapping.ParameterMapping, value float64) []midi.Message {
	if m.Kind == mapping.KindMute {
		return muteMessages(m, value >= 0.5)
	}

	var y float64
	switch m.Kind {
	case mapping.KindPan:
		y = clamp01((clamp(value, -1, 1) + 1) / 2)
	default:
		y = clamp01((value - m.Min) / (m.Max - m.Min))
	}
	if m.Invert {
		y = 1 - y
	}
	x := InverseCurve(m.Curve, y)

	switch m.Source.Kind {
	case mapping.SourceNote:
		return []midi.Message{midi.NoteOn(m.Channel, m.Source.Number, Denormalize7(x))}
	case mapping.SourceControl14:
		msb, lsb := Split14(x)
		return []midi.Message{
			midi.ControlChange(m.Channel, m.Source.Number, msb),
			midi.ControlChange(m.Channel, m.Source.LSB, lsb),
		}
	default:
		if m.Source.Number == mapping.PitchBendController {
			return []midi.Message{midi.PitchBend(m.Channel, DenormalizeBend(x))}
		}
		return []midi.Message{midi.ControlChange(m.Channel, m.Source.Number, Denormalize7(x))}
	}
}

func muteMessages(m mapping.ParameterMapping, on bool) []midi.Message {
	switch m.Source.Kind {
	case mapping.SourceNote:
		if on {
			return []midi.Message{midi.NoteOn(m.Channel, m.Source.Number, midi.MaxData7)}
		}
		return []midi.Message{midi.NoteOff(m.Channel, m.Source.Number)}
	case mapping.SourceControl14:
		var v uint8
		if on {
			v = midi.MaxData7
		}
		return []midi.Message{
			midi.ControlChange(m.Channel, m.Source.Number, v),
			midi.ControlChange(m.Channel, m.Source.LSB, v),
		}
	default:
		if m.Source.Number == mapping.PitchBendController {
			if on {
				return []midi.Message{midi.PitchBend(m.Channel, midi.MaxBend)}
			}
			return []midi.Message{midi.PitchBend(m.Channel, 0)}
		}
		var v uint8
		if on {
			v = midi.MaxData7
		}
		return []midi.Message{midi.ControlChange(m.Channel, m.Source.Number, v)}
	}
}
