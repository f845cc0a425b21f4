package translate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucbridge/ucbridge-go/pkg/mapping"
	"github.com/ucbridge/ucbridge-go/pkg/midi"
)

var target = mapping.Target{DeviceID: "SL32", Path: "line/ch1/volume"}

func cc(n uint8, kind mapping.ParamKind) mapping.ParameterMapping {
	return mapping.New(0, mapping.Source{Kind: mapping.SourceControl, Number: n}, target, kind)
}

func TestForwardAudioTaperVolume(t *testing.T) {
	m := cc(7, mapping.KindVolume)

	got, ok := Forward(m, midi.ControlChange(0, 7, 100), nil)
	require.True(t, ok)
	assert.InDelta(t, math.Pow(100.0/127, 2.5), got, 1e-9)
	assert.InDelta(t, 0.550, got, 0.001)
}

func TestForwardVolumeRangeAndInvert(t *testing.T) {
	m := cc(7, mapping.KindVolume)
	m.Curve = mapping.CurveLinear
	m.Min, m.Max = 0.2, 0.6

	got, ok := Forward(m, midi.ControlChange(0, 7, 127), nil)
	require.True(t, ok)
	assert.InDelta(t, 0.6, got, 1e-9)

	m.Invert = true
	got, _ = Forward(m, midi.ControlChange(0, 7, 127), nil)
	assert.InDelta(t, 0.2, got, 1e-9)
	got, _ = Forward(m, midi.ControlChange(0, 7, 0), nil)
	assert.InDelta(t, 0.6, got, 1e-9)
}

func TestForwardPan(t *testing.T) {
	m := cc(10, mapping.KindPan)

	tests := []struct {
		value uint8
		want  float64
	}{
		{0, -1},
		{127, 1},
		{64, 2*64.0/127 - 1},
	}
	for _, tt := range tests {
		got, ok := Forward(m, midi.ControlChange(0, 10, tt.value), nil)
		require.True(t, ok)
		assert.InDelta(t, tt.want, got, 1e-9, "value %d", tt.value)
	}
}

func TestForwardMute(t *testing.T) {
	note := mapping.New(0, mapping.Source{Kind: mapping.SourceNote, Number: 60}, target, mapping.KindMute)
	note.Curve = mapping.CurveAudioTaper
	note.Min, note.Max = 0.3, 0.4

	tests := []struct {
		name string
		msg  midi.Message
		want float64
	}{
		{"note on", midi.NoteOn(0, 60, 1), 1},
		{"note on zero velocity", midi.NoteOn(0, 60, 0), 0},
		{"note off", midi.NoteOff(0, 60), 0},
	}
	for _, tt := range tests {
		got, ok := Forward(note, tt.msg, nil)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	ctl := cc(20, mapping.KindMute)
	got, _ := Forward(ctl, midi.ControlChange(0, 20, 5), nil)
	assert.Equal(t, 1.0, got)
	got, _ = Forward(ctl, midi.ControlChange(0, 20, 0), nil)
	assert.Equal(t, 0.0, got)
}

func TestForwardPitchBend(t *testing.T) {
	m := cc(mapping.PitchBendController, mapping.KindPan)

	got, ok := Forward(m, midi.PitchBend(0, midi.MaxBend), nil)
	require.True(t, ok)
	assert.InDelta(t, 1, got, 1e-9)

	got, _ = Forward(m, midi.PitchBend(0, 0), nil)
	assert.InDelta(t, -1, got, 1e-9)
}

func TestForward14Bit(t *testing.T) {
	m := mapping.New(0, mapping.Source{Kind: mapping.SourceControl14, Number: 1, LSB: 33}, target, mapping.KindVolume)
	m.Curve = mapping.CurveLinear
	cache := NewMSBCache()

	// LSB before any MSB: nothing.
	_, ok := Forward(m, midi.ControlChange(0, 33, 10), cache)
	assert.False(t, ok)

	// MSB alone: cached, nothing emitted.
	_, ok = Forward(m, midi.ControlChange(0, 1, 64), cache)
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())

	got, ok := Forward(m, midi.ControlChange(0, 33, 0), cache)
	require.True(t, ok)
	assert.InDelta(t, 8192.0/16383, got, 1e-9)

	// MSB stays cached for the next LSB.
	got, ok = Forward(m, midi.ControlChange(0, 33, 1), cache)
	require.True(t, ok)
	assert.InDelta(t, 8193.0/16383, got, 1e-9)

	cache.Invalidate(0, 1)
	_, ok = Forward(m, midi.ControlChange(0, 33, 1), cache)
	assert.False(t, ok)

	_, ok = Forward(m, midi.ControlChange(0, 33, 1), nil)
	assert.False(t, ok)
}

func TestForwardIgnoresUnrelated(t *testing.T) {
	m := cc(7, mapping.KindVolume)
	_, ok := Forward(m, midi.ControlChange(0, 8, 1), nil)
	assert.False(t, ok)
	_, ok = Forward(m, midi.ControlChange(3, 7, 1), nil)
	assert.False(t, ok)
}

func TestInverseMute(t *testing.T) {
	note := mapping.New(2, mapping.Source{Kind: mapping.SourceNote, Number: 60}, target, mapping.KindMute)
	assert.Equal(t, []midi.Message{midi.NoteOn(2, 60, 127)}, Inverse(note, 1))
	assert.Equal(t, []midi.Message{midi.NoteOff(2, 60)}, Inverse(note, 0))

	ctl := cc(20, mapping.KindMute)
	assert.Equal(t, []midi.Message{midi.ControlChange(0, 20, 127)}, Inverse(ctl, 1))
	assert.Equal(t, []midi.Message{midi.ControlChange(0, 20, 0)}, Inverse(ctl, 0))
}

func TestInverse14BitOrder(t *testing.T) {
	m := mapping.New(0, mapping.Source{Kind: mapping.SourceControl14, Number: 1, LSB: 33}, target, mapping.KindVolume)
	m.Curve = mapping.CurveLinear

	msgs := Inverse(m, 8192.0/16383)
	require.Len(t, msgs, 2)
	assert.Equal(t, midi.ControlChange(0, 1, 64), msgs[0])
	assert.Equal(t, midi.ControlChange(0, 33, 0), msgs[1])
}

func TestInverseClampsOutOfRange(t *testing.T) {
	m := cc(7, mapping.KindVolume)
	assert.Equal(t, []midi.Message{midi.ControlChange(0, 7, 127)}, Inverse(m, 5))
	assert.Equal(t, []midi.Message{midi.ControlChange(0, 7, 0)}, Inverse(m, -5))
}

func TestForwardInverseRoundTrip(t *testing.T) {
	mappings := map[string]mapping.ParameterMapping{
		"volume linear": func() mapping.ParameterMapping {
			m := cc(7, mapping.KindVolume)
			m.Curve = mapping.CurveLinear
			return m
		}(),
		"volume taper ranged inverted": func() mapping.ParameterMapping {
			m := cc(7, mapping.KindVolume)
			m.Min, m.Max, m.Invert = 0.1, 0.9, true
			return m
		}(),
		"pan logarithmic": func() mapping.ParameterMapping {
			m := cc(7, mapping.KindPan)
			m.Curve = mapping.CurveLogarithmic
			return m
		}(),
	}

	for name, m := range mappings {
		t.Run(name, func(t *testing.T) {
			for v := 0; v <= 127; v++ {
				in := midi.ControlChange(0, 7, uint8(v))
				value, ok := Forward(m, in, nil)
				require.True(t, ok)
				out := Inverse(m, value)
				require.Equal(t, []midi.Message{in}, out, "value %d", v)
			}
		})
	}
}

func TestInversePitchBend(t *testing.T) {
	m := cc(mapping.PitchBendController, mapping.KindPan)
	assert.Equal(t, []midi.Message{midi.PitchBend(0, midi.BendCenter)}, Inverse(m, 0.0000305))
	assert.Equal(t, []midi.Message{midi.PitchBend(0, midi.MaxBend)}, Inverse(m, 1))
}
