package interactive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucbridge/ucbridge-go/pkg/learn"
	"github.com/ucbridge/ucbridge-go/pkg/mapping"
)

func TestParseMapArgs(t *testing.T) {
	m, err := parseMapArgs([]string{"1", "cc7", "SL32R-1234", "line/ch1/volume", "volume"})
	require.NoError(t, err)
	assert.Equal(t, uint8(0), m.Channel)
	assert.Equal(t, mapping.Source{Kind: mapping.SourceControl, Number: 7}, m.Source)
	assert.Equal(t, mapping.CurveAudioTaper, m.Curve)
	assert.Equal(t, 1.0, m.Max)

	m, err = parseMapArgs([]string{"16", "note24", "SL32R-1234", "main/mute", "mute", "bidir", "label=Main"})
	require.NoError(t, err)
	assert.Equal(t, uint8(15), m.Channel)
	assert.True(t, m.Bidirectional)
	assert.Equal(t, "Main", m.Label)

	m, err = parseMapArgs([]string{"2", "cc1/33", "d", "aux/ch2/volume", "volume", "curve=linear", "min=0.2", "max=0.8", "invert"})
	require.NoError(t, err)
	assert.Equal(t, mapping.SourceControl14, m.Source.Kind)
	assert.Equal(t, mapping.CurveLinear, m.Curve)
	assert.Equal(t, 0.2, m.Min)
	assert.True(t, m.Invert)
}

func TestParseMapArgsRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"too few", []string{"1", "cc7"}},
		{"channel zero", []string{"0", "cc7", "d", "p", "volume"}},
		{"bad source", []string{"1", "knob", "d", "p", "volume"}},
		{"bad kind", []string{"1", "cc7", "d", "p", "eq"}},
		{"bad curve", []string{"1", "cc7", "d", "p", "volume", "curve=cubic"}},
		{"inverted range", []string{"1", "cc7", "d", "p", "volume", "min=1", "max=0"}},
		{"unknown option", []string{"1", "cc7", "d", "p", "volume", "turbo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseMapArgs(tt.args); err == nil {
				t.Errorf("parseMapArgs(%v) succeeded", tt.args)
			}
		})
	}
}

func TestParseLearnArgs(t *testing.T) {
	req, err := parseLearnArgs([]string{"SL32R-1234", "line/ch1/volume", "volume"})
	require.NoError(t, err)
	assert.Equal(t, learn.AnyChannel, req.Channel)

	req, err = parseLearnArgs([]string{"SL32R-1234", "main/mute", "mute", "10", "bidir"})
	require.NoError(t, err)
	assert.Equal(t, 9, req.Channel)
	assert.Equal(t, mapping.KindMute, req.Kind)
	assert.True(t, req.Bidirectional)

	_, err = parseLearnArgs([]string{"d", "p"})
	assert.Error(t, err)
	_, err = parseLearnArgs([]string{"d", "p", "volume", "17"})
	assert.Error(t, err)
}

func TestResolveID(t *testing.T) {
	ids := []string{"SL32R-1234", "SL32R-5678", "QM-7"}

	tests := []struct {
		partial string
		want    string
		wantErr bool
	}{
		{"QM", "QM-7", false},
		{"SL32R-5", "SL32R-5678", false},
		{"SL32R-1234", "SL32R-1234", false},
		{"SL", "", true},
		{"unknown", "unknown", false},
	}
	for _, tt := range tests {
		got, err := resolveID(tt.partial, ids)
		if (err != nil) != tt.wantErr {
			t.Errorf("resolveID(%q) error = %v, wantErr %v", tt.partial, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveID(%q) = %q, want %q", tt.partial, got, tt.want)
		}
	}
}
