package midi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func in(name string) ControllerPort  { return ControllerPort{Name: name, Direction: DirectionIn} }
func out(name string) ControllerPort { return ControllerPort{Name: name, Direction: DirectionOut} }

func TestPortID(t *testing.T) {
	assert.Equal(t, "in:X-Touch", in("X-Touch").ID())
	assert.Equal(t, "out:X-Touch", out("X-Touch").ID())
}

func TestNumberDuplicates(t *testing.T) {
	ports := []ControllerPort{
		{Index: 4, Name: "X-Touch", Direction: DirectionIn},
		{Index: 1, Name: "X-Touch", Direction: DirectionIn},
		{Index: 1, Name: "X-Touch", Direction: DirectionOut},
		{Index: 2, Name: "Faders", Direction: DirectionIn},
	}
	numberDuplicates(ports)

	assert.Equal(t, "in:X-Touch#2", ports[0].ID())
	assert.Equal(t, "in:X-Touch", ports[1].ID())
	assert.Equal(t, "out:X-Touch", ports[2].ID())
	assert.Equal(t, "in:Faders", ports[3].ID())
}

func TestDiffKeepsIdenticalNamesApart(t *testing.T) {
	prev := []ControllerPort{in("X-Touch")}
	next := []ControllerPort{in("X-Touch"), {Name: "X-Touch", Direction: DirectionIn, Occurrence: 1}}

	added, removed := Diff(prev, next)
	require.Len(t, added, 1)
	assert.Equal(t, "in:X-Touch#2", added[0].ID())
	assert.Empty(t, removed)
}

func TestDiff(t *testing.T) {
	prev := []ControllerPort{in("A"), out("A"), in("B")}
	next := []ControllerPort{in("A"), in("C"), out("A")}

	added, removed := Diff(prev, next)
	assert.Equal(t, []ControllerPort{in("C")}, added)
	assert.Equal(t, []ControllerPort{in("B")}, removed)
}

func TestDiffIgnoresIndexChanges(t *testing.T) {
	prev := []ControllerPort{{Index: 0, Name: "A"}}
	next := []ControllerPort{{Index: 3, Name: "A"}}

	added, removed := Diff(prev, next)
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestDiffFirstPass(t *testing.T) {
	added, removed := Diff(nil, []ControllerPort{in("A")})
	assert.Len(t, added, 1)
	assert.Empty(t, removed)
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusAvailable, "AVAILABLE"},
		{StatusConnected, "CONNECTED"},
		{StatusDisconnected, "DISCONNECTED"},
		{Status(9), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %s, want %s", tt.status, got, tt.want)
		}
	}
}
