package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucbridge/ucbridge-go/pkg/transport"
)

func TestStaticDiscoverer(t *testing.T) {
	s := NewStatic(transport.DeviceHandle{Model: "SL32", Serial: "A", State: transport.StateConnected})

	got, err := s.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, transport.StateDiscovered, got[0].State)
	assert.Equal(t, 1, s.Calls())

	s.Set(nil, errors.New("boom"))
	_, err = s.Discover(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestStaticDiscovererHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStatic().Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMultiMergesByID(t *testing.T) {
	a := NewStatic(
		transport.DeviceHandle{Model: "SL32", Serial: "B", Address: "10.0.0.2:53000"},
		transport.DeviceHandle{Model: "SL16", Serial: "A", Address: "10.0.0.1:53000"},
	)
	b := NewStatic(
		transport.DeviceHandle{Model: "SL32", Serial: "B", Address: "fe80::1"},
		transport.DeviceHandle{Model: "Quantum", Address: "/dev/ttyACM0", Transport: transport.TransportSerial},
	)

	got, err := Multi{a, b}.Discover(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, h := range got {
		ids[i] = h.ID()
	}
	assert.Equal(t, []string{"A", "B", "Quantum@/dev/ttyACM0"}, ids)
}

func TestMultiPartialFailure(t *testing.T) {
	ok := NewStatic(transport.DeviceHandle{Model: "SL32", Serial: "A"})
	bad := NewStatic()
	bad.Set(nil, errors.New("no network"))

	got, err := Multi{bad, ok}.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMultiAllFail(t *testing.T) {
	bad := NewStatic()
	bad.Set(nil, errors.New("no network"))

	_, err := Multi{bad}.Discover(context.Background())
	assert.Error(t, err)

	_, err = Multi{}.Discover(context.Background())
	assert.ErrorIs(t, err, ErrNoDiscoverers)
}
