package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(instance, host string, port int, ip net.IP, text ...string) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{}
	e.Instance = instance
	e.HostName = host
	e.Port = port
	e.Text = text
	if ip.To4() != nil {
		e.AddrIPv4 = []net.IP{ip}
	} else if ip != nil {
		e.AddrIPv6 = []net.IP{ip}
	}
	return e
}

func TestMDNSDiscover(t *testing.T) {
	var gotService string

	d := NewMDNSDiscoverer(MDNSConfig{
		BrowseTimeout: 100 * time.Millisecond,
		Browse: func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
			gotService = service
			send := func(ch chan *zeroconf.ServiceEntry, e *zeroconf.ServiceEntry) {
				select {
				case ch <- e:
				case <-ctx.Done():
				}
			}
			send(entries, newEntry("Mixer A", "mixer-a.local.", 53000, net.ParseIP("192.168.1.10"), "model=StudioLive 32", "sn=SL32-9", "fw=2.7"))
			send(entries, newEntry("Mixer B", "mixer-b.local.", 0, net.ParseIP("fe80::2"), "MODEL=StudioLive 16"))
			send(entries, newEntry("Gone", "gone.local.", 53000, net.ParseIP("192.168.1.11")))
			send(removed, newEntry("Gone", "gone.local.", 53000, net.ParseIP("192.168.1.11")))
			send(entries, newEntry("NoAddr", "x.local.", 53000, nil))
			<-ctx.Done()
			return ctx.Err()
		},
	})

	got, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceType, gotService)
	require.Len(t, got, 2)

	assert.Equal(t, "SL32-9", got[0].ID())
	assert.Equal(t, "192.168.1.10:53000", got[0].Address)
	assert.Equal(t, "2.7", got[0].Firmware)

	assert.Equal(t, "StudioLive 16", got[1].Model)
	assert.Equal(t, "[fe80::2]:53000", got[1].Address)
}

func TestMDNSDiscoverNothingFound(t *testing.T) {
	d := NewMDNSDiscoverer(MDNSConfig{
		ServiceType:   "_custom._tcp",
		BrowseTimeout: 50 * time.Millisecond,
		Browse: func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
			<-ctx.Done()
			return nil
		},
	})

	got, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"Model=SL32", "sn=1", "flag", ""})

	assert.Equal(t, "SL32", txt.Model())
	assert.Equal(t, "1", txt.Serial())
	assert.Equal(t, "", txt.Firmware())

	_, ok := txt["flag"]
	assert.True(t, ok)
}
