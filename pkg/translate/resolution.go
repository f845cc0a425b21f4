package translate

import (
	"math"
	"sync"

	"github.com/ucbridge/ucbridge-go/pkg/midi"
)

// Max14 is the highest combined 14-bit controller value.
const Max14 = 16383

// Normalize7 maps a 7-bit value to [0,1].
func Normalize7(v uint8) float64 {
	if v > midi.MaxData7 {
		v = midi.MaxData7
	}
	return float64(v) / midi.MaxData7
}

// Denormalize7 maps [0,1] to the nearest 7-bit value.
func Denormalize7(x float64) uint8 {
	return uint8(math.Round(clamp01(x) * midi.MaxData7))
}

// Combine14 joins an MSB/LSB pair into [0,1].
func Combine14(msb, lsb uint8) float64 {
	return float64(uint16(msb&0x7F)<<7|uint16(lsb&0x7F)) / Max14
}

// Split14 maps [0,1] to the nearest MSB/LSB pair.
func Split14(x float64) (msb, lsb uint8) {
	n := uint16(math.Round(clamp01(x) * Max14))
	return uint8(n >> 7), uint8(n & 0x7F)
}

// NormalizeBend maps a 14-bit pitch bend value to [0,1].
func NormalizeBend(v uint16) float64 {
	if v > midi.MaxBend {
		v = midi.MaxBend
	}
	return float64(v) / midi.MaxBend
}

// DenormalizeBend maps [0,1] to the nearest pitch bend value.
func DenormalizeBend(x float64) uint16 {
	return uint16(math.Round(clamp01(x) * midi.MaxBend))
}

type msbKey struct {
	channel    uint8
	controller uint8
}

// MSBCache holds the most recent MSB per (channel, MSB controller) for
// 14-bit controller pairs. It is safe for concurrent use.
type MSBCache struct {
	mu      sync.Mutex
	entries map[msbKey]uint8
}

// NewMSBCache returns an empty cache.
func NewMSBCache() *MSBCache {
	return &MSBCache{entries: make(map[msbKey]uint8)}
}

// Store records an MSB value.
func (c *MSBCache) Store(channel, controller, value uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[msbKey{channel, controller}] = value
}

// Lookup returns the cached MSB.
func (c *MSBCache) Lookup(channel, controller uint8) (uint8, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[msbKey{channel, controller}]
	return v, ok
}

// Invalidate drops one cached MSB.
func (c *MSBCache) Invalidate(channel, controller uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, msbKey{channel, controller})
}

// InvalidateChannel drops every cached MSB on channel.
func (c *MSBCache) InvalidateChannel(channel uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.channel == channel {
			delete(c.entries, k)
		}
	}
}

// Reset empties the cache.
func (c *MSBCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of cached MSBs.
func (c *MSBCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
