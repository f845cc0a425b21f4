// Package shadow keeps the last known value of every synced device
// parameter. The sync engine consults it before each outbound write so that
// values echoed back by hardware are not propagated again.
package shadow

import (
	"context"
	"math"
	"sync"
	"time"
)

// Table defaults.
const (
	// DefaultTolerance is the smallest difference treated as a change.
	DefaultTolerance = 0.001

	// DefaultMaxAge is how long an entry survives without updates.
	DefaultMaxAge = 5 * time.Second

	// DefaultSweepInterval is the Run interval.
	DefaultSweepInterval = time.Second
)

// Origin is the direction that produced a value.
type Origin uint8

const (
	// OriginMIDI marks values written to the device from a controller.
	OriginMIDI Origin = iota

	// OriginDevice marks values reported by the device.
	OriginDevice
)

// String returns the origin name.
func (o Origin) String() string {
	switch o {
	case OriginMIDI:
		return "MIDI"
	case OriginDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// Key identifies one device parameter.
type Key struct {
	DeviceID string
	Path     string
}

// Entry is the shadow value of one parameter.
type Entry struct {
	Value   float64
	Updated time.Time
	Origin  Origin

	// Step is the engine processing step that produced the value.
	Step uint64
}

// Change describes an accepted Observe so it can be reverted.
type Change struct {
	Key      Key
	Previous Entry
	Existed  bool
	Current  Entry
}

// Config configures a Table.
type Config struct {
	// Tolerance is the change threshold (default: 0.001).
	Tolerance float64

	// MaxAge is the eviction age (default: 5s).
	MaxAge time.Duration

	// Now overrides time.Now, for tests.
	Now func() time.Time
}

// Table is the shadow state. All methods are safe for concurrent use;
// Observe is an atomic check-then-update.
type Table struct {
	config Config

	mu      sync.Mutex
	entries map[Key]Entry
}

// New creates an empty table.
func New(config Config) *Table {
	if config.Tolerance == 0 {
		config.Tolerance = DefaultTolerance
	}
	if config.MaxAge == 0 {
		config.MaxAge = DefaultMaxAge
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Table{config: config, entries: make(map[Key]Entry)}
}

// Observe records value for key if it is a material change. It returns
// false, leaving the table unchanged, when the stored value is within
// tolerance, or when the stored value came from the opposite origin in the
// same step.
func (t *Table) Observe(key Key, value float64, origin Origin, step uint64) (Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, exists := t.entries[key]
	if exists {
		if math.Abs(prev.Value-value) <= t.config.Tolerance {
			return Change{}, false
		}
		if prev.Origin != origin && prev.Step == step {
			return Change{}, false
		}
	}

	now := t.config.Now()
	if exists && now.Before(prev.Updated) {
		now = prev.Updated
	}
	cur := Entry{Value: value, Updated: now, Origin: origin, Step: step}
	t.entries[key] = cur

	return Change{Key: key, Previous: prev, Existed: exists, Current: cur}, true
}

// Revert undoes c if the entry has not changed since. It reports whether
// anything was restored.
func (t *Table) Revert(c Change) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.entries[c.Key]
	if !ok || cur != c.Current {
		return false
	}
	if c.Existed {
		t.entries[c.Key] = c.Previous
	} else {
		delete(t.entries, c.Key)
	}
	return true
}

// Get returns the entry for key.
func (t *Table) Get(key Key) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	return e, ok
}

// Sweep evicts entries not updated within MaxAge of now and returns how
// many were removed.
func (t *Table) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, e := range t.entries {
		if now.Sub(e.Updated) > t.config.MaxAge {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done. interval 0 uses
// DefaultSweepInterval.
func (t *Table) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(t.config.Now())
		}
	}
}

// Clear removes every entry of one device and returns how many were removed.
func (t *Table) Clear(deviceID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k := range t.entries {
		if k.DeviceID == deviceID {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// ClearAll empties the table.
func (t *Table) ClearAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.entries)
	clear(t.entries)
	return n
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
