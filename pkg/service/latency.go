package service

import (
	"sync"
	"time"
)

// DefaultLatencyWarning is the forward-path budget.
const DefaultLatencyWarning = 10 * time.Millisecond

// LatencyStats aggregates forward-path latency samples.
type LatencyStats struct {
	Count    uint64
	Min      time.Duration
	Max      time.Duration
	Average  time.Duration
	Last     time.Duration
	Warnings uint64
}

type latencyTracker struct {
	mu        sync.Mutex
	stats     LatencyStats
	total     time.Duration
	threshold time.Duration
}

func newLatencyTracker(threshold time.Duration) *latencyTracker {
	if threshold <= 0 {
		threshold = DefaultLatencyWarning
	}
	return &latencyTracker{threshold: threshold}
}

// record adds a sample and reports whether it exceeded the threshold.
func (t *latencyTracker) record(d time.Duration) (LatencyStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d < 0 {
		d = 0
	}
	s := &t.stats
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Count++
	t.total += d
	s.Average = t.total / time.Duration(s.Count)
	s.Last = d

	warn := d > t.threshold
	if warn {
		s.Warnings++
	}
	return *s, warn
}

func (t *latencyTracker) snapshot() LatencyStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *latencyTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = LatencyStats{}
	t.total = 0
}
