package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ucbridge/ucbridge-go/pkg/transport"
)

// Discovery errors.
var (
	ErrNoDiscoverers = errors.New("no discoverers configured")
)

// Discoverer finds devices. Implementations return snapshots in
// transport.StateDiscovered. Finding nothing is not an error.
type Discoverer interface {
	Discover(ctx context.Context) ([]transport.DeviceHandle, error)
}

// Multi fans out to several discoverers concurrently and merges the results
// by device id. It fails only if every discoverer fails.
type Multi []Discoverer

// Discover implements Discoverer.
func (m Multi) Discover(ctx context.Context) ([]transport.DeviceHandle, error) {
	if len(m) == 0 {
		return nil, ErrNoDiscoverers
	}

	type result struct {
		handles []transport.DeviceHandle
		err     error
	}
	results := make([]result, len(m))

	var wg sync.WaitGroup
	for i, d := range m {
		wg.Add(1)
		go func(i int, d Discoverer) {
			defer wg.Done()
			h, err := d.Discover(ctx)
			results[i] = result{h, err}
		}(i, d)
	}
	wg.Wait()

	var all []transport.DeviceHandle
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		all = append(all, r.handles...)
	}
	if len(errs) == len(m) {
		return nil, fmt.Errorf("all discoverers failed: %w", errors.Join(errs...))
	}
	return Dedup(all), nil
}

// Static is a scripted Discoverer for tests and fixed setups.
type Static struct {
	mu      sync.Mutex
	handles []transport.DeviceHandle
	err     error
	calls   int
}

// NewStatic returns a Static that reports handles.
func NewStatic(handles ...transport.DeviceHandle) *Static {
	return &Static{handles: handles}
}

// Set replaces the scripted result.
func (s *Static) Set(handles []transport.DeviceHandle, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = handles
	s.err = err
}

// Calls returns how many times Discover was called.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Discover implements Discoverer.
func (s *Static) Discover(ctx context.Context) ([]transport.DeviceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]transport.DeviceHandle, len(s.handles))
	for i, h := range s.handles {
		h.State = transport.StateDiscovered
		out[i] = h
	}
	return out, nil
}

// Dedup keeps the first handle per device id and sorts by id.
func Dedup(handles []transport.DeviceHandle) []transport.DeviceHandle {
	seen := make(map[string]bool, len(handles))
	out := make([]transport.DeviceHandle, 0, len(handles))
	for _, h := range handles {
		id := h.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		h.State = transport.StateDiscovered
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Compile-time interface satisfaction checks.
var (
	_ Discoverer = Multi(nil)
	_ Discoverer = (*Static)(nil)
	_ Discoverer = (*BroadcastDiscoverer)(nil)
	_ Discoverer = (*SerialDiscoverer)(nil)
	_ Discoverer = (*MDNSDiscoverer)(nil)
)
