package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive constants.
const (
	// DefaultKeepAliveInterval is the interval between emitted keep-alives.
	DefaultKeepAliveInterval = 5 * time.Second

	// DefaultLivenessTimeout is how long the connection may stay silent
	// before it is considered lost.
	DefaultLivenessTimeout = 15 * time.Second
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// Interval is the interval between emitted keep-alives.
	Interval time.Duration

	// LivenessTimeout is the maximum silence on the inbound side. Any
	// inbound frame counts, not only keep-alives.
	LivenessTimeout time.Duration
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Interval:        DefaultKeepAliveInterval,
		LivenessTimeout: DefaultLivenessTimeout,
	}
}

// KeepAlive runs the two periodic tasks of a connected session: the
// keep-alive emitter and the liveness checker. It only touches transport
// state.
type KeepAlive struct {
	config KeepAliveConfig

	// Callbacks
	send      func() error
	onTimeout func()

	// State
	lastRx   atomic.Int64 // unix nanos
	sent     atomic.Uint64
	failures atomic.Uint64
	lastTx   atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewKeepAlive creates a new keep-alive manager. send emits one keep-alive;
// onTimeout is called at most once when the liveness timeout elapses.
func NewKeepAlive(config KeepAliveConfig, send func() error, onTimeout func()) *KeepAlive {
	if config.Interval == 0 {
		config.Interval = DefaultKeepAliveInterval
	}
	if config.LivenessTimeout == 0 {
		config.LivenessTimeout = DefaultLivenessTimeout
	}

	return &KeepAlive{
		config:    config,
		send:      send,
		onTimeout: onTimeout,
	}
}

// Start begins both periodic tasks. The liveness window starts now.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.running {
		return
	}
	ka.running = true

	ka.Touch()
	ctx, ka.cancel = context.WithCancel(ctx)

	ka.wg.Add(2)
	go ka.emitLoop(ctx)
	go ka.livenessLoop(ctx)
}

// Stop cancels both tasks. It does not wait for a running onTimeout
// callback, so it is safe to call from within one.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}
	ka.running = false
	ka.cancel()
}

// Wait blocks until both tasks have exited.
func (ka *KeepAlive) Wait() {
	ka.wg.Wait()
}

// Touch records inbound traffic.
func (ka *KeepAlive) Touch() {
	ka.lastRx.Store(time.Now().UnixNano())
}

// IsRunning returns true if keep-alive monitoring is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	return KeepAliveStats{
		LastReceived: unixNanoTime(ka.lastRx.Load()),
		LastSent:     unixNanoTime(ka.lastTx.Load()),
		Sent:         ka.sent.Load(),
		SendFailures: ka.failures.Load(),
	}
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastReceived time.Time
	LastSent     time.Time
	Sent         uint64
	SendFailures uint64
}

func (ka *KeepAlive) emitLoop(ctx context.Context) {
	defer ka.wg.Done()

	ticker := time.NewTicker(ka.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A failed send surfaces through the read side or the
			// liveness checker.
			if err := ka.send(); err != nil {
				ka.failures.Add(1)
				continue
			}
			ka.sent.Add(1)
			ka.lastTx.Store(time.Now().UnixNano())
		}
	}
}

func (ka *KeepAlive) livenessLoop(ctx context.Context) {
	defer ka.wg.Done()

	timer := time.NewTimer(ka.config.LivenessTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			deadline := time.Unix(0, ka.lastRx.Load()).Add(ka.config.LivenessTimeout)
			if remaining := time.Until(deadline); remaining > 0 {
				timer.Reset(remaining)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if ka.onTimeout != nil {
				ka.onTimeout()
			}
			return
		}
	}
}

func unixNanoTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
