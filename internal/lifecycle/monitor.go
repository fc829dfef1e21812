package lifecycle

import (
	"sync"
	"time"

	"github.com/rzbill/flagstream/pkg/log"
)

// Timer is the part of *time.Timer the Monitor uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it.
type AfterFunc func(d time.Duration, f func()) Timer

// Hooks are the actions taken on transitions. Both run on their own
// goroutine (the timer's, or the caller of Resume) and must not call back
// into the Monitor.
type Hooks struct {
	// Background closes the stream after the app stayed paused for the
	// inactivity delay.
	Background func()
	// Foreground restarts the stream after it was closed by Background.
	Foreground func()
}

// Monitor closes the stream when the host stays in the background and
// restores it when the host returns.
type Monitor struct {
	delay     time.Duration
	hooks     Hooks
	afterFunc AfterFunc
	logger    log.Logger

	mu      sync.Mutex
	paused  bool
	pending Timer
	closed  bool
	gen     uint64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAfterFunc replaces time.AfterFunc, for tests.
func WithAfterFunc(f AfterFunc) Option {
	return func(m *Monitor) { m.afterFunc = f }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor returns a Monitor that waits delay after Pause before calling
// hooks.Background.
func NewMonitor(delay time.Duration, hooks Hooks, opts ...Option) *Monitor {
	m := &Monitor{
		delay: delay,
		hooks: hooks,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("lifecycle")
	return m
}

// Pause records that the host went to the background. The stream is closed
// if no Resume arrives within the delay.
func (m *Monitor) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	m.paused = true
	m.gen++
	gen := m.gen
	m.pending = m.afterFunc(m.delay, func() { m.fire(gen) })
	m.logger.Debug("paused; closing stream after inactivity delay", log.Dur("delay", m.delay))
}

func (m *Monitor) fire(gen uint64) {
	m.mu.Lock()
	if !m.paused || gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.pending = nil
	m.mu.Unlock()

	m.logger.Info("closing realtime updates connection")
	if m.hooks.Background != nil {
		m.hooks.Background()
	}
}

// Resume records that the host is in the foreground again. A pending close
// is cancelled; a stream already closed is restarted.
func (m *Monitor) Resume() {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return
	}
	m.paused = false
	m.gen++
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	wasClosed := m.closed
	m.closed = false
	m.mu.Unlock()

	if !wasClosed {
		m.logger.Debug("resumed before inactivity delay; stream kept open")
		return
	}
	m.logger.Info("restarting realtime updates connection")
	if m.hooks.Foreground != nil {
		m.hooks.Foreground()
	}
}

// Paused reports whether the host is in the background.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// StreamClosed reports whether Background ran and Foreground has not yet.
func (m *Monitor) StreamClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
