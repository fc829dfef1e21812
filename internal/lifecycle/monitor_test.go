package lifecycle

import (
	"sync"
	"testing"
	"time"
)

// fakeClock collects scheduled callbacks so tests can fire them on demand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) fireLast() {
	c.mu.Lock()
	t := c.timers[len(c.timers)-1]
	c.mu.Unlock()
	t.f()
}

type hookCounts struct {
	background int
	foreground int
}

func newTestMonitor() (*Monitor, *fakeClock, *hookCounts) {
	clock := &fakeClock{}
	counts := &hookCounts{}
	m := NewMonitor(800*time.Millisecond, Hooks{
		Background: func() { counts.background++ },
		Foreground: func() { counts.foreground++ },
	}, WithAfterFunc(clock.AfterFunc))
	return m, clock, counts
}

func TestPauseThenDelayClosesStream(t *testing.T) {
	m, clock, counts := newTestMonitor()
	m.Pause()
	if len(clock.timers) != 1 || clock.timers[0].d != 800*time.Millisecond {
		t.Fatalf("expected one 800ms timer, got %+v", clock.timers)
	}
	clock.fireLast()
	if counts.background != 1 || !m.StreamClosed() {
		t.Fatalf("expected background hook, counts=%+v", counts)
	}
	m.Resume()
	if counts.foreground != 1 || m.StreamClosed() || m.Paused() {
		t.Fatalf("expected foreground hook, counts=%+v", counts)
	}
}

func TestQuickResumeKeepsStream(t *testing.T) {
	m, clock, counts := newTestMonitor()
	m.Pause()
	m.Resume()
	if !clock.timers[0].stopped {
		t.Fatalf("pending close not cancelled")
	}
	// a late fire from the stopped timer must be ignored
	clock.fireLast()
	if counts.background != 0 || counts.foreground != 0 {
		t.Fatalf("unexpected hooks %+v", counts)
	}
}

func TestStaleTimerIgnoredAfterRepause(t *testing.T) {
	m, clock, counts := newTestMonitor()
	m.Pause()
	m.Resume()
	m.Pause()
	first := clock.timers[0]
	first.f()
	if counts.background != 0 {
		t.Fatalf("stale timer closed the stream")
	}
	clock.fireLast()
	if counts.background != 1 {
		t.Fatalf("expected close from current timer, counts=%+v", counts)
	}
}

func TestRepeatedCallsAreIdempotent(t *testing.T) {
	m, clock, counts := newTestMonitor()
	m.Resume()
	m.Pause()
	m.Pause()
	if len(clock.timers) != 1 {
		t.Fatalf("expected a single timer, got %d", len(clock.timers))
	}
	clock.fireLast()
	clock.fireLast()
	if counts.background != 1 {
		t.Fatalf("expected one background call, got %d", counts.background)
	}
}

func TestRealTimer(t *testing.T) {
	done := make(chan struct{})
	m := NewMonitor(10*time.Millisecond, Hooks{Background: func() { close(done) }})
	m.Pause()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("background hook not called")
	}
}
