package eventsource

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logpkg "github.com/rzbill/flagstream/pkg/log"
)

// SessionState is the coarse lifecycle of a session as seen by the dispatcher.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAdmissionLimit bounds the number of admitted but undelivered signals.
// n <= 0 disables the bound.
func WithAdmissionLimit(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.gate = make(chan struct{}, n)
		} else {
			d.gate = nil
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logpkg.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the metrics hook.
func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithConnectionState seeds the dispatcher with an existing state, e.g. one
// restored from a checkpoint. The dispatcher takes ownership of s.
func WithConnectionState(s *ConnectionState) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.conn = s
		}
	}
}

// WithCheckpointer persists resume state whenever the worker changes it.
func WithCheckpointer(c Checkpointer) Option {
	return func(d *Dispatcher) { d.checkpointer = c }
}

// Dispatcher delivers signals to one Handler on a single worker goroutine, in
// the order they were submitted.
type Dispatcher struct {
	handler      Handler
	logger       logpkg.Logger
	metrics      Metrics
	checkpointer Checkpointer

	// gate is the admission gate; a send acquires a token and a receive
	// returns it. Nil when unbounded.
	gate     chan struct{}
	stopping chan struct{}
	done     chan struct{}

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Signal
	shutdown bool
	aborted  bool
	terminal bool
	stopOnce sync.Once

	// stateMu guards conn. The worker is the only writer apart from
	// ResetCursor; readers are transport goroutines.
	stateMu sync.Mutex
	conn    *ConnectionState

	session atomic.Int32
}

// New returns a running Dispatcher for h.
func New(h Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handler:  h,
		logger:   logpkg.NewLogger().With(logpkg.Component("dispatcher")),
		metrics:  NoopMetrics{},
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
		conn:     NewConnectionState(0),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Submit admits sig for delivery. It blocks while the admission gate is
// saturated. It returns ErrRejected after Shutdown or once a terminal signal
// (Closed or a fatal ErrorOccurred) has been admitted; a rejected message is
// released immediately.
func (d *Dispatcher) Submit(sig Signal) error {
	return d.submit(context.Background(), sig)
}

// SubmitContext is Submit, but stops waiting for admission when ctx is done.
func (d *Dispatcher) SubmitContext(ctx context.Context, sig Signal) error {
	return d.submit(ctx, sig)
}

func (d *Dispatcher) submit(ctx context.Context, sig Signal) error {
	if err := validate(sig); err != nil {
		return err
	}
	if err := d.acquire(ctx); err != nil {
		d.drop(sig)
		return err
	}

	d.mu.Lock()
	if d.shutdown || d.terminal {
		reason := "dispatcher shut down"
		if !d.shutdown {
			reason = "session closed"
		}
		d.mu.Unlock()
		d.release()
		d.drop(sig)
		return fmt.Errorf("%w: %s", ErrRejected, reason)
	}
	if isTerminal(sig) {
		d.terminal = true
	}
	d.metrics.Submitted(sig.Kind())
	d.metrics.InFlight(1)
	d.queue = append(d.queue, sig)
	d.cond.Signal()
	d.mu.Unlock()
	return nil
}

func validate(sig Signal) error {
	switch s := sig.(type) {
	case nil:
		return fmt.Errorf("%w: nil signal", ErrInvalidArgument)
	case Message:
		if s.Payload == nil {
			return fmt.Errorf("%w: message %q without payload", ErrInvalidArgument, s.Event)
		}
	case *Message:
		return fmt.Errorf("%w: pass Message by value", ErrInvalidArgument)
	}
	return nil
}

func isTerminal(sig Signal) bool {
	switch s := sig.(type) {
	case Closed:
		return true
	case ErrorOccurred:
		return s.Fatal
	}
	return false
}

func (d *Dispatcher) acquire(ctx context.Context) error {
	if d.gate == nil {
		select {
		case <-d.stopping:
			return fmt.Errorf("%w: dispatcher shut down", ErrRejected)
		default:
			return nil
		}
	}
	select {
	case d.gate <- struct{}{}:
		return nil
	case <-d.stopping:
		return fmt.Errorf("%w: dispatcher shut down while waiting for admission", ErrRejected)
	case <-ctx.Done():
		return fmt.Errorf("waiting for admission: %w", ctx.Err())
	}
}

func (d *Dispatcher) release() {
	if d.gate != nil {
		<-d.gate
	}
}

// drop disposes of a signal that will never be delivered.
func (d *Dispatcher) drop(sig Signal) {
	if m, ok := sig.(Message); ok && m.Payload != nil {
		if err := m.Payload.Release(); err != nil {
			d.logger.Warn("release of dropped message failed", logpkg.Str("event", m.Event), logpkg.Err(err))
		}
	}
	if sig != nil {
		d.metrics.Dropped(sig.Kind())
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.shutdown {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		sig := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		aborted := d.aborted
		d.mu.Unlock()

		if aborted {
			d.drop(sig)
		} else {
			start := time.Now()
			d.deliver(sig)
			d.metrics.Delivered(sig.Kind(), time.Since(start))
		}
		d.metrics.InFlight(-1)
		d.release()
	}
}

func (d *Dispatcher) deliver(sig Signal) {
	switch s := sig.(type) {
	case Opened:
		d.session.CompareAndSwap(int32(StateIdle), int32(StateOpen))
		d.invoke(KindOpened, d.handler.OnOpen)
	case Message:
		d.deliverMessage(s)
	case Comment:
		d.invoke(KindComment, func() error { return d.handler.OnComment(s.Text) })
	case ErrorOccurred:
		if s.Fatal {
			d.session.Store(int32(StateClosed))
		}
		d.dispatchError(s.Err)
	case Closed:
		d.session.Store(int32(StateClosed))
		d.invoke(KindClosed, d.handler.OnClosed)
	case ReconnectHint:
		d.applyHint(s.Delay)
	}
}

func (d *Dispatcher) deliverMessage(m Message) {
	func() {
		defer func() {
			if err := m.Payload.Release(); err != nil {
				d.logger.Warn("release of message payload failed", logpkg.Str("event", m.Event), logpkg.Err(err))
			}
		}()
		d.invoke(KindMessage, func() error { return d.handler.OnMessage(m.Event, m.Payload) })
	}()
	if m.Payload.ID != "" || m.Payload.IDSet {
		d.advanceCursor(m.Payload.ID)
	}
}

// invoke runs a non-error callback and routes any fault to OnError.
func (d *Dispatcher) invoke(kind Kind, fn func() error) {
	fault := call(kind, fn)
	if fault == nil {
		return
	}
	d.metrics.Fault(kind)
	d.logger.Warn("caught unexpected error from handler", logpkg.Str("callback", kind.String()), logpkg.Err(fault))
	if len(fault.Stack) > 0 {
		d.logger.Debug("handler stack trace", logpkg.Str("stack", string(fault.Stack)))
	}
	d.dispatchError(fault)
}

// dispatchError delivers err to OnError. Faults raised there are only logged.
func (d *Dispatcher) dispatchError(err error) {
	fault := call(KindError, func() error { return d.handler.OnError(err) })
	if fault == nil {
		return
	}
	d.metrics.Fault(KindError)
	d.logger.Warn("caught unexpected error from handler OnError", logpkg.Err(fault))
	if len(fault.Stack) > 0 {
		d.logger.Debug("handler stack trace", logpkg.Str("stack", string(fault.Stack)))
	}
}

func call(kind Kind, fn func() error) (fault *ConsumerFault) {
	defer func() {
		if r := recover(); r != nil {
			fault = &ConsumerFault{Kind: kind, Panic: r, Stack: debug.Stack()}
		}
	}()
	if err := fn(); err != nil {
		return &ConsumerFault{Kind: kind, Err: err}
	}
	return nil
}

func (d *Dispatcher) advanceCursor(id string) {
	d.stateMu.Lock()
	d.conn.SetLastEventID(id)
	snap := d.conn.Snapshot()
	d.stateMu.Unlock()
	d.checkpoint(snap)
}

func (d *Dispatcher) applyHint(delay time.Duration) {
	d.stateMu.Lock()
	err := d.conn.SetReconnectionDelay(delay)
	snap := d.conn.Snapshot()
	d.stateMu.Unlock()
	if err != nil {
		d.logger.Warn("ignoring reconnect hint", logpkg.Err(err))
		return
	}
	d.logger.Debug("reconnection delay updated", logpkg.Dur("delay", delay))
	d.checkpoint(snap)
}

func (d *Dispatcher) checkpoint(r Resume) {
	if d.checkpointer == nil {
		return
	}
	if err := d.checkpointer.Checkpoint(r); err != nil {
		d.logger.Warn("checkpoint failed", logpkg.Str("last_event_id", r.LastEventID), logpkg.Err(err))
	}
}

// Resume returns the current reconnection delay and resume cursor.
func (d *Dispatcher) Resume() Resume {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.conn.Snapshot()
}

// ResetCursor clears the resume cursor ahead of a fresh, non-resuming
// connection.
func (d *Dispatcher) ResetCursor() {
	d.stateMu.Lock()
	d.conn.SetLastEventID("")
	snap := d.conn.Snapshot()
	d.stateMu.Unlock()
	d.checkpoint(snap)
}

// State returns the session state.
func (d *Dispatcher) State() SessionState {
	return SessionState(d.session.Load())
}

// Pending returns the number of queued signals not yet picked up by the worker.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Done is closed when the worker has exited after Shutdown.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Shutdown stops admission and waits for queued signals to be delivered. If
// ctx ends first, signals that have not started are dropped without callbacks
// and ctx's error is returned; a delivery already running is left to finish.
// Shutdown may be called more than once.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.shutdown = true
	d.cond.Broadcast()
	d.mu.Unlock()
	d.stopOnce.Do(func() { close(d.stopping) })

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		d.aborted = true
		d.mu.Unlock()
		return ctx.Err()
	}
}
