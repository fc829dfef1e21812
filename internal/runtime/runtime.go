package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	cfgpkg "github.com/rzbill/flagstream/internal/config"
	"github.com/rzbill/flagstream/internal/cursor"
	"github.com/rzbill/flagstream/internal/eventsource"
	"github.com/rzbill/flagstream/internal/filter"
	"github.com/rzbill/flagstream/internal/lifecycle"
	"github.com/rzbill/flagstream/internal/metrics"
	"github.com/rzbill/flagstream/internal/sse"
	pebblestore "github.com/rzbill/flagstream/internal/storage/pebble"
	"github.com/rzbill/flagstream/pkg/log"
)

// ShutdownTimeout is the default bound on Close: stopping Run and draining
// queued signals share it.
const ShutdownTimeout = 5 * time.Second

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Handler consumes the session. Required.
	Handler eventsource.Handler
	Logger  log.Logger
	// Metrics is created when nil.
	Metrics    *metrics.Collector
	HTTPClient *http.Client
	Fsync      pebblestore.FsyncMode
	// OnForeground runs after the stream is restarted by Resume, e.g. to
	// refetch state missed while in the background.
	OnForeground func()
	// AfterFunc replaces time.AfterFunc for the inactivity timer.
	AfterFunc lifecycle.AfterFunc
	// ShutdownTimeout overrides the package default when positive.
	ShutdownTimeout time.Duration
}

// Runtime wires config, cursor storage, dispatcher, stream client and
// lifecycle handling for one session.
type Runtime struct {
	config     cfgpkg.Config
	logger     log.Logger
	db         *pebblestore.DB
	cursors    *cursor.Store
	metrics    *metrics.Collector
	dispatcher *eventsource.Dispatcher
	client     *sse.Client
	monitor    *lifecycle.Monitor
	shutdown   time.Duration

	mu        sync.Mutex
	running   bool
	closed    bool
	cancel    context.CancelFunc
	runDone   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open validates the config and builds a Runtime. When Config.DataDir is set
// the cursor is persisted there and, with Config.Resume, restored.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Handler == nil {
		return nil, errors.New("runtime: Options.Handler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.New()
	}
	f, err := filter.New(cfg.Filter)
	if err != nil {
		return nil, err
	}

	r := &Runtime{config: cfg, logger: logger.WithComponent("runtime"), metrics: collector, shutdown: ShutdownTimeout}
	if opts.ShutdownTimeout > 0 {
		r.shutdown = opts.ShutdownTimeout
	}

	state := eventsource.NewConnectionState(cfg.InitialReconnectDelay.D())
	dopts := []eventsource.Option{
		eventsource.WithAdmissionLimit(cfg.AdmissionLimit),
		eventsource.WithLogger(logger.WithComponent("dispatcher")),
		eventsource.WithMetrics(collector),
	}
	if cfg.DataDir != "" {
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir: cfgpkg.CursorDir(cfg.DataDir),
			Fsync:   opts.Fsync,
			Metrics: collector,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open cursor store: %w", err)
		}
		r.db = db
		r.cursors = cursor.New(db)
		if cfg.Resume {
			if err := r.restore(state); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		dopts = append(dopts, eventsource.WithCheckpointer(r.cursors.Checkpointer(cfg.StreamKey)))
	}
	dopts = append(dopts, eventsource.WithConnectionState(state))
	r.dispatcher = eventsource.New(filter.Wrap(opts.Handler, f), dopts...)

	client, err := sse.NewClient(sse.ClientConfig{
		URL:               cfg.URL,
		Headers:           cfg.Headers,
		HTTPClient:        opts.HTTPClient,
		ReadTimeout:       cfg.ReadTimeout.D(),
		MaxReconnectDelay: cfg.MaxReconnectDelay.D(),
		Resume:            cfg.Resume,
		Observer:          collector,
	}, r.dispatcher, logger)
	if err != nil {
		r.shutdownDispatcher()
		r.closeDB()
		return nil, err
	}
	r.client = client

	monOpts := []lifecycle.Option{lifecycle.WithLogger(logger)}
	if opts.AfterFunc != nil {
		monOpts = append(monOpts, lifecycle.WithAfterFunc(opts.AfterFunc))
	}
	r.monitor = lifecycle.NewMonitor(cfg.InactivityDelay.D(), lifecycle.Hooks{
		Background: client.Suspend,
		Foreground: func() {
			client.Wake()
			if opts.OnForeground != nil {
				opts.OnForeground()
			}
		},
	}, monOpts...)
	return r, nil
}

// restore seeds state from the persisted cursor.
func (r *Runtime) restore(state *eventsource.ConnectionState) error {
	rec, ok, err := r.cursors.Load(r.config.StreamKey)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if !ok {
		return nil
	}
	res := rec.Resume()
	state.SetLastEventID(res.LastEventID)
	if res.Delay > 0 {
		_ = state.SetReconnectionDelay(res.Delay)
	}
	r.logger.Info("restored cursor",
		log.Str("stream_key", r.config.StreamKey),
		log.Str("last_event_id", res.LastEventID),
		log.Dur("reconnect_delay", res.Delay))
	return nil
}

// Run holds the stream open until ctx is done, Close is called, or the
// session ends with a fatal error.
func (r *Runtime) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New("runtime: closed")
	}
	if r.running {
		r.mu.Unlock()
		return errors.New("runtime: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.running = true
	r.cancel = cancel
	r.runDone = done
	r.mu.Unlock()

	defer close(done)
	defer cancel()
	r.logger.Info("starting session", log.Str("url", r.config.URL), log.Str("session", r.client.SessionID()))
	return r.client.Run(ctx)
}

// Pause tells the runtime the host went to the background.
func (r *Runtime) Pause() { r.monitor.Pause() }

// Resume tells the runtime the host is in the foreground again.
func (r *Runtime) Resume() { r.monitor.Resume() }

// Paused reports whether Pause is in effect.
func (r *Runtime) Paused() bool { return r.monitor.Paused() }

// State returns the session state.
func (r *Runtime) State() eventsource.SessionState { return r.dispatcher.State() }

// Cursor returns the current reconnection delay and last event id.
func (r *Runtime) Cursor() eventsource.Resume { return r.dispatcher.Resume() }

// Status is a point-in-time view of the session.
type Status struct {
	State            string `json:"state"`
	SessionID        string `json:"sessionId"`
	Paused           bool   `json:"paused"`
	StreamSuspended  bool   `json:"streamSuspended"`
	LastEventID      string `json:"lastEventId,omitempty"`
	ReconnectDelayMs int64  `json:"reconnectDelayMs"`
	Pending          int    `json:"pending"`
}

// Status returns the current Status.
func (r *Runtime) Status() Status {
	cur := r.Cursor()
	return Status{
		State:            r.State().String(),
		SessionID:        r.client.SessionID(),
		Paused:           r.monitor.Paused(),
		StreamSuspended:  r.monitor.StreamClosed(),
		LastEventID:      cur.LastEventID,
		ReconnectDelayMs: cur.Delay.Milliseconds(),
		Pending:          r.dispatcher.Pending(),
	}
}

// CheckHealth returns nil while the session is open and storage is usable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.db != nil {
		if err := r.db.Ping(); err != nil {
			return fmt.Errorf("cursor store: %w", err)
		}
	}
	if s := r.State(); s != eventsource.StateOpen {
		return fmt.Errorf("session %s", s)
	}
	return nil
}

// Metrics returns the metrics collector.
func (r *Runtime) Metrics() *metrics.Collector { return r.metrics }

// Cursors returns the cursor store, or nil without a data dir.
func (r *Runtime) Cursors() *cursor.Store { return r.cursors }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Close stops Run, drains the dispatcher and closes storage, all within the
// shutdown timeout. A handler still running when the timeout passes is left
// to finish; its cursor checkpoint then fails with pebblestore.ErrClosed.
// Safe to call more than once.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		cancel, done := r.cancel, r.runDone
		r.mu.Unlock()

		ctx, stop := context.WithTimeout(context.Background(), r.shutdown)
		defer stop()
		if cancel != nil {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				// Run is parked on admission behind a slow handler. Stopping
				// admission rejects the pending submit so Run can return.
				r.logger.Warn("stream did not stop before timeout; rejecting pending signals")
				_ = r.dispatcher.Shutdown(ctx)
				<-done
			}
		}
		if err := r.drain(ctx); err != nil {
			r.closeErr = err
		}
		if err := r.closeDB(); err != nil && r.closeErr == nil {
			r.closeErr = err
		}
	})
	return r.closeErr
}

func (r *Runtime) shutdownDispatcher() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.shutdown)
	defer cancel()
	return r.drain(ctx)
}

func (r *Runtime) drain(ctx context.Context) error {
	if err := r.dispatcher.Shutdown(ctx); err != nil {
		r.logger.Warn("dispatcher did not drain before timeout", log.Err(err))
		return err
	}
	return nil
}

func (r *Runtime) closeDB() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
