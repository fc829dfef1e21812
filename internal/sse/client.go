package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/flagstream/internal/eventsource"
	"github.com/rzbill/flagstream/pkg/log"
)

// ErrReadTimeout is reported when the stream stays silent longer than the
// configured read timeout.
var ErrReadTimeout = errors.New("sse: read timeout")

// StatusError reports a non-200 response to the stream request.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return "sse: unexpected response status " + e.Status
	}
	return fmt.Sprintf("sse: unexpected response status %d", e.Code)
}

// Fatal reports whether reconnecting cannot help: the server asked the client
// to stop (204) or refused its credentials (401, 403).
func (e *StatusError) Fatal() bool {
	switch e.Code {
	case http.StatusNoContent, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// Observer is told about connection attempts. Calls come from the Run
// goroutine.
type Observer interface {
	Connecting(attempt int)
	Connected()
	Disconnected(err error)
}

type noopObserver struct{}

func (noopObserver) Connecting(int)     {}
func (noopObserver) Connected()         {}
func (noopObserver) Disconnected(error) {}

// ClientConfig configures a Client.
type ClientConfig struct {
	URL     string
	Headers map[string]string
	// HTTPClient must not set a Timeout; streams are long-lived.
	HTTPClient *http.Client
	// ReadTimeout aborts a connection that receives nothing for this long.
	// Zero disables it.
	ReadTimeout time.Duration
	// MaxReconnectDelay caps the wait between attempts. Zero leaves it
	// uncapped.
	MaxReconnectDelay time.Duration
	// Resume sends the dispatcher's last event id on connect. When false the
	// cursor is cleared before every connection.
	Resume   bool
	Observer Observer
}

// Client holds an event stream open and feeds it into a Dispatcher. It
// reconnects after failures, waiting the dispatcher's reconnection delay.
type Client struct {
	cfg       ClientConfig
	d         *eventsource.Dispatcher
	logger    log.Logger
	origin    string
	sessionID string

	mu         sync.Mutex
	suspended  bool
	wake       chan struct{}
	connCancel context.CancelFunc
}

// NewClient returns a Client for cfg.URL delivering into d.
func NewClient(cfg ClientConfig, d *eventsource.Dispatcher, logger log.Logger) (*Client, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil dispatcher", eventsource.ErrInvalidArgument)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", eventsource.ErrInvalidArgument, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", eventsource.ErrInvalidArgument, u.Scheme)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	id := uuid.NewString()
	return &Client{
		cfg:       cfg,
		d:         d,
		logger:    logger.With(log.Component("sse"), log.Str("session", id)),
		origin:    u.Scheme + "://" + u.Host,
		sessionID: id,
		wake:      make(chan struct{}),
	}, nil
}

// SessionID identifies this client in logs.
func (c *Client) SessionID() string { return c.sessionID }

// Run connects and reconnects until ctx is done, a fatal error occurs, or the
// dispatcher stops accepting signals. It submits Closed before returning.
func (c *Client) Run(ctx context.Context) error {
	defer c.close()
	failures := 0
	attempt := 0
	for {
		if err := c.waitAwake(ctx); err != nil {
			return nil
		}
		connCtx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		if c.suspended {
			c.mu.Unlock()
			cancel()
			continue
		}
		c.connCancel = cancel
		c.mu.Unlock()

		attempt++
		c.cfg.Observer.Connecting(attempt)
		opened, err := c.connect(connCtx)
		cancel()
		c.mu.Lock()
		c.connCancel = nil
		suspended := c.suspended
		c.mu.Unlock()
		c.cfg.Observer.Disconnected(err)

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, eventsource.ErrRejected) {
			c.logger.Info("dispatcher no longer accepting signals; stopping stream")
			return err
		}
		if suspended {
			c.logger.Debug("stream suspended")
			failures = 0
			continue
		}
		if opened {
			failures = 0
		} else {
			failures++
		}
		if err != nil {
			fatal := isFatal(err)
			c.logger.Warn("stream connection failed", log.Err(err), log.Bool("fatal", fatal))
			if serr := c.d.SubmitContext(ctx, eventsource.ErrorOccurred{Err: err, Fatal: fatal}); serr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return serr
			}
			if fatal {
				return err
			}
		}

		wait := c.reconnectDelay(failures)
		c.logger.Debug("reconnecting", log.Dur("delay", wait), log.Int("attempt", attempt+1))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Suspend drops the current connection and keeps the client disconnected
// until Wake. No error or Closed signal is produced.
func (c *Client) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suspended {
		return
	}
	c.suspended = true
	if c.connCancel != nil {
		c.connCancel()
	}
}

// Wake lets a suspended client connect again.
func (c *Client) Wake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.suspended {
		return
	}
	c.suspended = false
	close(c.wake)
	c.wake = make(chan struct{})
}

// Suspended reports whether Suspend is in effect.
func (c *Client) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

func (c *Client) waitAwake(ctx context.Context) error {
	for {
		c.mu.Lock()
		if !c.suspended {
			c.mu.Unlock()
			return ctx.Err()
		}
		ch := c.wake
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// closeTimeout bounds the wait for admission of the final Closed signal.
const closeTimeout = 5 * time.Second

func (c *Client) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := c.d.SubmitContext(ctx, eventsource.Closed{}); err != nil && !errors.Is(err, eventsource.ErrRejected) {
		c.logger.Warn("submit closed failed", log.Err(err))
	}
}

// reconnectDelay doubles the dispatcher's delay for each consecutive attempt
// that never opened, up to 64x, then applies the cap.
func (c *Client) reconnectDelay(failures int) time.Duration {
	delay := c.d.Resume().Delay
	if failures > 1 {
		shift := failures - 1
		if shift > 6 {
			shift = 6
		}
		delay <<= uint(shift)
	}
	if limit := c.cfg.MaxReconnectDelay; limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}

// connect runs one connection. opened reports whether the server accepted the
// stream and Opened was submitted.
func (c *Client) connect(ctx context.Context) (opened bool, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	if !c.cfg.Resume {
		c.d.ResetCursor()
	}
	lastID := c.d.Resume().LastEventID
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return false, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	body := newSharedBody(resp.Body)
	defer func() {
		if cerr := body.unref(); cerr != nil {
			c.logger.Debug("closing stream body", log.Err(cerr))
		}
	}()

	if err := c.d.SubmitContext(ctx, eventsource.Opened{}); err != nil {
		return false, err
	}
	c.cfg.Observer.Connected()
	c.logger.Info("stream opened", log.Bool("resumed", lastID != ""))

	var idle *idleWatch
	var r io.Reader = resp.Body
	if c.cfg.ReadTimeout > 0 {
		idle = newIdleWatch(c.cfg.ReadTimeout, cancel)
		defer idle.stop()
		r = &idleReader{r: resp.Body, w: idle}
	}

	dec := NewDecoder(r, lastID)
	for {
		f, err := dec.Next()
		if err != nil {
			switch {
			case idle.expired():
				return true, fmt.Errorf("%w after %s", ErrReadTimeout, c.cfg.ReadTimeout)
			case errors.Is(err, io.EOF):
				c.logger.Info("stream ended by server")
				return true, nil
			case ctx.Err() != nil:
				return true, ctx.Err()
			}
			return true, err
		}

		var sig eventsource.Signal
		switch f.Kind {
		case FrameComment:
			sig = eventsource.Comment{Text: f.Comment}
		case FrameRetry:
			sig = eventsource.ReconnectHint{Delay: f.Retry}
		default:
			msg := eventsource.NewMessageEvent(f.Event, f.Data, f.ID, body.ref())
			msg.Origin = c.origin
			msg.IDSet = f.IDSet
			sig = eventsource.Message{Event: f.Event, Payload: msg}
		}

		// A blocked submit is backpressure, not silence.
		idle.hold()
		err = c.d.SubmitContext(ctx, sig)
		idle.touch()
		if err != nil {
			return true, err
		}
	}
}

func isFatal(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Fatal()
}

// sharedBody closes the response body once the connection and every message
// that referenced it have let go.
type sharedBody struct {
	rc   io.Closer
	refs atomic.Int64
	once sync.Once
	err  error
}

func newSharedBody(rc io.Closer) *sharedBody {
	b := &sharedBody{rc: rc}
	b.refs.Store(1)
	return b
}

func (b *sharedBody) ref() io.Closer {
	b.refs.Add(1)
	return &bodyRef{b: b}
}

func (b *sharedBody) unref() error {
	if b.refs.Add(-1) != 0 {
		return nil
	}
	b.once.Do(func() { b.err = b.rc.Close() })
	return b.err
}

type bodyRef struct {
	b    *sharedBody
	once sync.Once
}

func (r *bodyRef) Close() error {
	var err error
	r.once.Do(func() { err = r.b.unref() })
	return err
}

// idleWatch cancels the connection when no bytes arrive for d. A nil
// *idleWatch is inert.
type idleWatch struct {
	d     time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func newIdleWatch(d time.Duration, cancel context.CancelFunc) *idleWatch {
	w := &idleWatch{d: d}
	w.timer = time.AfterFunc(d, func() {
		w.fired.Store(true)
		cancel()
	})
	return w
}

func (w *idleWatch) touch() {
	if w != nil && !w.fired.Load() {
		w.timer.Reset(w.d)
	}
}

func (w *idleWatch) hold() {
	if w != nil {
		w.timer.Stop()
	}
}

func (w *idleWatch) stop() { w.hold() }

func (w *idleWatch) expired() bool { return w != nil && w.fired.Load() }

type idleReader struct {
	r io.Reader
	w *idleWatch
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.w.touch()
	}
	return n, err
}
