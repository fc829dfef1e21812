package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rzbill/flagstream/internal/eventsource"
)

// recorder is a thread-safe handler recording callbacks as strings.
type recorder struct {
	mu    sync.Mutex
	calls []string
	errs  []error
	msgs  chan *eventsource.MessageEvent
}

func newRecorder() *recorder {
	return &recorder{msgs: make(chan *eventsource.MessageEvent, 64)}
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) OnOpen() error { r.add("open"); return nil }
func (r *recorder) OnMessage(event string, m *eventsource.MessageEvent) error {
	r.add(fmt.Sprintf("message:%s:%s:%s", event, m.ID, m.Data))
	r.msgs <- m
	return nil
}
func (r *recorder) OnComment(text string) error { r.add("comment:" + text); return nil }
func (r *recorder) OnError(err error) error {
	r.mu.Lock()
	r.calls = append(r.calls, "error")
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	return nil
}
func (r *recorder) OnClosed() error { r.add("closed"); return nil }

func (r *recorder) snapshot() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...), append([]error(nil), r.errs...)
}

func waitMessage(t *testing.T, r *recorder) *eventsource.MessageEvent {
	t.Helper()
	select {
	case m := <-r.msgs:
		return m
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for message")
		return nil
	}
}

func shutdown(t *testing.T, d *eventsource.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func runClient(t *testing.T, c *Client) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return cancel, done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return")
		return nil
	}
}

func streamHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}
}

func TestClientDeliversStream(t *testing.T) {
	srv := httptest.NewServer(streamHandler("retry: 2000\n\n: hi\n\nid: 1\nevent: update\ndata: {\"a\":1}\n\n"))
	defer srv.Close()

	rec := newRecorder()
	d := eventsource.New(rec)
	c, err := NewClient(ClientConfig{URL: srv.URL, Resume: true}, d, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	cancel, done := runClient(t, c)
	m := waitMessage(t, rec)
	if m.Origin != srv.URL {
		t.Fatalf("origin %q want %q", m.Origin, srv.URL)
	}
	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("run: %v", err)
	}
	shutdown(t, d)

	calls, _ := rec.snapshot()
	want := []string{"open", "comment:hi", `message:update:1:{"a":1}`, "closed"}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls %v want %v", calls, want)
	}
	if !m.Released() {
		t.Fatalf("message payload not released")
	}
	r := d.Resume()
	if r.Delay != 2*time.Second || r.LastEventID != "1" {
		t.Fatalf("unexpected resume %+v", r)
	}
}

func TestClientResumesWithLastEventID(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Last-Event-ID"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		n := conns.Add(1)
		fmt.Fprintf(w, "id: %d\ndata: m%d\n\n", n+6, n)
		w.(http.Flusher).Flush()
		// first connection ends right away to force a reconnect
		if n > 1 {
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	rec := newRecorder()
	d := eventsource.New(rec, eventsource.WithConnectionState(eventsource.NewConnectionState(100*time.Millisecond)))
	c, err := NewClient(ClientConfig{URL: srv.URL, Resume: true}, d, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	cancel, done := runClient(t, c)
	waitMessage(t, rec)
	waitMessage(t, rec)
	cancel()
	waitRun(t, done)
	shutdown(t, d)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 || seen[0] != "" || seen[1] != "7" {
		t.Fatalf("unexpected Last-Event-ID headers %v", seen)
	}
}

func TestClientWithoutResumeClearsCursor(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case got <- r.Header.Get("Last-Event-ID"):
		default:
		}
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	cs := eventsource.NewConnectionState(0)
	cs.SetLastEventID("9")
	d := eventsource.New(newRecorder(), eventsource.WithConnectionState(cs))
	c, err := NewClient(ClientConfig{URL: srv.URL, Resume: false}, d, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	cancel, done := runClient(t, c)
	select {
	case h := <-got:
		if h != "" {
			t.Fatalf("expected no Last-Event-ID, got %q", h)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no request")
	}
	cancel()
	waitRun(t, done)
	shutdown(t, d)
}

func TestClientFatalStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	rec := newRecorder()
	d := eventsource.New(rec)
	c, err := NewClient(ClientConfig{URL: srv.URL}, d, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, done := runClient(t, c)
	err = waitRun(t, done)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized || !se.Fatal() {
		t.Fatalf("expected fatal 401, got %v", err)
	}
	shutdown(t, d)
	if d.State() != eventsource.StateClosed {
		t.Fatalf("expected closed session, got %s", d.State())
	}
	calls, errs := rec.snapshot()
	if len(calls) != 1 || calls[0] != "error" || !errors.As(errs[0], &se) {
		t.Fatalf("unexpected calls %v errs %v", calls, errs)
	}
}

func TestClientRetriesServerError(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if conns.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		streamHandler("data: ok\n\n")(w, r)
	}))
	defer srv.Close()

	rec := newRecorder()
	d := eventsource.New(rec, eventsource.WithConnectionState(eventsource.NewConnectionState(5*time.Millisecond)))
	c, err := NewClient(ClientConfig{URL: srv.URL}, d, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	cancel, done := runClient(t, c)
	waitMessage(t, rec)
	cancel()
	waitRun(t, done)
	shutdown(t, d)

	calls, errs := rec.snapshot()
	want := []string{"error", "open", "message:message::ok", "closed"}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls %v want %v", calls, want)
	}
	var se *StatusError
	if !errors.As(errs[0], &se) || se.Fatal() {
		t.Fatalf("expected non-fatal status error, got %v", errs[0])
	}
}

func TestClientReadTimeout(t *testing.T) {
	srv := httptest.NewServer(streamHandler(""))
	defer srv.Close()

	rec := newRecorder()
	d := eventsource.New(rec, eventsource.WithConnectionState(eventsource.NewConnectionState(time.Hour)))
	c, err := NewClient(ClientConfig{URL: srv.URL, ReadTimeout: 50 * time.Millisecond}, d, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	cancel, done := runClient(t, c)
	deadline := time.Now().Add(3 * time.Second)
	for {
		_, errs := rec.snapshot()
		if len(errs) > 0 {
			if !errors.Is(errs[0], ErrReadTimeout) {
				t.Fatalf("expected read timeout, got %v", errs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no timeout reported")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	waitRun(t, done)
	shutdown(t, d)
}

func TestClientSuspendWake(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		streamHandler(fmt.Sprintf("data: c%d\n\n", n))(w, r)
	}))
	defer srv.Close()

	rec := newRecorder()
	d := eventsource.New(rec)
	c, err := NewClient(ClientConfig{URL: srv.URL}, d, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	cancel, done := runClient(t, c)
	waitMessage(t, rec)
	c.Suspend()
	if !c.Suspended() {
		t.Fatalf("expected suspended")
	}
	time.Sleep(50 * time.Millisecond)
	if n := conns.Load(); n != 1 {
		t.Fatalf("reconnected while suspended: %d connections", n)
	}
	c.Wake()
	waitMessage(t, rec)
	cancel()
	waitRun(t, done)
	shutdown(t, d)

	calls, _ := rec.snapshot()
	want := []string{"open", "message:message::c1", "open", "message:message::c2", "closed"}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls %v want %v", calls, want)
	}
}

func TestNewClientValidation(t *testing.T) {
	d := eventsource.New(newRecorder())
	defer shutdown(t, d)
	if _, err := NewClient(ClientConfig{URL: "ftp://x"}, d, nil); !errors.Is(err, eventsource.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := NewClient(ClientConfig{URL: "http://x"}, nil, nil); !errors.Is(err, eventsource.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for nil dispatcher, got %v", err)
	}
}

func TestReconnectDelay(t *testing.T) {
	d := eventsource.New(newRecorder(), eventsource.WithConnectionState(eventsource.NewConnectionState(time.Second)))
	defer shutdown(t, d)
	c, err := NewClient(ClientConfig{URL: "http://x", MaxReconnectDelay: 10 * time.Second}, d, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := c.reconnectDelay(tt.failures); got != tt.want {
			t.Fatalf("reconnectDelay(%d) = %s want %s", tt.failures, got, tt.want)
		}
	}
}

type closeCounter struct{ n atomic.Int32 }

func (c *closeCounter) Close() error { c.n.Add(1); return nil }

func TestSharedBodyClosesAfterLastRef(t *testing.T) {
	cc := &closeCounter{}
	b := newSharedBody(cc)
	r1 := b.ref()
	r2 := b.ref()
	_ = b.unref()
	_ = r1.Close()
	_ = r1.Close()
	if cc.n.Load() != 0 {
		t.Fatalf("closed early")
	}
	_ = r2.Close()
	if cc.n.Load() != 1 {
		t.Fatalf("expected one close, got %d", cc.n.Load())
	}
}

func TestStatusErrorMessage(t *testing.T) {
	if got := (&StatusError{Code: 500}).Error(); !strings.Contains(got, "500") {
		t.Fatalf("unexpected message %q", got)
	}
	if (&StatusError{Code: 500}).Fatal() {
		t.Fatalf("500 should not be fatal")
	}
	if !(&StatusError{Code: 204}).Fatal() {
		t.Fatalf("204 should be fatal")
	}
}

func TestClientEmptyIDClearsCursor(t *testing.T) {
	srv := httptest.NewServer(streamHandler("id: 5\ndata: a\n\nid:\ndata: b\n\n"))
	defer srv.Close()

	rec := newRecorder()
	d := eventsource.New(rec)
	c, err := NewClient(ClientConfig{URL: srv.URL, Resume: true}, d, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	cancel, done := runClient(t, c)
	if m := waitMessage(t, rec); m.ID != "5" || !m.IDSet {
		t.Fatalf("first message id %q set=%v", m.ID, m.IDSet)
	}
	if m := waitMessage(t, rec); m.ID != "" || !m.IDSet {
		t.Fatalf("second message id %q set=%v", m.ID, m.IDSet)
	}
	cancel()
	waitRun(t, done)
	shutdown(t, d)

	if r := d.Resume(); r.LastEventID != "" {
		t.Fatalf("cursor should be cleared, got %q", r.LastEventID)
	}
}

func TestClientReconnectsAfterOverlongLine(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if conns.Add(1) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("data: " + strings.Repeat("x", MaxLineSize) + "\n\n"))
			return
		}
		streamHandler("data: ok\n\n")(w, r)
	}))
	defer srv.Close()

	rec := newRecorder()
	d := eventsource.New(rec, eventsource.WithConnectionState(eventsource.NewConnectionState(5*time.Millisecond)))
	c, err := NewClient(ClientConfig{URL: srv.URL}, d, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	cancel, done := runClient(t, c)
	waitMessage(t, rec)
	cancel()
	waitRun(t, done)
	shutdown(t, d)

	calls, errs := rec.snapshot()
	want := []string{"open", "error", "open", "message:message::ok", "closed"}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls %v want %v", calls, want)
	}
	if !errors.Is(errs[0], ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", errs[0])
	}
}
