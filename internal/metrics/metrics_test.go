package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rzbill/flagstream/internal/eventsource"
)

func TestDispatcherMetrics(t *testing.T) {
	c := New()
	d := eventsource.New(eventsource.HandlerFuncs{
		Message: func(string, *eventsource.MessageEvent) error { return errors.New("bad") },
	}, eventsource.WithMetrics(c))
	_ = d.Submit(eventsource.Opened{})
	_ = d.Submit(eventsource.Message{Event: "message", Payload: eventsource.NewMessageEvent("message", "x", "1", nil)})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_ = d.Submit(eventsource.Comment{Text: "late"})

	if got := testutil.ToFloat64(c.submitted.WithLabelValues("message")); got != 1 {
		t.Fatalf("submitted message = %v", got)
	}
	if got := testutil.ToFloat64(c.delivered.WithLabelValues("open")); got != 1 {
		t.Fatalf("delivered open = %v", got)
	}
	if got := testutil.ToFloat64(c.faults.WithLabelValues("message")); got != 1 {
		t.Fatalf("faults message = %v", got)
	}
	if got := testutil.ToFloat64(c.dropped.WithLabelValues("comment")); got != 1 {
		t.Fatalf("dropped comment = %v", got)
	}
	if got := testutil.ToFloat64(c.inFlight); got != 0 {
		t.Fatalf("in flight = %v", got)
	}
}

func TestConnectionMetrics(t *testing.T) {
	c := New(WithNamespace("test"))
	c.Connecting(1)
	c.Connected()
	if got := testutil.ToFloat64(c.connected); got != 1 {
		t.Fatalf("connected = %v", got)
	}
	c.Disconnected(errors.New("reset"))
	c.Connecting(2)
	c.Disconnected(nil)
	if got := testutil.ToFloat64(c.connAttempts); got != 2 {
		t.Fatalf("attempts = %v", got)
	}
	if got := testutil.ToFloat64(c.connErrors); got != 1 {
		t.Fatalf("errors = %v", got)
	}
	if got := testutil.ToFloat64(c.connected); got != 0 {
		t.Fatalf("connected = %v", got)
	}
}

func TestStoreMetricsAndRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithConstLabels(prometheus.Labels{"stream": "default"}))
	c.ObserveWrite(time.Millisecond, 10)
	c.ObserveRead(time.Millisecond, 4)
	if got := testutil.ToFloat64(c.storeBytes.WithLabelValues("write")); got != 10 {
		t.Fatalf("write bytes = %v", got)
	}
	if c.Registry() != reg {
		t.Fatalf("registry not used")
	}
	expected := `
# HELP flagstream_cursor_store_bytes_total Bytes read from and written to the cursor store
# TYPE flagstream_cursor_store_bytes_total counter
flagstream_cursor_store_bytes_total{op="read",stream="default"} 4
flagstream_cursor_store_bytes_total{op="write",stream="default"} 10
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "flagstream_cursor_store_bytes_total"); err != nil {
		t.Fatalf("gather: %v", err)
	}
}
