package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type testMetrics struct {
	wrote int
	read  int
}

func (m *testMetrics) ObserveWrite(d time.Duration, bytes int) { m.wrote += bytes }
func (m *testMetrics) ObserveRead(d time.Duration, bytes int)  { m.read += bytes }

func newTestDB(t *testing.T) (*DB, *testMetrics) {
	t.Helper()
	dir := t.TempDir()
	metrics := &testMetrics{}
	db, err := Open(Options{
		DataDir:       dir,
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       metrics,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, metrics
}

func TestCRUD(t *testing.T) {
	db, metrics := newTestDB(t)

	key := []byte("k1")
	val := []byte("v1")
	if err := db.Set(key, val); err != nil {
		t.Fatalf("set: %v", err)
	}
	if metrics.wrote == 0 {
		t.Fatalf("expected write metrics to record bytes")
	}

	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(val) {
		t.Fatalf("got %q want %q", got, val)
	}
	if metrics.read == 0 {
		t.Fatalf("expected read metrics to record bytes")
	}

	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Fatalf("expected error for empty DataDir")
	}
}

func TestScanPrefix(t *testing.T) {
	db, _ := newTestDB(t)
	for _, k := range []string{"a/1", "b/1", "b/2", "b/3", "c/1"} {
		if err := db.Set([]byte(k), []byte("x")); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	var keys []string
	err := db.ScanPrefix(context.Background(), []byte("b/"), func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 3 || keys[0] != "b/1" || keys[2] != "b/3" {
		t.Fatalf("unexpected keys %v", keys)
	}

	stop := errors.New("stop")
	n := 0
	err = db.ScanPrefix(context.Background(), []byte("b/"), func(k, v []byte) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("expected early stop, got err=%v n=%d", err, n)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		in   []byte
		want []byte
	}{
		{[]byte("ab"), []byte("ac")},
		{[]byte{0x01, 0xff}, []byte{0x02}},
		{[]byte{0xff, 0xff}, nil},
	}
	for _, tt := range tests {
		got := prefixUpperBound(tt.in)
		if string(got) != string(tt.want) {
			t.Fatalf("prefixUpperBound(%x) = %x want %x", tt.in, got, tt.want)
		}
	}
}

func TestPing(t *testing.T) {
	db, _ := newTestDB(t)
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	var nilDB *DB
	if err := nilDB.Ping(); err == nil {
		t.Fatalf("expected error on nil db")
	}
}

func TestOperationsAfterClose(t *testing.T) {
	db, _ := newTestDB(t)
	if err := db.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := db.Set([]byte("k"), []byte("v2")); !errors.Is(err, ErrClosed) {
		t.Fatalf("set: got %v, want ErrClosed", err)
	}
	if err := db.Delete([]byte("k")); !errors.Is(err, ErrClosed) {
		t.Fatalf("delete: got %v, want ErrClosed", err)
	}
	if _, err := db.Get([]byte("k")); !errors.Is(err, ErrClosed) {
		t.Fatalf("get: got %v, want ErrClosed", err)
	}
	err := db.ScanPrefix(context.Background(), []byte("k"), func(_, _ []byte) error { return nil })
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("scan: got %v, want ErrClosed", err)
	}
	if err := db.Ping(); !errors.Is(err, ErrClosed) {
		t.Fatalf("ping: got %v, want ErrClosed", err)
	}
}

func TestCloseWaitsForInflightWrites(t *testing.T) {
	db, _ := newTestDB(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := db.Set([]byte(fmt.Sprintf("k%d-%d", i, j)), []byte("v"))
				if err != nil && !errors.Is(err, ErrClosed) {
					t.Errorf("set: %v", err)
					return
				}
			}
		}(i)
	}
	time.Sleep(time.Millisecond)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
}
