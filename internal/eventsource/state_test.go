package eventsource

import (
	"errors"
	"testing"
	"time"
)

func TestConnectionStateCursor(t *testing.T) {
	s := NewConnectionState(time.Second)
	if s.LastEventID() != "" {
		t.Fatalf("expected empty cursor")
	}
	s.SetLastEventID("5")
	s.SetLastEventID("12")
	if got := s.LastEventID(); got != "12" {
		t.Fatalf("cursor = %q, want 12", got)
	}
	s.SetLastEventID("")
	if got := s.LastEventID(); got != "" {
		t.Fatalf("cursor not cleared: %q", got)
	}
}

func TestConnectionStateDelay(t *testing.T) {
	s := NewConnectionState(-time.Second)
	if s.ReconnectionDelay() != 0 {
		t.Fatalf("negative initial delay should clamp to zero")
	}
	if err := s.SetReconnectionDelay(3 * time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	err := s.SetReconnectionDelay(-time.Millisecond)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if s.ReconnectionDelay() != 3*time.Second {
		t.Fatalf("rejected value must not be stored")
	}
	if err := s.SetReconnectionDelay(0); err != nil {
		t.Fatalf("zero delay is valid: %v", err)
	}
}

func TestConnectionStateSnapshot(t *testing.T) {
	s := NewConnectionState(2 * time.Second)
	s.SetLastEventID("abc")
	snap := s.Snapshot()
	s.SetLastEventID("def")
	if snap.LastEventID != "abc" || snap.Delay != 2*time.Second {
		t.Fatalf("snapshot changed with state: %+v", snap)
	}
}
