package eventsource

import (
	"fmt"
	"time"
)

// Resume is a point-in-time copy of a ConnectionState, read by the transport
// when it re-establishes a dropped stream.
type Resume struct {
	Delay       time.Duration
	LastEventID string
}

// ConnectionState holds the reconnection delay and the resume cursor of one
// stream session. It is not synchronized; the Dispatcher serializes access.
type ConnectionState struct {
	reconnectionDelay time.Duration
	lastEventID       string
}

// NewConnectionState returns a state with the given initial delay. A negative
// delay is treated as zero.
func NewConnectionState(initialDelay time.Duration) *ConnectionState {
	if initialDelay < 0 {
		initialDelay = 0
	}
	return &ConnectionState{reconnectionDelay: initialDelay}
}

// SetReconnectionDelay replaces the delay.
func (s *ConnectionState) SetReconnectionDelay(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative reconnection delay %s", ErrInvalidArgument, d)
	}
	s.reconnectionDelay = d
	return nil
}

// SetLastEventID replaces the cursor. An empty id clears it.
func (s *ConnectionState) SetLastEventID(id string) {
	s.lastEventID = id
}

// ReconnectionDelay returns the current delay.
func (s *ConnectionState) ReconnectionDelay() time.Duration { return s.reconnectionDelay }

// LastEventID returns the current cursor, or "" when absent.
func (s *ConnectionState) LastEventID() string { return s.lastEventID }

// Snapshot copies the state.
func (s *ConnectionState) Snapshot() Resume {
	return Resume{Delay: s.reconnectionDelay, LastEventID: s.lastEventID}
}
