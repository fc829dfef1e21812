package eventsource

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports malformed input, e.g. a negative delay.
	ErrInvalidArgument = errors.New("eventsource: invalid argument")
	// ErrRejected is returned by Submit once the dispatcher is shut down or
	// the session has closed. It signals teardown, not a transient fault.
	ErrRejected = errors.New("eventsource: signal rejected")
)

// ConsumerFault wraps an error returned by, or a panic raised from, a Handler
// callback.
type ConsumerFault struct {
	Kind  Kind
	Err   error
	Panic any
	Stack []byte
}

func (f *ConsumerFault) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("handler %s panicked: %v", f.Kind, f.Panic)
	}
	return fmt.Sprintf("handler %s failed: %v", f.Kind, f.Err)
}

func (f *ConsumerFault) Unwrap() error { return f.Err }
