package eventsource

import "time"

// Metrics observes dispatcher activity. Implementations must be safe for
// concurrent use; Submitted and Dropped run on producer goroutines.
type Metrics interface {
	Submitted(kind Kind)
	Delivered(kind Kind, elapsed time.Duration)
	Dropped(kind Kind)
	Fault(kind Kind)
	InFlight(delta int)
}

// Checkpointer persists the resume state after it changes on the worker.
type Checkpointer interface {
	Checkpoint(r Resume) error
}

// NoopMetrics is used when no Metrics is provided.
type NoopMetrics struct{}

func (NoopMetrics) Submitted(Kind)                {}
func (NoopMetrics) Delivered(Kind, time.Duration) {}
func (NoopMetrics) Dropped(Kind)                  {}
func (NoopMetrics) Fault(Kind)                    {}
func (NoopMetrics) InFlight(int)                  {}
