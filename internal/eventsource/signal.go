package eventsource

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies a Signal variant.
type Kind int

const (
	KindOpened Kind = iota
	KindMessage
	KindComment
	KindError
	KindClosed
	KindReconnectHint
)

func (k Kind) String() string {
	switch k {
	case KindOpened:
		return "open"
	case KindMessage:
		return "message"
	case KindComment:
		return "comment"
	case KindError:
		return "error"
	case KindClosed:
		return "closed"
	case KindReconnectHint:
		return "reconnect_hint"
	default:
		return "unknown"
	}
}

// Signal is one lifecycle change or parsed event produced by the transport.
// The set of implementations is closed.
type Signal interface {
	Kind() Kind
	signal()
}

// Opened reports that the stream was established.
type Opened struct{}

// Message carries a parsed application event.
type Message struct {
	Event   string
	Payload *MessageEvent
}

// Comment carries keep-alive or diagnostic text.
type Comment struct {
	Text string
}

// ErrorOccurred carries a transport or protocol error. Fatal errors end the
// session.
type ErrorOccurred struct {
	Err   error
	Fatal bool
}

// Closed reports that the stream terminated for good.
type Closed struct{}

// ReconnectHint carries a server retry directive. It updates the
// ConnectionState and has no Handler callback.
type ReconnectHint struct {
	Delay time.Duration
}

func (Opened) Kind() Kind        { return KindOpened }
func (Message) Kind() Kind       { return KindMessage }
func (Comment) Kind() Kind       { return KindComment }
func (ErrorOccurred) Kind() Kind { return KindError }
func (Closed) Kind() Kind        { return KindClosed }
func (ReconnectHint) Kind() Kind { return KindReconnectHint }

func (Opened) signal()        {}
func (Message) signal()       {}
func (Comment) signal()       {}
func (ErrorOccurred) signal() {}
func (Closed) signal()        {}
func (ReconnectHint) signal() {}

// MessageEvent is the payload of a Message. The scoped resource attached to it
// is released exactly once, after the Handler returns or when the message is
// dropped.
type MessageEvent struct {
	Name   string
	Data   string
	ID     string
	Origin string
	// IDSet marks an explicit id field. With an empty ID it clears the
	// resume cursor.
	IDSet bool

	res      io.Closer
	once     sync.Once
	released atomic.Bool
	relErr   error
}

// NewMessageEvent builds a payload. res may be nil.
func NewMessageEvent(name, data, id string, res io.Closer) *MessageEvent {
	return &MessageEvent{Name: name, Data: data, ID: id, IDSet: id != "", res: res}
}

// Release closes the attached resource. Only the first call has an effect;
// later calls return the first result.
func (m *MessageEvent) Release() error {
	m.once.Do(func() {
		m.released.Store(true)
		if m.res != nil {
			m.relErr = m.res.Close()
		}
	})
	return m.relErr
}

// Released reports whether Release has run.
func (m *MessageEvent) Released() bool { return m.released.Load() }
