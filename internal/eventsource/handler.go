package eventsource

// Handler consumes delivered signals. Every method runs on the dispatcher's
// worker goroutine, one call at a time, in submission order.
//
// A returned error or a panic from OnOpen, OnMessage, OnComment or OnClosed
// is logged and passed to OnError as a *ConsumerFault. Errors and panics from
// OnError are only logged.
type Handler interface {
	OnOpen() error
	// OnMessage may read msg only until it returns; the dispatcher releases
	// the payload afterwards.
	OnMessage(event string, msg *MessageEvent) error
	OnComment(text string) error
	OnError(err error) error
	OnClosed() error
}

// HandlerFuncs adapts optional functions to Handler. Nil fields are no-ops.
type HandlerFuncs struct {
	Open    func() error
	Message func(event string, msg *MessageEvent) error
	Comment func(text string) error
	Error   func(err error) error
	Close   func() error
}

func (h HandlerFuncs) OnOpen() error {
	if h.Open == nil {
		return nil
	}
	return h.Open()
}

func (h HandlerFuncs) OnMessage(event string, msg *MessageEvent) error {
	if h.Message == nil {
		return nil
	}
	return h.Message(event, msg)
}

func (h HandlerFuncs) OnComment(text string) error {
	if h.Comment == nil {
		return nil
	}
	return h.Comment(text)
}

func (h HandlerFuncs) OnError(err error) error {
	if h.Error == nil {
		return nil
	}
	return h.Error(err)
}

func (h HandlerFuncs) OnClosed() error {
	if h.Close == nil {
		return nil
	}
	return h.Close()
}
