// Package eventsource holds the delivery core of a flagstream session: the
// ConnectionState that records reconnection timing and the resume cursor, and
// the Dispatcher that hands stream signals to a single Handler in order.
//
// The transport (see internal/sse) produces one Signal per lifecycle change or
// parsed event and calls Dispatcher.Submit from its reading goroutine. The
// Dispatcher queues each signal onto one serial worker, so the Handler never
// runs on the transport goroutine and never observes two deliveries at once.
//
// # Flow control
//
// WithAdmissionLimit bounds how many signals may be admitted but not yet
// delivered. When the bound is reached Submit blocks the transport until the
// worker finishes a delivery, which couples read speed to handler speed. A
// limit of zero disables the gate; that is an explicit opt-out and lets the
// backlog grow without bound.
//
// There is no per-signal timeout. A Handler that hangs stalls the worker and,
// with a finite limit, eventually blocks the transport.
//
// Example:
//
//	d := eventsource.New(handler,
//	    eventsource.WithAdmissionLimit(256),
//	    eventsource.WithLogger(logger),
//	)
//	defer d.Shutdown(context.Background())
//	_ = d.Submit(eventsource.Opened{})
//	_ = d.Submit(eventsource.Message{Event: "ping", Payload: eventsource.NewMessageEvent("ping", "x", "1", nil)})
package eventsource
