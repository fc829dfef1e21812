// Package sse is the transport side of a session: it decodes a
// text/event-stream body into frames and runs a reconnecting HTTP client that
// submits the resulting signals to an eventsource.Dispatcher.
//
// The client reads the reconnection delay and Last-Event-ID from the
// dispatcher before each attempt, so retry directives and event ids seen on
// one connection shape the next one.
//
// Example:
//
//	d := eventsource.New(handler, eventsource.WithAdmissionLimit(256))
//	c, err := sse.NewClient(sse.ClientConfig{URL: streamURL, Resume: true}, d, logger)
//	if err != nil { /* handle */ }
//	go c.Run(ctx)
package sse
