// Package runtime assembles a realtime updates session: it loads the
// persisted cursor, builds the dispatcher around the consumer handler and
// runs the stream client, pausing it while the host is in the background.
//
// Example:
//
//	rt, err := runtime.Open(runtime.Options{Config: cfg, Handler: h, Logger: logger})
//	if err != nil { /* handle */ }
//	defer rt.Close()
//	_ = rt.Run(ctx)
package runtime
