// Package httpserver exposes a session over HTTP for operators:
//
//	GET /v1/healthz  200 while the stream is open, 503 otherwise
//	GET /v1/status   session state, pause flags and backlog
//	GET /v1/cursor   current resume cursor and stored records
//	GET /metrics     Prometheus metrics
//
// Example:
//
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
