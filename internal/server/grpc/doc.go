// Package grpcserver serves the standard gRPC health protocol for a
// session. The session is SERVING while its stream is open and its cursor
// store is usable.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: cfg, Handler: h})
//	s := grpcserver.New(rt)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
