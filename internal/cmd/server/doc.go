// Package serverrun exposes the shared Run entrypoint used by the CLI to hold
// a flagstream session open, serving gRPC health and HTTP status/metrics
// alongside it and handling shutdown.
//
// On unix hosts SIGUSR1 pauses the session (the stream is suspended after
// the inactivity delay) and SIGUSR2 resumes it.
//
// Example:
//
//	cfg := config.Default()
//	cfg.URL = "https://updates.example.com/sse"
//	cfg.HealthAddr = ":50051"
//	err := serverrun.Run(ctx, serverrun.Options{Config: cfg, Handler: h, Fsync: pebblestore.FsyncModeAlways})
package serverrun
