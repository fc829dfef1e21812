// Package metrics exposes session activity as Prometheus metrics. A single
// Collector is passed to the dispatcher, the stream client and the cursor
// store; its Registry is served on /metrics.
package metrics
