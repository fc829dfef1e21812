// Package client provides the `flagstream` command-line client.
//
// The CLI holds a stream session open from a terminal, inspects the resume
// cursors it persists, and queries a running session's health. It is
// primarily intended for developers and operators.
//
// Installation
//
//	go install github.com/rzbill/flagstream/cmd/flagstream@latest
//
// # Configuration
//
// `listen` layers its configuration: built-in defaults, then the JSON file
// given by --config, then FLAGSTREAM_* environment variables, then any
// flags set explicitly. The gRPC health address used by `health` is read
// from FLAGSTREAM_HEALTH_ADDR (default 127.0.0.1:50051).
//
// Usage
//
//	flagstream listen --url https://updates.example.com/sse --data-dir ./data
//
//	flagstream listen --url https://updates.example.com/sse \
//	    --header Authorization='Bearer token' \
//	    --filter 'event == "update" && size < 4096' \
//	    --metrics-addr :8080 --health-addr :50051
//
//	flagstream listen --url https://updates.example.com/sse \
//	    --config-url https://config.example.com/flags
//
//	flagstream cursor show --data-dir ./data
//	flagstream cursor reset --data-dir ./data --key default
//
//	flagstream health --addr 127.0.0.1:50051
//
// Output
//
// Without --config-url every message is printed as one JSON line holding
// event and id, plus data_json when the data parses as JSON, data_text
// otherwise. With --config-url each fetched config is printed as
// {"config": ...}.
//
// On unix hosts, sending SIGUSR1 to a listening process pauses the session
// and SIGUSR2 resumes it.
package client
