// Package log provides flagstream's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Entries go through a slog.Handler
// that renders them with the logger's Formatter and fans them out to its
// Outputs, so a *slog.Logger built on that handler (groups included) writes
// the same lines as the facade. The *f methods are printf-style.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("sse"), log.Str("url", streamURL))
//	l.Info("stream opened", log.Int("attempt", 1))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting and multiple outputs (console, file, null). Redaction
// keys and sampling are applied through slog handler wrappers.
//
// # Interop
//
// To integrate with libraries expecting *log.Logger (Pebble logs through the
// standard logger), use ToStdLogger or RedirectStdLog. Tests that do not care
// about output use NewNopLogger.
package log
