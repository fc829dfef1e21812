package main

import (
	"os"

	clientcmd "github.com/rzbill/flagstream/internal/cmd/client"
	logpkg "github.com/rzbill/flagstream/pkg/log"
)

func main() {
	// Process logger for anything logged before a command builds its own.
	// Respect FLAGSTREAM_LOG_LEVEL and FLAGSTREAM_LOG_FORMAT.
	cfg := &logpkg.Config{
		Level:  os.Getenv("FLAGSTREAM_LOG_LEVEL"),
		Format: os.Getenv("FLAGSTREAM_LOG_FORMAT"),
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	logger, err := logpkg.ApplyConfig(cfg)
	if err != nil {
		logger = logpkg.NewLogger(
			logpkg.WithLevel(logpkg.InfoLevel),
			logpkg.WithFormatter(&logpkg.TextFormatter{}),
			logpkg.WithOutput(logpkg.NewConsoleOutput()),
		)
	}

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	if err := clientcmd.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
