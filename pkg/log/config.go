package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config declares a logger: level, format, outputs, and optional redaction
// and sampling.
type Config struct {
	Level      string          `json:"level"`
	Format     string          `json:"format"`
	Outputs    []OutputConfig  `json:"outputs,omitempty"`
	RedactKeys []string        `json:"redactKeys,omitempty"`
	Sampling   *SamplingConfig `json:"sampling,omitempty"`
}

// OutputConfig selects an output. Type is console, file, or null.
type OutputConfig struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

// SamplingConfig logs the first Initial occurrences of a message, then every
// Thereafter-th.
type SamplingConfig struct {
	Initial    int `json:"initial"`
	Thereafter int `json:"thereafter"`
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	opts := []LoggerOption{WithLevel(level), WithFormatter(formatter)}
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "", "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "file":
			if oc.Path == "" {
				return nil, fmt.Errorf("file output requires a path")
			}
			fo, err := NewFileOutput(oc.Path)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithOutput(fo))
		case "null":
			opts = append(opts, WithOutput(&NullOutput{}))
		default:
			return nil, fmt.Errorf("unknown log output %q", oc.Type)
		}
	}

	logger := NewLogger(opts...).(*BaseLogger)
	h := newBridgeHandler(logger).withRedactions(cfg.RedactKeys)
	if cfg.Sampling != nil {
		h = h.withSampler(cfg.Sampling.Initial, cfg.Sampling.Thereafter)
	}
	logger.slogLogger = slog.New(h)
	return logger, nil
}
