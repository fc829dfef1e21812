package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// URL is the SSE endpoint of the realtime updates service.
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`

	// AdmissionLimit bounds signals admitted but not yet delivered. Zero
	// disables backpressure and lets the backlog grow without bound.
	AdmissionLimit int `json:"admissionLimit"`

	InitialReconnectDelay Duration `json:"initialReconnectDelay"`
	MaxReconnectDelay     Duration `json:"maxReconnectDelay"`
	ReadTimeout           Duration `json:"readTimeout"`
	InactivityDelay       Duration `json:"inactivityDelay"`

	// Resume sends the persisted Last-Event-ID on connect. When false every
	// connection starts fresh and the cursor is cleared.
	Resume bool `json:"resume"`

	// Filter is an optional CEL expression; messages that do not match are
	// not handed to the consumer.
	Filter string `json:"filter,omitempty"`

	DataDir   string `json:"dataDir,omitempty"`
	StreamKey string `json:"streamKey,omitempty"`

	MetricsAddr string `json:"metricsAddr,omitempty"`
	HealthAddr  string `json:"healthAddr,omitempty"`

	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		AdmissionLimit:        256,
		InitialReconnectDelay: Duration(time.Second),
		MaxReconnectDelay:     Duration(30 * time.Second),
		ReadTimeout:           Duration(5 * time.Minute),
		InactivityDelay:       Duration(800 * time.Millisecond),
		Resume:                true,
		StreamKey:             "default",
		LogLevel:              "info",
		LogFormat:             "text",
	}
}

// Load reads configuration from a JSON file. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported; use JSON")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks that cfg can drive a session.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("config: url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("config: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: unsupported url scheme %q", u.Scheme)
	}
	if c.AdmissionLimit < 0 {
		return errors.New("config: admissionLimit must be >= 0")
	}
	if c.InitialReconnectDelay < 0 || c.MaxReconnectDelay < 0 || c.ReadTimeout < 0 || c.InactivityDelay < 0 {
		return errors.New("config: durations must be >= 0")
	}
	if c.MaxReconnectDelay > 0 && c.InitialReconnectDelay > c.MaxReconnectDelay {
		return errors.New("config: initialReconnectDelay exceeds maxReconnectDelay")
	}
	if c.DataDir != "" {
		if _, err := os.Stat(c.DataDir); err == nil && !isDir(c.DataDir) {
			return fmt.Errorf("config: dataDir %s is not a directory", c.DataDir)
		}
	}
	if strings.TrimSpace(c.StreamKey) == "" {
		return errors.New("config: streamKey must not be empty")
	}
	return nil
}

// Duration is a time.Duration that reads JSON as either a Go duration string
// ("1.5s") or a number of milliseconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(time.Duration(x) * time.Millisecond)
	case string:
		pd, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(pd)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}
