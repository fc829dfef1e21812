package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays FLAGSTREAM_* environment variables onto cfg. Invalid
// values are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FLAGSTREAM_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("FLAGSTREAM_HEADERS"); v != "" {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, kv := range strings.Split(v, ",") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				continue
			}
			if k := strings.TrimSpace(parts[0]); k != "" {
				cfg.Headers[k] = strings.TrimSpace(parts[1])
			}
		}
	}
	if v := os.Getenv("FLAGSTREAM_ADMISSION_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.AdmissionLimit = n
		}
	}
	durEnv("FLAGSTREAM_INITIAL_RECONNECT_DELAY", &cfg.InitialReconnectDelay)
	durEnv("FLAGSTREAM_MAX_RECONNECT_DELAY", &cfg.MaxReconnectDelay)
	durEnv("FLAGSTREAM_READ_TIMEOUT", &cfg.ReadTimeout)
	durEnv("FLAGSTREAM_INACTIVITY_DELAY", &cfg.InactivityDelay)
	if v := os.Getenv("FLAGSTREAM_RESUME"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Resume = b
		}
	}
	if v := os.Getenv("FLAGSTREAM_FILTER"); v != "" {
		cfg.Filter = v
	}
	if v := os.Getenv("FLAGSTREAM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FLAGSTREAM_STREAM_KEY"); v != "" {
		cfg.StreamKey = v
	}
	if v := os.Getenv("FLAGSTREAM_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("FLAGSTREAM_HEALTH_ADDR"); v != "" {
		cfg.HealthAddr = v
	}
	if v := os.Getenv("FLAGSTREAM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLAGSTREAM_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

// durEnv accepts a Go duration string or plain milliseconds.
func durEnv(key string, dst *Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
		*dst = Duration(time.Duration(ms) * time.Millisecond)
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		*dst = Duration(d)
	}
}
