package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rzbill/flagstream/internal/eventsource"
	pebblestore "github.com/rzbill/flagstream/internal/storage/pebble"
	logpkg "github.com/rzbill/flagstream/pkg/log"
)

// healthAddrFromEnv returns the gRPC health address from FLAGSTREAM_HEALTH_ADDR or a default.
func healthAddrFromEnv() string {
	if addr := os.Getenv("FLAGSTREAM_HEALTH_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:50051"
}

// dataDirFromEnv returns FLAGSTREAM_DATA_DIR, or empty for the OS default.
func dataDirFromEnv() string { return os.Getenv("FLAGSTREAM_DATA_DIR") }

// parseFsync maps the --fsync flag to a pebble fsync mode.
func parseFsync(mode string) (pebblestore.FsyncMode, error) {
	switch strings.ToLower(mode) {
	case "", "always":
		return pebblestore.FsyncModeAlways, nil
	case "interval":
		return pebblestore.FsyncModeInterval, nil
	case "never":
		return pebblestore.FsyncModeNever, nil
	default:
		return pebblestore.FsyncModeAlways, fmt.Errorf("invalid --fsync %q; use always|interval|never", mode)
	}
}

// newLogger builds the session logger writing to w.
func newLogger(level, format string, w io.Writer) (logpkg.Logger, error) {
	lvl, err := logpkg.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	var f logpkg.Formatter
	switch strings.ToLower(format) {
	case "", "text":
		f = &logpkg.TextFormatter{}
	case "json":
		f = &logpkg.JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(f), logpkg.WithOutput(logpkg.NewWriterOutput(w))), nil
}

// decodedMessage returns a map with event, id and one of data_json, data_text, or data_b64.
func decodedMessage(event string, m *eventsource.MessageEvent) map[string]any {
	out := map[string]any{"event": event}
	if m.ID != "" {
		out["id"] = m.ID
	}
	if m.Origin != "" {
		out["origin"] = m.Origin
	}
	data := []byte(m.Data)
	// Try JSON first if it looks like JSON
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		var v any
		if json.Unmarshal(data, &v) == nil {
			out["data_json"] = v
			return out
		}
	}
	if utf8.Valid(data) {
		out["data_text"] = m.Data
		return out
	}
	out["data_b64"] = base64.StdEncoding.EncodeToString(data)
	return out
}

// lineWriter serializes JSON lines from the dispatcher worker and the
// foreground refetch.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineWriter(w io.Writer) *lineWriter { return &lineWriter{enc: json.NewEncoder(w)} }

func (l *lineWriter) write(v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(v)
}
