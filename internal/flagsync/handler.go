package flagsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rzbill/flagstream/internal/eventsource"
	"github.com/rzbill/flagstream/pkg/log"
)

// TypeRefetchConfig is the message type asking clients to refetch config.
const TypeRefetchConfig = "refetchConfig"

// ErrMalformedMessage is returned for message data that is not the expected
// JSON envelope.
var ErrMalformedMessage = errors.New("flagsync: malformed message")

// Hint carries what the server told us about the config change.
type Hint struct {
	ETag         string
	LastModified int64
	// Sse is true when the refetch was triggered by a stream message.
	Sse bool
}

// Refetcher fetches a fresh config.
type Refetcher interface {
	Refetch(ctx context.Context, h Hint) error
}

// RefetchFunc adapts a function to Refetcher.
type RefetchFunc func(ctx context.Context, h Hint) error

func (f RefetchFunc) Refetch(ctx context.Context, h Hint) error { return f(ctx, h) }

// Options configures a Handler.
type Options struct {
	// Timeout bounds a single refetch. Zero means 30s.
	Timeout time.Duration
	Logger  log.Logger
}

// Handler is an eventsource.Handler that turns refetch messages into
// Refetcher calls. Refetches run on the dispatcher worker, so they never
// overlap and they hold back later signals until they finish.
type Handler struct {
	r       Refetcher
	timeout time.Duration
	logger  log.Logger

	// lastModified is the newest change already refetched; worker-only.
	lastModified int64

	refetched atomic.Int64
	skipped   atomic.Int64
}

var _ eventsource.Handler = (*Handler)(nil)

// NewHandler returns a Handler calling r.
func NewHandler(r Refetcher, opts Options) *Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &Handler{r: r, timeout: opts.Timeout, logger: opts.Logger.WithComponent("flagsync")}
}

// Stats returns how many refetches ran and how many stale hints were skipped.
func (h *Handler) Stats() (refetched, skipped int64) {
	return h.refetched.Load(), h.skipped.Load()
}

// envelope is the outer message body; data holds the inner JSON, normally
// encoded as a string.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

type update struct {
	Type         string `json:"type"`
	ETag         string `json:"etag"`
	LastModified int64  `json:"lastModified"`
}

// parseUpdate decodes message data. ok is false when there is no inner data.
func parseUpdate(data string) (u update, ok bool, err error) {
	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return update{}, false, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return update{}, false, nil
	}
	inner := []byte(env.Data)
	var s string
	if err := json.Unmarshal(env.Data, &s); err == nil {
		inner = []byte(s)
	}
	if err := json.Unmarshal(inner, &u); err != nil {
		return update{}, false, fmt.Errorf("%w: inner data: %v", ErrMalformedMessage, err)
	}
	return u, true, nil
}

func (h *Handler) OnOpen() error {
	h.logger.Debug("realtime updates connection opened")
	return nil
}

func (h *Handler) OnMessage(event string, msg *eventsource.MessageEvent) error {
	u, ok, err := parseUpdate(msg.Data)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if u.Type != "" && u.Type != TypeRefetchConfig {
		h.logger.Debug("ignoring update", log.Str("type", u.Type))
		return nil
	}
	if u.LastModified > 0 && u.LastModified < h.lastModified {
		h.skipped.Add(1)
		h.logger.Debug("skipping stale refetch hint",
			log.Int64("last_modified", u.LastModified), log.Int64("current", h.lastModified))
		return nil
	}

	h.logger.Debug("refetching config", log.Str("etag", u.ETag), log.Int64("last_modified", u.LastModified))
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.r.Refetch(ctx, Hint{ETag: u.ETag, LastModified: u.LastModified, Sse: true}); err != nil {
		return fmt.Errorf("refetch config: %w", err)
	}
	h.refetched.Add(1)
	if u.LastModified > h.lastModified {
		h.lastModified = u.LastModified
	}
	return nil
}

func (h *Handler) OnComment(text string) error { return nil }

func (h *Handler) OnError(err error) error {
	h.logger.Error("realtime updates error", log.Err(err))
	return nil
}

func (h *Handler) OnClosed() error {
	h.logger.Debug("realtime updates connection closed")
	return nil
}
