package flagsync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// HTTPRefetcher fetches config over HTTP, passing the stream hint as query
// parameters and revalidating with the last ETag it saw.
type HTTPRefetcher struct {
	URL    string
	Client *http.Client
	// OnConfig receives each new config body. Not called on 304.
	OnConfig func(body []byte)

	mu   sync.Mutex
	etag string
}

// Refetch implements Refetcher.
func (r *HTTPRefetcher) Refetch(ctx context.Context, h Hint) error {
	u, err := url.Parse(r.URL)
	if err != nil {
		return err
	}
	q := u.Query()
	if h.Sse {
		q.Set("sse", "true")
		if h.LastModified > 0 {
			q.Set("sseLastModified", strconv.FormatInt(h.LastModified, 10))
		}
		if h.ETag != "" {
			q.Set("sseEtag", h.ETag)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	r.mu.Lock()
	if r.etag != "" {
		req.Header.Set("If-None-Match", r.etag)
	}
	r.mu.Unlock()

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("config request failed: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if et := resp.Header.Get("ETag"); et != "" {
		r.mu.Lock()
		r.etag = et
		r.mu.Unlock()
	}
	if r.OnConfig != nil {
		r.OnConfig(body)
	}
	return nil
}

// ETag returns the last ETag received.
func (r *HTTPRefetcher) ETag() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.etag
}
