package cachestore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxEntryBody bounds how much of a response body a single entry may hold.
// Responses larger than this are served but never cached.
const maxEntryBody = 10 << 20 // 10 MiB

// Entry is a cached response for a single request URL. Entries carry no
// expiry of their own; they live until overwritten or until their
// namespace is deleted.
type Entry struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// NewEntry materializes an Entry from a live response, consuming the body.
// The caller keeps serving the original response via the returned reader,
// which replays the consumed bytes (the "clone before store" step).
func NewEntry(url string, resp *http.Response) (*Entry, io.ReadCloser, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEntryBody+1))
	closeErr := resp.Body.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body for %s: %w", url, err)
	}
	if closeErr != nil {
		return nil, nil, fmt.Errorf("failed to close response body for %s: %w", url, closeErr)
	}

	replay := io.NopCloser(bytes.NewReader(body))
	if len(body) > maxEntryBody {
		return nil, replay, fmt.Errorf("response body for %s exceeds cache entry limit", url)
	}

	entry := &Entry{
		URL:      url,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	}
	return entry, replay, nil
}

// Response converts the entry back into an http.Response suitable for
// serving to a client.
func (e *Entry) Response() *http.Response {
	return &http.Response{
		StatusCode:    e.Status,
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
	}
}
