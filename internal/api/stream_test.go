package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prochepro/edgeworker/internal/windows"
)

// syncRecorder makes httptest.ResponseRecorder safe to read while the
// stream handler is still writing to it.
type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (r *syncRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(b)
}

func (r *syncRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResponseRecorder.Flush()
}

func (r *syncRecorder) bodyString() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

var windowIDPattern = regexp.MustCompile(`"windowId":"([^"]+)"`)

func TestServer_StreamWindow(t *testing.T) {
	s, registry := newTestServer(t, &originFetcher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/worker/windows/stream", nil).WithContext(ctx)
	rec := newSyncRecorder()
	ec := s.echo.NewContext(req, rec)

	done := make(chan error, 1)
	go func() { done <- s.StreamWindow(ec) }()

	// Wait for the window to register, then push a message through it.
	require.Eventually(t, func() bool { return registry.Count() == 1 },
		2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, registry.Broadcast(windows.Message{
		Type: windows.MessageNotification,
		Data: map[string]string{"title": "Nouvelle offre"},
	}))

	// Wait for the notification to be flushed, then disconnect the client.
	require.Eventually(t, func() bool {
		return regexp.MustCompile(`event: notification`).MatchString(rec.bodyString())
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop on client disconnect")
	}

	body := rec.bodyString()
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "windowId")
	assert.Contains(t, body, "Nouvelle offre")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	assert.Equal(t, 0, registry.Count(), "window is unregistered when the stream ends")
}

func TestServer_StreamWindowUnregisterClosesStream(t *testing.T) {
	s, registry := newTestServer(t, &originFetcher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/worker/windows/stream", nil)
	rec := newSyncRecorder()
	ec := s.echo.NewContext(req, rec)

	done := make(chan error, 1)
	go func() { done <- s.StreamWindow(ec) }()

	// The connected event carries the window ID.
	require.Eventually(t, func() bool {
		return windowIDPattern.FindStringSubmatch(rec.bodyString()) != nil
	}, 2*time.Second, 10*time.Millisecond)
	id := windowIDPattern.FindStringSubmatch(rec.bodyString())[1]

	// Simulate the worker force-disconnecting the window.
	registry.Unregister(id)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop when its window was unregistered")
	}
}
