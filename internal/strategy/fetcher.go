package strategy

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Fetcher performs network fetches. Wrapped behind an interface so tests
// can count or fail network calls.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// NetworkFetcher fetches over a real HTTP client. Timeouts come from the
// client; there is no additional cancellation beyond the request context.
type NetworkFetcher struct {
	client *http.Client
}

// NewNetworkFetcher creates a NetworkFetcher with the given total timeout.
func NewNetworkFetcher(timeout time.Duration) *NetworkFetcher {
	return &NetworkFetcher{
		client: &http.Client{
			Timeout: timeout,
			// Serve redirects to the client instead of following them,
			// mirroring how an intercepted fetch behaves.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Do performs the request.
func (f *NetworkFetcher) Do(req *http.Request) (*http.Response, error) {
	return f.client.Do(req)
}

// FetchAsset retrieves a single asset by URL. Implements the install-time
// precache fetcher.
func (f *NetworkFetcher) FetchAsset(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build precache request for %s: %w", url, err)
	}
	return f.client.Do(req)
}
