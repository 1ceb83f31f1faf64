package cachestore

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/prochepro/edgeworker/internal/logger"
)

// AssetFetcher retrieves a single asset by absolute URL during install.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, url string) (*http.Response, error)
}

// Manager owns the namespace lifecycle: install-time precache, activate-time
// garbage collection of stale versions, and the full clear used by the
// clearCache control message.
type Manager struct {
	storage     *Storage
	names       Names
	fetcher     AssetFetcher
	origin      *url.URL
	precache    []string
	offlinePage string
	log         logger.Logger
}

// NewManager creates a Manager. The precache list holds root-relative
// paths resolved against origin during install.
func NewManager(storage *Storage, names Names, fetcher AssetFetcher, origin *url.URL, precache []string, offlinePage string, log logger.Logger) *Manager {
	return &Manager{
		storage:     storage,
		names:       names,
		fetcher:     fetcher,
		origin:      origin,
		precache:    precache,
		offlinePage: offlinePage,
		log:         log,
	}
}

// Names returns the namespace names for the current version epoch.
func (m *Manager) Names() Names {
	return m.names
}

// Storage returns the underlying namespace storage.
func (m *Manager) Storage() *Storage {
	return m.storage
}

// Install opens the static namespace and attempts to add every precache
// asset. Failures are isolated per asset and logged; installation always
// proceeds, so Install reports the number of assets cached rather than an
// error.
func (m *Manager) Install(ctx context.Context) int {
	static := m.storage.Open(m.names.Static())

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		cached int
	)
	for _, path := range m.precache {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			absolute := m.resolve(path)
			resp, err := m.fetcher.FetchAsset(ctx, absolute)
			if err != nil {
				m.log.Warn("precache asset fetch failed",
					logger.String("asset", path),
					logger.Error(err))
				return
			}
			if resp.StatusCode != http.StatusOK {
				_ = resp.Body.Close()
				m.log.Warn("precache asset returned non-200",
					logger.String("asset", path),
					logger.Int("status", resp.StatusCode))
				return
			}
			entry, _, err := NewEntry(absolute, resp)
			if err != nil {
				m.log.Warn("precache asset store failed",
					logger.String("asset", path),
					logger.Error(err))
				return
			}
			static.Put(absolute, entry)
			mu.Lock()
			cached++
			mu.Unlock()
		}(path)
	}
	wg.Wait()

	m.log.Info("install precache completed",
		logger.Int("cached", cached),
		logger.Int("requested", len(m.precache)))
	return cached
}

// Activate deletes every namespace that belongs to this application but is
// not one of the three currently designated names. Namespaces outside our
// prefix are left alone. Returns the deleted names.
func (m *Manager) Activate(ctx context.Context) []string {
	var deleted []string
	for _, name := range m.storage.Names() {
		if !m.names.Owns(name) || m.names.Current(name) {
			continue
		}
		if m.storage.Delete(name) {
			deleted = append(deleted, name)
		}
	}
	if len(deleted) > 0 {
		m.log.Info("activated: purged stale cache namespaces",
			logger.Int("deleted", len(deleted)),
			logger.String("current", m.names.Combined()))
	}
	return deleted
}

// ClearAll deletes every namespace unconditionally and returns how many
// were removed.
func (m *Manager) ClearAll() int {
	n := m.storage.Clear()
	m.log.Info("cleared all cache namespaces", logger.Int("deleted", n))
	return n
}

// OfflineEntry returns the precached offline fallback page, if present.
func (m *Manager) OfflineEntry() (*Entry, bool) {
	static, ok := m.storage.Get(m.names.Static())
	if !ok {
		return nil, false
	}
	return static.Match(m.resolve(m.offlinePage))
}

// resolve turns a root-relative precache path into an absolute URL on the
// configured origin. Absolute paths pass through untouched.
func (m *Manager) resolve(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	ref := &url.URL{Path: path}
	return m.origin.ResolveReference(ref).String()
}
