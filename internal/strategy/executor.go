// Package strategy applies per-request caching strategies: cache-first
// for static assets, network-first with offline fallback for pages, and
// network-first with best-effort cache for everything else intercepted.
package strategy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/prochepro/edgeworker/internal/cachestore"
	"github.com/prochepro/edgeworker/internal/classify"
	"github.com/prochepro/edgeworker/internal/logger"
	"github.com/prochepro/edgeworker/internal/observability/metrics"
)

// Source identifies where a served response came from.
const (
	SourceNetwork = metrics.OutcomeNetwork
	SourceCache   = metrics.OutcomeCache
	SourceOffline = metrics.OutcomeOffline
)

// Result is the outcome of executing a strategy for one request.
type Result struct {
	// Response is ready to serve; the caller owns the body.
	Response *http.Response
	Source   string
	Category classify.Category
}

// Executor routes classified requests through the caching strategies.
type Executor struct {
	rules   classify.Rules
	manager *cachestore.Manager
	fetcher Fetcher
	log     logger.Logger
	metrics *metrics.Metrics

	// storeHook, when set, is invoked after each background cache write
	// settles. Tests use it to wait for fire-and-forget writes.
	storeHook func(namespace, key string)
}

// NewExecutor creates an Executor.
func NewExecutor(rules classify.Rules, manager *cachestore.Manager, fetcher Fetcher, log logger.Logger, m *metrics.Metrics) *Executor {
	return &Executor{
		rules:   rules,
		manager: manager,
		fetcher: fetcher,
		log:     log,
		metrics: m,
	}
}

// Execute classifies the request and applies the matching strategy.
// Bypass and API requests pass straight to the network with no cache
// interaction of any kind.
func (e *Executor) Execute(ctx context.Context, req *http.Request) (*Result, error) {
	category := e.rules.Classify(req)

	var (
		res *Result
		err error
	)
	switch category {
	case classify.CategoryBypass, classify.CategoryAPI:
		res, err = e.passThrough(ctx, req)
	case classify.CategoryStatic:
		res, err = e.cacheFirst(ctx, req)
	case classify.CategoryPage:
		res, err = e.networkFirstPage(ctx, req)
	default:
		res, err = e.networkFirstBestEffort(ctx, req)
	}

	if err != nil {
		e.metrics.RecordFetch(category.String(), metrics.OutcomeError)
		return nil, err
	}
	res.Category = category
	e.metrics.RecordFetch(category.String(), res.Source)
	return res, nil
}

// passThrough forwards the request untouched and serves the raw response.
func (e *Executor) passThrough(ctx context.Context, req *http.Request) (*Result, error) {
	resp, err := e.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Result{Response: resp, Source: SourceNetwork}, nil
}

// cacheFirst serves static assets from the static namespace, touching the
// network only on a miss. Fresh 200 responses are stored in the
// background; a store failure never affects the served response.
func (e *Executor) cacheFirst(ctx context.Context, req *http.Request) (*Result, error) {
	key := e.cacheKey(req)
	static := e.manager.Storage().Open(e.manager.Names().Static())

	if entry, ok := static.Match(key); ok {
		e.metrics.RecordCacheHit(cachestore.KindStatic)
		return &Result{Response: entry.Response(), Source: SourceCache}, nil
	}
	e.metrics.RecordCacheMiss(cachestore.KindStatic)

	resp, err := e.fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("static asset fetch failed for %s: %w", key, err)
	}
	return e.serveAndStore(static, key, resp), nil
}

// networkFirstPage serves pages live, falling back on network failure to
// the cached copy of the exact request, then to the offline page.
func (e *Executor) networkFirstPage(ctx context.Context, req *http.Request) (*Result, error) {
	key := e.cacheKey(req)
	dynamic := e.manager.Storage().Open(e.manager.Names().Dynamic())

	resp, err := e.fetch(ctx, req)
	if err == nil {
		return e.serveAndStore(dynamic, key, resp), nil
	}

	e.log.Debug("page fetch failed, trying cache",
		logger.String("url", key),
		logger.Error(err))

	if entry, ok := dynamic.Match(key); ok {
		e.metrics.RecordCacheHit(cachestore.KindDynamic)
		return &Result{Response: entry.Response(), Source: SourceCache}, nil
	}
	e.metrics.RecordCacheMiss(cachestore.KindDynamic)

	if offline, ok := e.manager.OfflineEntry(); ok {
		return &Result{Response: offline.Response(), Source: SourceOffline}, nil
	}
	return nil, fmt.Errorf("page fetch failed for %s with no cached fallback: %w", key, err)
}

// networkFirstBestEffort serves other intercepted GETs live, storing
// successes in the dynamic namespace; on failure it returns whatever any
// namespace holds, with no guaranteed fallback.
func (e *Executor) networkFirstBestEffort(ctx context.Context, req *http.Request) (*Result, error) {
	key := e.cacheKey(req)
	dynamic := e.manager.Storage().Open(e.manager.Names().Dynamic())

	resp, err := e.fetch(ctx, req)
	if err == nil {
		return e.serveAndStore(dynamic, key, resp), nil
	}

	if entry, ok := e.matchAny(key); ok {
		e.metrics.RecordCacheHit(cachestore.KindDynamic)
		return &Result{Response: entry.Response(), Source: SourceCache}, nil
	}
	return nil, fmt.Errorf("fetch failed for %s with nothing cached: %w", key, err)
}

// serveAndStore materializes the live response for serving and, when it is
// an HTTP 200, stores a copy in the background. Failure to build or store
// the copy is logged and never fails the served response.
func (e *Executor) serveAndStore(ns *cachestore.Namespace, key string, resp *http.Response) *Result {
	if resp.StatusCode != http.StatusOK {
		return &Result{Response: resp, Source: SourceNetwork}
	}

	entry, replay, err := cachestore.NewEntry(key, resp)
	if err != nil {
		e.log.Warn("failed to clone response for caching",
			logger.String("url", key),
			logger.Error(err))
		if replay != nil {
			resp.Body = replay
			return &Result{Response: resp, Source: SourceNetwork}
		}
		// Body was lost with the clone; the caller still gets headers.
		resp.Body = http.NoBody
		return &Result{Response: resp, Source: SourceNetwork}
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Warn("background cache write panicked",
					logger.String("url", key),
					logger.Any("panic", r))
			}
			if e.storeHook != nil {
				e.storeHook(ns.Name(), key)
			}
		}()
		ns.Put(key, entry)
	}()

	resp.Body = replay
	return &Result{Response: resp, Source: SourceNetwork}
}

// matchAny looks the key up in the dynamic namespace first, then static.
func (e *Executor) matchAny(key string) (*cachestore.Entry, bool) {
	names := e.manager.Names()
	for _, name := range []string{names.Dynamic(), names.Static()} {
		if ns, ok := e.manager.Storage().Get(name); ok {
			if entry, found := ns.Match(key); found {
				return entry, true
			}
		}
	}
	return nil, false
}

// fetch builds the outbound origin request and performs it.
func (e *Executor) fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	target := req.URL
	if !target.IsAbs() {
		target = e.rules.Origin.ResolveReference(&url.URL{
			Path:     req.URL.Path,
			RawQuery: req.URL.RawQuery,
		})
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to build outbound request: %w", err)
	}
	out.Header = req.Header.Clone()
	return e.fetcher.Do(out)
}

// cacheKey is the absolute request URL the entry is stored under.
func (e *Executor) cacheKey(req *http.Request) string {
	if req.URL.IsAbs() {
		return req.URL.String()
	}
	return e.rules.Origin.ResolveReference(&url.URL{
		Path:     req.URL.Path,
		RawQuery: req.URL.RawQuery,
	}).String()
}
