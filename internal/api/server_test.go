package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prochepro/edgeworker/internal/cachestore"
	"github.com/prochepro/edgeworker/internal/classify"
	"github.com/prochepro/edgeworker/internal/conf"
	"github.com/prochepro/edgeworker/internal/datastore/entities"
	"github.com/prochepro/edgeworker/internal/datastore/repository"
	"github.com/prochepro/edgeworker/internal/logger"
	"github.com/prochepro/edgeworker/internal/push"
	"github.com/prochepro/edgeworker/internal/strategy"
	"github.com/prochepro/edgeworker/internal/windows"
	"github.com/prochepro/edgeworker/internal/worker"
)

// originFetcher serves same-origin requests from a canned body, or fails
// every call when offline.
type originFetcher struct {
	offline bool
}

func (f *originFetcher) respond() (*http.Response, error) {
	if f.offline {
		return nil, fmt.Errorf("origin unreachable")
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader("origin content")),
	}, nil
}

func (f *originFetcher) Do(req *http.Request) (*http.Response, error) {
	return f.respond()
}

func (f *originFetcher) FetchAsset(ctx context.Context, url string) (*http.Response, error) {
	return f.respond()
}

func apiTestLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func testSettings() *conf.Settings {
	return &conf.Settings{
		App: conf.AppSettings{OriginURL: "https://prochepro.fr"},
		Cache: conf.CacheSettings{
			Prefix:           "prochepro",
			Version:          4,
			PrecacheAssets:   []string{"/offline.html"},
			OfflinePage:      "/offline.html",
			APIPrefix:        "/api/",
			StaticExtensions: []string{".png"},
		},
		Push: conf.PushSettings{
			DefaultTitle: "ProchePro",
			DefaultBody:  "Nouvelle notification",
		},
		Windows: conf.WindowsSettings{
			HeartbeatInterval: conf.Duration(time.Second),
			ChannelBuffer:     4,
		},
	}
}

func newTestServer(t *testing.T, fetcher *originFetcher, deliveries repository.PushDeliveryRepository) (*Server, *windows.Registry) {
	t.Helper()
	log := apiTestLogger()
	settings := testSettings()

	origin, err := url.Parse(settings.App.OriginURL)
	require.NoError(t, err)

	storage := cachestore.NewStorage()
	names := cachestore.Names{Prefix: settings.Cache.Prefix, Version: settings.Cache.Version}
	manager := cachestore.NewManager(storage, names, fetcher, origin,
		settings.Cache.PrecacheAssets, settings.Cache.OfflinePage, log)

	rules := classify.Rules{
		Origin:           origin,
		APIPrefix:        settings.Cache.APIPrefix,
		StaticExtensions: settings.Cache.StaticExtensions,
	}
	executor := strategy.NewExecutor(rules, manager, fetcher, log, nil)

	registry := windows.NewRegistry(settings.Windows.ChannelBuffer, nil, log)
	notifier, err := push.NewNotifier(nil, log)
	require.NoError(t, err)
	handler := push.NewHandler(notifier, registry, nil, push.Defaults{
		Title: settings.Push.DefaultTitle,
		Body:  settings.Push.DefaultBody,
	}, log, nil)

	w := worker.New(manager, executor, handler, registry, log)
	return NewServer(w, registry, settings, deliveries, prometheus.NewRegistry(), log, nil), registry
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestServer_HandlePush(t *testing.T) {
	s, registry := newTestServer(t, &originFetcher{}, nil)
	win := registry.Register()

	rec := doRequest(s, http.MethodPost, "/worker/push", `{"title":"Nouvelle offre","tag":"offer-1"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	msg := <-win.Ch
	assert.Equal(t, windows.MessageNotification, msg.Type)
	d, ok := msg.Data.(*push.Descriptor)
	require.True(t, ok)
	assert.Equal(t, "Nouvelle offre", d.Title)
}

func TestServer_HandlePushMalformedPayloadStillAccepted(t *testing.T) {
	s, _ := newTestServer(t, &originFetcher{}, nil)
	rec := doRequest(s, http.MethodPost, "/worker/push", `{{{not json`)
	assert.Equal(t, http.StatusAccepted, rec.Code,
		"malformed payloads become default notifications, not errors")
}

func TestServer_HandleControlMessage(t *testing.T) {
	s, _ := newTestServer(t, &originFetcher{}, nil)

	rec := doRequest(s, http.MethodPost, "/worker/message", `{"message":"skipWaiting"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	status := doRequest(s, http.MethodGet, "/worker/status", "")
	var body map[string]any
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &body))
	assert.Equal(t, true, body["active"], "skipWaiting activates the worker")
}

func TestServer_HandleControlMessageClearCache(t *testing.T) {
	s, _ := newTestServer(t, &originFetcher{}, nil)
	rec := doRequest(s, http.MethodPost, "/worker/message", `{"message":"clearCache"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HandleControlMessageRejectsUnknown(t *testing.T) {
	s, _ := newTestServer(t, &originFetcher{}, nil)

	rec := doRequest(s, http.MethodPost, "/worker/message", `{"message":"selfDestruct"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/worker/message", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HandleNotificationClick(t *testing.T) {
	s, registry := newTestServer(t, &originFetcher{}, nil)
	win := registry.Register()

	rec := doRequest(s, http.MethodPost, "/worker/notification-click", `{"tag":"offer-1","url":"/offres/1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	msg := <-win.Ch
	assert.Equal(t, windows.MessageNavigate, msg.Type)
	assert.Equal(t, map[string]string{"url": "/offres/1"}, msg.Data)
}

func TestServer_GetStatus(t *testing.T) {
	s, registry := newTestServer(t, &originFetcher{}, nil)
	registry.Register()

	rec := doRequest(s, http.MethodGet, "/worker/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["active"])
	assert.Equal(t, float64(1), body["windows"])
	assert.Equal(t, float64(4), body["version"])
}

func TestServer_HandleFetchServesOrigin(t *testing.T) {
	s, _ := newTestServer(t, &originFetcher{}, nil)

	rec := doRequest(s, http.MethodGet, "/taches", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "origin content", rec.Body.String())
	assert.Equal(t, "network", rec.Header().Get("X-Served-From"))
}

func TestServer_HandleFetchOfflineNoFallback(t *testing.T) {
	s, _ := newTestServer(t, &originFetcher{offline: true}, nil)

	rec := doRequest(s, http.MethodGet, "/fichier.inconnu", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t, &originFetcher{}, nil)
	rec := doRequest(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ListDeliveriesUnavailableWithoutRepo(t *testing.T) {
	s, _ := newTestServer(t, &originFetcher{}, nil)
	rec := doRequest(s, http.MethodGet, "/worker/deliveries", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// stubDeliveryRepo returns canned history for the endpoint tests.
type stubDeliveryRepo struct {
	gotFilter repository.PushDeliveryFilter
	byID      map[uint]*entities.PushDelivery
	counts    map[string]int64
}

func (r *stubDeliveryRepo) SaveDelivery(ctx context.Context, d *entities.PushDelivery) error {
	return nil
}

func (r *stubDeliveryRepo) GetDelivery(ctx context.Context, id uint) (*entities.PushDelivery, error) {
	if d, ok := r.byID[id]; ok {
		return d, nil
	}
	return nil, repository.ErrDeliveryNotFound
}

func (r *stubDeliveryRepo) ListDeliveries(ctx context.Context, filter repository.PushDeliveryFilter) ([]entities.PushDelivery, int64, error) {
	r.gotFilter = filter
	return []entities.PushDelivery{{Tag: "offer-1", Outcome: "displayed"}}, 1, nil
}

func (r *stubDeliveryRepo) CountByOutcome(ctx context.Context, outcome string) (int64, error) {
	return r.counts[outcome], nil
}

func (r *stubDeliveryRepo) DeleteDeliveriesBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func TestServer_ListDeliveries(t *testing.T) {
	repo := &stubDeliveryRepo{}
	s, _ := newTestServer(t, &originFetcher{}, repo)

	rec := doRequest(s, http.MethodGet, "/worker/deliveries?tag=offer-1&outcome=displayed&limit=10&offset=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "offer-1", repo.gotFilter.Tag)
	assert.Equal(t, "displayed", repo.gotFilter.Outcome)
	assert.Equal(t, 10, repo.gotFilter.Limit)
	assert.Equal(t, 5, repo.gotFilter.Offset)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["total"])
}

func TestServer_ListDeliveriesClampsLimit(t *testing.T) {
	repo := &stubDeliveryRepo{}
	s, _ := newTestServer(t, &originFetcher{}, repo)

	rec := doRequest(s, http.MethodGet, "/worker/deliveries?limit=9000", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxDeliveryPageSize, repo.gotFilter.Limit)
}

func TestServer_GetDelivery(t *testing.T) {
	repo := &stubDeliveryRepo{byID: map[uint]*entities.PushDelivery{
		7: {ID: 7, Tag: "offer-7", Outcome: "displayed"},
	}}
	s, _ := newTestServer(t, &originFetcher{}, repo)

	rec := doRequest(s, http.MethodGet, "/worker/deliveries/7", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "offer-7", body["tag"])

	rec = doRequest(s, http.MethodGet, "/worker/deliveries/8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s, http.MethodGet, "/worker/deliveries/sept", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetDeliveryStats(t *testing.T) {
	repo := &stubDeliveryRepo{counts: map[string]int64{
		"displayed":          5,
		"displayed_fallback": 1,
	}}
	s, _ := newTestServer(t, &originFetcher{}, repo)

	rec := doRequest(s, http.MethodGet, "/worker/deliveries/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Outcomes map[string]int64 `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(5), body.Outcomes["displayed"])
	assert.Equal(t, int64(1), body.Outcomes["displayed_fallback"])
	assert.Equal(t, int64(0), body.Outcomes["failed"])
}

func TestServer_DeliveryEndpointsUnavailableWithoutRepo(t *testing.T) {
	s, _ := newTestServer(t, &originFetcher{}, nil)

	rec := doRequest(s, http.MethodGet, "/worker/deliveries/1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(s, http.MethodGet, "/worker/deliveries/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_ListDeliveriesRejectsBadParams(t *testing.T) {
	s, _ := newTestServer(t, &originFetcher{}, &stubDeliveryRepo{})

	rec := doRequest(s, http.MethodGet, "/worker/deliveries?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, "/worker/deliveries?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
