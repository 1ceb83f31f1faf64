// Package metrics exposes Prometheus instrumentation for the edge worker.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch outcome label values.
const (
	OutcomeNetwork = "network"
	OutcomeCache   = "cache"
	OutcomeOffline = "offline"
	OutcomeError   = "error"
)

// Push delivery outcome label values.
const (
	DeliveryDisplayed = "displayed"
	DeliveryFallback  = "displayed_fallback"
	DeliveryFailed    = "failed"
)

// Metrics holds all worker counters. A nil *Metrics is valid and records
// nothing, so call sites never need nil checks.
type Metrics struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	pushDeliveries *prometheus.CounterVec
	broadcasts     prometheus.Counter
	sseMessages    *prometheus.CounterVec
}

// New creates and registers all worker metrics on the given registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeworker_cache_hits_total",
			Help: "Cache lookups that returned a stored entry, by namespace kind.",
		}, []string{"namespace"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeworker_cache_misses_total",
			Help: "Cache lookups that found nothing, by namespace kind.",
		}, []string{"namespace"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeworker_fetches_total",
			Help: "Handled fetch events by request category and serving outcome.",
		}, []string{"category", "outcome"}),
		pushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeworker_push_deliveries_total",
			Help: "Push events handled, by delivery outcome.",
		}, []string{"outcome"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edgeworker_window_broadcasts_total",
			Help: "Messages posted to connected application windows.",
		}),
		sseMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeworker_sse_messages_total",
			Help: "SSE messages sent on the window stream, by event type.",
		}, []string{"event"}),
	}

	collectors := []prometheus.Collector{
		m.cacheHits, m.cacheMisses, m.fetches, m.pushDeliveries,
		m.broadcasts, m.sseMessages,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// RecordCacheHit counts a cache hit for the given namespace kind.
func (m *Metrics) RecordCacheHit(namespace string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(namespace).Inc()
}

// RecordCacheMiss counts a cache miss for the given namespace kind.
func (m *Metrics) RecordCacheMiss(namespace string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(namespace).Inc()
}

// RecordFetch counts one handled fetch by category and outcome.
func (m *Metrics) RecordFetch(category, outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(category, outcome).Inc()
}

// RecordPushDelivery counts one handled push event by outcome.
func (m *Metrics) RecordPushDelivery(outcome string) {
	if m == nil {
		return
	}
	m.pushDeliveries.WithLabelValues(outcome).Inc()
}

// RecordBroadcast counts messages posted to windows.
func (m *Metrics) RecordBroadcast(windows int) {
	if m == nil {
		return
	}
	m.broadcasts.Add(float64(windows))
}

// RecordSSEMessage counts one SSE message by event type.
func (m *Metrics) RecordSSEMessage(event string) {
	if m == nil {
		return
	}
	m.sseMessages.WithLabelValues(event).Inc()
}
