package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"otcdesk/native/otc"
)

// DeskMetrics bundles collectors tracking RPC activity, engine outcomes and
// published prices.
type DeskMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
	events    *prometheus.CounterVec
	prices    *prometheus.GaugeVec
}

var (
	deskMetricsOnce sync.Once
	deskRegistry    *DeskMetrics
)

// Desk returns the lazily-initialised metrics registry for the desk daemon.
func Desk() *DeskMetrics {
	deskMetricsOnce.Do(func() {
		deskRegistry = &DeskMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otcdesk",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otcdesk",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error category.",
			}, []string{"method", "category"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "otcdesk",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otcdesk",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by rate limiting.",
			}, []string{"reason"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otcdesk",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Count of engine events segmented by event type.",
			}, []string{"type"}),
			prices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "otcdesk",
				Subsystem: "oracle",
				Name:      "price_usd",
				Help:      "Latest published USD price (8 decimals) per asset.",
			}, []string{"asset", "source"}),
		}
		prometheus.MustRegister(
			deskRegistry.requests,
			deskRegistry.errors,
			deskRegistry.latency,
			deskRegistry.throttles,
			deskRegistry.events,
			deskRegistry.prices,
		)
	})
	return deskRegistry
}

// ObserveRequest records the outcome of one JSON-RPC call.
func (m *DeskMetrics) ObserveRequest(method string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if method = strings.TrimSpace(method); method == "" {
		method = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(method, otc.Category(err)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter.
func (m *DeskMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// RecordEvent counts an emitted engine event.
func (m *DeskMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType = strings.TrimSpace(eventType); eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

// RecordPrice publishes the latest price gauge for an asset.
func (m *DeskMetrics) RecordPrice(asset, source string, priceUsd uint64) {
	if m == nil {
		return
	}
	m.prices.WithLabelValues(asset, source).Set(float64(priceUsd))
}
