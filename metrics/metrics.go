// Package metrics exposes Prometheus collectors for the relay, the feed
// upstream and the HTTP layer. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	streams       *prometheus.CounterVec
	relayBytes    *prometheus.CounterVec
	resolveTime   prometheus.Histogram
	upstreamCalls *prometheus.CounterVec
	cacheEntries  *prometheus.GaugeVec
	cacheBytes    prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidtok_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidtok_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidtok_relay_streams_total",
			Help: "Relay requests by outcome.",
		}, []string{"outcome"}),
		relayBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidtok_relay_bytes_total",
			Help: "Bytes delivered by the relay per sink.",
		}, []string{"sink"}),
		resolveTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidtok_resolver_duration_seconds",
			Help:    "Metadata resolution latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 10, 15},
		}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidtok_upstream_calls_total",
			Help: "Feed upstream API attempts by operation and outcome.",
		}, []string{"op", "outcome"}),
		cacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vidtok_cache_entries",
			Help: "Cache entries by lifecycle state.",
		}, []string{"state"}),
		cacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidtok_cache_bytes",
			Help: "Bytes held in the cache directory.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.streams, m.relayBytes,
		m.resolveTime, m.upstreamCalls, m.cacheEntries, m.cacheBytes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry to tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Middleware records request counts and latency keyed by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) StreamFinished(outcome string) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RelayBytes(sink string, n int) {
	if m == nil {
		return
	}
	m.relayBytes.WithLabelValues(sink).Add(float64(n))
}

func (m *Metrics) ResolveObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.resolveTime.Observe(d.Seconds())
}

func (m *Metrics) UpstreamCall(op, outcome string) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(op, outcome).Inc()
}

// CacheSnapshot replaces the cache gauges with the given state counts.
func (m *Metrics) CacheSnapshot(byState map[string]int, bytes int64) {
	if m == nil {
		return
	}
	m.cacheEntries.Reset()
	for state, n := range byState {
		m.cacheEntries.WithLabelValues(state).Set(float64(n))
	}
	m.cacheBytes.Set(float64(bytes))
}
