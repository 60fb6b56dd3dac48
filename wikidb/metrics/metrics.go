// Package metrics holds the process-wide prometheus collectors: request
// counters and duration histograms, cache hit/miss counters and gauges,
// and bucket (object-store) request counters and duration histograms.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a registered set of collectors for one process. Construct
// once at process start and share by reference; every field is safe
// for concurrent use.
type Metrics struct {
	QueryRequests        *prometheus.CounterVec
	QueryDuration        *prometheus.HistogramVec
	CacheRequests        *prometheus.CounterVec
	CacheEntries         *prometheus.GaugeVec
	CacheBytes           *prometheus.GaugeVec
	CacheBytesLimit      *prometheus.GaugeVec
	BucketRequests       *prometheus.CounterVec
	BucketRequestLatency *prometheus.HistogramVec
	IndexLoads           *prometheus.CounterVec
	IndexLoadDuration    *prometheus.HistogramVec
}

// New constructs and registers every collector against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry across packages.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wikidb",
			Name:      "query_requests_total",
		}, []string{"kind", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wikidb",
			Name:      "query_duration_seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wikidb",
			Name:      "cache_requests_total",
		}, []string{"cache", "result"}),
		CacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wikidb",
			Name:      "cache_entries",
		}, []string{"cache"}),
		CacheBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wikidb",
			Name:      "cache_bytes",
		}, []string{"cache"}),
		CacheBytesLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wikidb",
			Name:      "cache_bytes_limit",
		}, []string{"cache"}),
		BucketRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wikidb",
			Name:      "bucket_requests_total",
		}, []string{"status"}),
		BucketRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wikidb",
			Name:      "bucket_request_duration_seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		IndexLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wikidb",
			Name:      "index_loads_total",
		}, []string{"index", "status"}),
		IndexLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wikidb",
			Name:      "index_load_duration_seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"index"}),
	}
	for _, c := range []prometheus.Collector{
		m.QueryRequests, m.QueryDuration, m.CacheRequests, m.CacheEntries,
		m.CacheBytes, m.CacheBytesLimit, m.BucketRequests, m.BucketRequestLatency,
		m.IndexLoads, m.IndexLoadDuration,
	} {
		reg.MustRegister(c)
	}
	return m
}

// CacheHit/CacheMiss record one cache lookup outcome for the named cache.
func (m *Metrics) CacheHit(cache string)  { m.CacheRequests.WithLabelValues(cache, "hit").Inc() }
func (m *Metrics) CacheMiss(cache string) { m.CacheRequests.WithLabelValues(cache, "miss").Inc() }

// UpdateCacheStats sets the entries/bytes/limit gauges for cache.
func (m *Metrics) UpdateCacheStats(cache string, entries int, bytes int64, limit int64) {
	m.CacheEntries.WithLabelValues(cache).Set(float64(entries))
	m.CacheBytes.WithLabelValues(cache).Set(float64(bytes))
	m.CacheBytesLimit.WithLabelValues(cache).Set(float64(limit))
}

// BucketRequestTracker times one in-flight range-read against the
// object store.
type BucketRequestTracker struct {
	start     time.Time
	metrics   *Metrics
	finished  bool
}

// StartBucketRequest begins timing a bucket request.
func (m *Metrics) StartBucketRequest() *BucketRequestTracker {
	return &BucketRequestTracker{start: time.Now(), metrics: m}
}

// Finish records the request's status and duration exactly once.
func (t *BucketRequestTracker) Finish(ctx context.Context, statusCode int) {
	if t.finished {
		return
	}
	t.finished = true
	status := strconv.Itoa(statusCode)
	if ctx.Err() != nil {
		status = "canceled"
	}
	t.metrics.BucketRequests.WithLabelValues(status).Inc()
	t.metrics.BucketRequestLatency.WithLabelValues(status).Observe(time.Since(t.start).Seconds())
}

// TrackIndexLoad times one index-load future and records success/failure.
func (m *Metrics) TrackIndexLoad(index string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.IndexLoads.WithLabelValues(index, status).Inc()
	m.IndexLoadDuration.WithLabelValues(index).Observe(time.Since(start).Seconds())
	return err
}

// TrackQuery times one query-facade call and records success/failure.
func (m *Metrics) TrackQuery(kind string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.QueryRequests.WithLabelValues(kind, status).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	return err
}
