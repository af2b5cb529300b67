// metrics/metrics.go

// Package metrics holds the prometheus collectors for the cache, query and
// permission paths. A nil *Metrics is valid and records nothing, so services
// can be constructed without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "semble"

type Metrics struct {
	CacheHits           *prometheus.CounterVec
	CacheMisses         *prometheus.CounterVec
	CacheEvictions      *prometheus.CounterVec
	CacheSize           *prometheus.GaugeVec
	QueryRequests       *prometheus.CounterVec
	QueryDuration       *prometheus.HistogramVec
	QueryRetries        *prometheus.CounterVec
	RateLimitRejections prometheus.Counter
	PermissionChecks    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache lookups that returned a live entry.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache lookups that found nothing or an expired entry.",
		}, []string{"cache"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted to stay within the size limit.",
		}, []string{"cache"}),
		CacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries currently held.",
		}, []string{"cache"}),
		QueryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "GraphQL requests by operation and outcome.",
		}, []string{"operation", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end ExecuteQuery latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		QueryRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "retries_total",
			Help:      "Retry attempts by error code.",
		}, []string{"code"}),
		RateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the local sliding window.",
		}),
		PermissionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permission",
			Name:      "checks_total",
			Help:      "Permission checks by resource and decision.",
		}, []string{"resource", "decision"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CacheHits, m.CacheMisses, m.CacheEvictions, m.CacheSize,
			m.QueryRequests, m.QueryDuration, m.QueryRetries, m.RateLimitRejections,
			m.PermissionChecks,
		)
	}
	return m
}

func (m *Metrics) CacheHit(cache string) {
	if m != nil {
		m.CacheHits.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) CacheMiss(cache string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) CacheEviction(cache string) {
	if m != nil {
		m.CacheEvictions.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) SetCacheSize(cache string, size int) {
	if m != nil {
		m.CacheSize.WithLabelValues(cache).Set(float64(size))
	}
}

func (m *Metrics) ObserveQuery(operation, status string, d time.Duration) {
	if m != nil {
		m.QueryRequests.WithLabelValues(operation, status).Inc()
		m.QueryDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) QueryRetry(code string) {
	if m != nil {
		m.QueryRetries.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) RateLimitRejected() {
	if m != nil {
		m.RateLimitRejections.Inc()
	}
}

func (m *Metrics) PermissionDecision(resource string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.PermissionChecks.WithLabelValues(resource, decision).Inc()
}
