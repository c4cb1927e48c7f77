// Package metrics exposes tenant resolution and entitlement counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
)

// Config holds the collector settings
type Config struct {
	// Namespace prefixes every metric, e.g. "hr" gives hr_tenant_resolutions_total
	Namespace string
	// RuntimeCollectors registers the Go and process collectors
	RuntimeCollectors bool
}

// TenancyMetrics is a Prometheus collector set for the tenant registry,
// the tenant resolver and the HTTP layer. It owns its registry so tests
// and multiple instances never collide on the global one.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type TenancyMetrics struct {
	registry *prometheus.Registry

	cacheLookups    *prometheus.CounterVec
	quotaChecks     *prometheus.CounterVec
	usageIncrements *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	featureDenials  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates and registers the collectors
func New(cfg Config) *TenancyMetrics {
	ns := cfg.Namespace
	m := &TenancyMetrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "tenant_cache",
			Name:      "lookups_total",
			Help:      "Tenant cache lookups by entry kind and result.",
		}, []string{"kind", "result"}),
		quotaChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "tenant",
			Name:      "quota_checks_total",
			Help:      "Quota checks by resource and outcome.",
		}, []string{"resource", "outcome"}),
		usageIncrements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "tenant",
			Name:      "usage_increment_total",
			Help:      "Sum of usage increments by resource.",
		}, []string{"resource"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "tenant",
			Name:      "resolutions_total",
			Help:      "Tenant resolutions by request source and outcome.",
		}, []string{"source", "outcome"}),
		featureDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "tenant",
			Name:      "feature_denials_total",
			Help:      "Feature checks that denied access, by feature and cause.",
		}, []string{"feature", "cause"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http_server",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http_server",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.cacheLookups,
		m.quotaChecks,
		m.usageIncrements,
		m.resolutions,
		m.featureDenials,
		m.httpRequests,
		m.httpDuration,
	)
	if cfg.RuntimeCollectors {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the registry the collectors are registered on
func (m *TenancyMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCacheLookup counts a registry cache lookup
func (m *TenancyMetrics) ObserveCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// ObserveQuotaCheck counts a quota check
func (m *TenancyMetrics) ObserveQuotaCheck(resource tenancy.Resource, exceeded bool) {
	outcome := "within"
	if exceeded {
		outcome = "exceeded"
	}
	m.quotaChecks.WithLabelValues(string(resource), outcome).Inc()
}

// ObserveUsageIncrement adds by to the usage counter of resource
func (m *TenancyMetrics) ObserveUsageIncrement(resource tenancy.Resource, by int64) {
	if by <= 0 {
		return
	}
	m.usageIncrements.WithLabelValues(string(resource)).Add(float64(by))
}

// ObserveResolution counts a tenant resolution attempt. Outcome is "ok" or
// the denial reason.
func (m *TenancyMetrics) ObserveResolution(source, outcome string) {
	if source == "" {
		source = "none"
	}
	m.resolutions.WithLabelValues(source, outcome).Inc()
}

// ObserveFeatureDenial counts a denied feature check
func (m *TenancyMetrics) ObserveFeatureDenial(feature string, cause tenancy.DenialCause) {
	m.featureDenials.WithLabelValues(feature, string(cause)).Inc()
}

// GinMiddleware records request count and latency. The route label is the
// matched route template so tenant ids in paths do not explode cardinality.
func (m *TenancyMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *TenancyMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
