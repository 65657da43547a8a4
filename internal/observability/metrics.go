package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/weather-dashboard/internal/overload"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream calls by source and status. Watch for: error vs success ratio per source.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency by source. Watch for: one slow source holding every cycle open.
	UpstreamDuration *prometheus.HistogramVec

	// Upstream failures by source and error category.
	UpstreamErrorsTotal *prometheus.CounterVec

	// Settled adapter outcomes (success, empty, failed) by source.
	AdapterOutcomesTotal *prometheus.CounterVec

	// Payloads rejected by structural validation. Watch for: upstream format drift.
	SchemaViolationsTotal *prometheus.CounterVec

	// Aggregation cycles by result (published, stale, oneshot).
	CyclesTotal *prometheus.CounterVec

	// Time from fan-out to join for a cycle.
	CycleDuration prometheus.Histogram

	// Storm calls served by another in-flight cycle's request.
	StormCallsCoalescedTotal prometheus.Counter

	// Geocode cache hits/misses/errors by backend.
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	// Startup/periodic geocode cache warming runs, failures and latency.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Circuit breaker state per source: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Relay requests by target and status class.
	RelayRequestsTotal *prometheus.CounterVec

	// Dashboard location changes, total and per tracked location.
	LocationQueriesTotal           prometheus.Counter
	LocationQueriesByLocationTotal *prometheus.CounterVec

	// Scheduled refreshes issued.
	ScheduledRefreshesTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// trackedLocations is built from config; used to bound location label cardinality.
	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}

	rateLimitGaugesOnce sync.Once
	cacheSizeGaugeOnce  sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream API calls by source and status",
		},
		[]string{"source", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source", "status"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Upstream failures by source and error category",
		},
		[]string{"source", "category"},
	)
	AdapterOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapterOutcomesTotal",
			Help: "Settled adapter outcomes by source (success, empty, failed)",
		},
		[]string{"source", "outcome"},
	)
	SchemaViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemaViolationsTotal",
			Help: "Upstream payloads rejected by structural validation",
		},
		[]string{"source"},
	)
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregationCyclesTotal",
			Help: "Aggregation cycles by result (published, stale, oneshot)",
		},
		[]string{"result"},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregationCycleDurationSeconds",
			Help:    "Aggregation cycle latency in seconds, geocode through join",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20},
		},
	)
	StormCallsCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stormCallsCoalescedTotal",
			Help: "Storm fetches that joined an in-flight request instead of calling upstream",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of geocode cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of geocode cache misses",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Total number of cache backend errors",
		},
		[]string{"cacheType"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of geocode cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Warming runs in which at least one location failed to resolve",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Geocode cache warming latency in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per source (0 closed, 1 open, 2 half-open)",
		},
		[]string{"source"},
	)
	RelayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayRequestsTotal",
			Help: "Relay requests by target and upstream status",
		},
		[]string{"target", "status"},
	)
	LocationQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "locationQueriesTotal",
			Help: "Total number of dashboard location changes",
		},
	)
	LocationQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationQueriesByLocationTotal",
			Help: "Dashboard location changes by location (allow-list; others use location=other)",
		},
		[]string{"location"},
	)
	ScheduledRefreshesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduledRefreshesTotal",
			Help: "Total number of scheduler-issued dashboard refreshes",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamErrorsTotal,
		AdapterOutcomesTotal, SchemaViolationsTotal,
		CyclesTotal, CycleDuration, StormCallsCoalescedTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		CircuitBreakerState, RelayRequestsTotal,
		LocationQueriesTotal, LocationQueriesByLocationTotal,
		ScheduledRefreshesTotal, RateLimitDeniedTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(overload.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(overload.DenialCount(window)) },
			),
		)
	})
}

// RegisterCacheSizeGauge exposes the entry count of a process-local cache.
// Only the first call registers.
func RegisterCacheSizeGauge(backend string, size func() int) {
	cacheSizeGaugeOnce.Do(func() {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "cacheEntries",
				Help:        "Entries held by the in-process geocode cache, expired ones included until swept",
				ConstLabels: prometheus.Labels{"backend": backend},
			},
			func() float64 { return float64(size()) },
		))
	})
}

// SetTrackedLocations sets the allow-list for location metrics. Non-tracked locations increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// RecordLocationQuery records a dashboard location change.
func RecordLocationQuery(location string) {
	LocationQueriesTotal.Inc()
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc]
	trackedLocationsMu.RUnlock()
	if ok {
		LocationQueriesByLocationTotal.WithLabelValues(loc).Inc()
	} else {
		LocationQueriesByLocationTotal.WithLabelValues("other").Inc()
	}
}

// RecordOutcome counts a settled adapter outcome.
func RecordOutcome(source, outcome string) {
	AdapterOutcomesTotal.WithLabelValues(source, outcome).Inc()
}

func normalizeLocationForMetrics(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
