package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

// TestMetrics_Usable verifies that all metrics accept the label dimensions
// used by the client, service, cache, relay and http packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/weather/{location}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/weather/{location}").Observe(0.01)
	UpstreamCallsTotal.WithLabelValues("forecast", "success").Inc()
	UpstreamDuration.WithLabelValues("forecast", "success").Observe(0.1)
	UpstreamErrorsTotal.WithLabelValues("alerts", "timeout").Inc()
	SchemaViolationsTotal.WithLabelValues("storms").Inc()
	CyclesTotal.WithLabelValues("published").Inc()
	CycleDuration.Observe(0.4)
	StormCallsCoalescedTotal.Inc()
	CacheHitsTotal.WithLabelValues("in_memory").Inc()
	CacheMissesTotal.WithLabelValues("in_memory").Inc()
	CacheErrorsTotal.WithLabelValues("memcached").Inc()
	CircuitBreakerState.WithLabelValues("forecast").Set(1)
	RelayRequestsTotal.WithLabelValues("nhc", "2xx").Inc()
	ScheduledRefreshesTotal.Inc()
}

// TestRecordOutcome verifies outcomes are counted per source and status.
func TestRecordOutcome(t *testing.T) {
	before := testutil.ToFloat64(AdapterOutcomesTotal.WithLabelValues("news", "empty"))
	RecordOutcome("news", "empty")
	RecordOutcome("news", "empty")
	after := testutil.ToFloat64(AdapterOutcomesTotal.WithLabelValues("news", "empty"))
	if after-before != 2 {
		t.Errorf("adapterOutcomesTotal{news,empty} delta = %v, want 2", after-before)
	}
}

// TestSetTrackedLocations_and_RecordLocationQuery verifies tracked locations
// get their own label and everything else is folded into "other".
func TestSetTrackedLocations_and_RecordLocationQuery(t *testing.T) {
	SetTrackedLocations([]string{"Tampa", "St. Petersburg"})
	defer SetTrackedLocations(nil)

	tampaBefore := testutil.ToFloat64(LocationQueriesByLocationTotal.WithLabelValues("tampa"))
	otherBefore := testutil.ToFloat64(LocationQueriesByLocationTotal.WithLabelValues("other"))

	RecordLocationQuery("  TAMPA ")
	RecordLocationQuery("Nowhere")

	if got := testutil.ToFloat64(LocationQueriesByLocationTotal.WithLabelValues("tampa")) - tampaBefore; got != 1 {
		t.Errorf("tampa delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(LocationQueriesByLocationTotal.WithLabelValues("other")) - otherBefore; got != 1 {
		t.Errorf("other delta = %v, want 1", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}

func TestRegisterCacheSizeGauge(t *testing.T) {
	size := 3
	RegisterCacheSizeGauge("in_memory", func() int { return size })
	RegisterCacheSizeGauge("in_memory", func() int { return 99 })

	scrape := func() string {
		w := httptest.NewRecorder()
		MetricsHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
		return w.Body.String()
	}
	if body := scrape(); !strings.Contains(body, `cacheEntries{backend="in_memory"} 3`) {
		t.Errorf("metrics missing cacheEntries 3:\n%s", body)
	}
	size = 5
	if body := scrape(); !strings.Contains(body, `cacheEntries{backend="in_memory"} 5`) {
		t.Errorf("metrics missing cacheEntries 5:\n%s", body)
	}
}

func TestFlushTelemetry(t *testing.T) {
	if err := FlushTelemetry(context.Background(), nil); err != nil {
		t.Errorf("FlushTelemetry(nil logger) = %v, want nil", err)
	}
	if err := FlushTelemetry(context.Background(), zap.NewNop()); err != nil {
		t.Errorf("FlushTelemetry(nop) = %v, want nil", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := FlushTelemetry(ctx, zap.NewNop()); !errors.Is(err, context.Canceled) {
		t.Errorf("FlushTelemetry(canceled) = %v, want context.Canceled", err)
	}
}

func TestIgnorableSyncError(t *testing.T) {
	if !ignorableSyncError(&os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}) {
		t.Error("EINVAL on stderr should be ignored")
	}
	if ignorableSyncError(errors.New("disk full")) {
		t.Error("other errors should not be ignored")
	}
}
