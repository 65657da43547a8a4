package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/degraded"
	"github.com/kjstillabower/weather-dashboard/internal/idle"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/overload"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

type fakeDashboard struct {
	mu      sync.Mutex
	gen     uint64
	queries []models.LocationQuery
	view    service.View
	run     func(ctx context.Context, q models.LocationQuery) models.Snapshot
}

func (f *fakeDashboard) SetLocation(_ context.Context, q models.LocationQuery) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.queries = append(f.queries, q)
	return f.gen
}

func (f *fakeDashboard) Snapshot() service.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeDashboard) Run(ctx context.Context, q models.LocationQuery) models.Snapshot {
	if f.run != nil {
		return f.run(ctx, q)
	}
	return defaultSnapshot(q)
}

func defaultSnapshot(q models.LocationQuery) models.Snapshot {
	return models.Snapshot{
		Query:      q,
		Location:   models.Location{Latitude: 27.7704, Longitude: -82.6695, DisplayName: q.String()},
		Resolved:   true,
		Forecast:   models.Success(models.DailyForecastSeries{{Date: "2024-06-01", Category: models.CategoryClear}}),
		AirQuality: models.Empty[models.AirQualitySnapshot](),
	}
}

func (f *fakeDashboard) lastQuery() models.LocationQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type stubBreaker circuitbreaker.State

func (s stubBreaker) State() circuitbreaker.State { return circuitbreaker.State(s) }

func newTestRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/dashboard", h.GetDashboard).Methods("GET")
	router.HandleFunc("/dashboard/location", h.PutLocation).Methods("PUT")
	router.HandleFunc("/weather", h.GetWeather).Methods("GET")
	router.HandleFunc("/weather/{location}", h.GetWeather).Methods("GET")
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	return router
}

func withRequestContext(req *http.Request, logger *zap.Logger) *http.Request {
	ctx := context.WithValue(req.Context(), "logger", logger)
	ctx = context.WithValue(ctx, "correlation_id", "test-correlation-id")
	return req.WithContext(ctx)
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error.Code
}

func resetSignals() {
	degraded.Reset()
	idle.Reset()
	overload.Reset()
	lifecycle.SetShuttingDown(false)
}

func TestHandler_GetDashboard(t *testing.T) {
	snap := &models.Snapshot{Generation: 3, Location: models.Location{DisplayName: "Tampa, Florida, US"}}
	dash := &fakeDashboard{view: service.View{Snapshot: snap, PendingGeneration: 4, State: service.StateFetching}}
	h := NewHandler(dash, nil, zap.NewNop(), 0, 0)

	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, httptest.NewRequest("GET", "/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got struct {
		Snapshot struct {
			Generation uint64 `json:"generation"`
		} `json:"snapshot"`
		PendingGeneration uint64 `json:"pendingGeneration"`
		State             string `json:"state"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Snapshot.Generation != 3 || got.PendingGeneration != 4 || got.State != "fetching" {
		t.Errorf("view = %+v", got)
	}
}

func TestHandler_PutLocation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantError string
		wantQuery models.LocationQuery
	}{
		{
			name:      "text query",
			body:      `{"query":"  St. Petersburg "}`,
			wantCode:  http.StatusAccepted,
			wantQuery: models.TextQuery("St. Petersburg"),
		},
		{
			name:      "coordinates",
			body:      `{"latitude":27.7704,"longitude":-82.6695,"name":"Home"}`,
			wantCode:  http.StatusAccepted,
			wantQuery: models.CoordinateQuery(27.7704, -82.6695, "Home"),
		},
		{name: "empty query", body: `{"query":"   "}`, wantCode: http.StatusBadRequest, wantError: "INVALID_LOCATION"},
		{name: "invalid characters", body: `{"query":"<script>"}`, wantCode: http.StatusBadRequest, wantError: "INVALID_LOCATION"},
		{name: "latitude only", body: `{"latitude":10}`, wantCode: http.StatusBadRequest, wantError: "INVALID_COORDINATES"},
		{name: "latitude out of range", body: `{"latitude":91,"longitude":0}`, wantCode: http.StatusBadRequest, wantError: "INVALID_COORDINATES"},
		{name: "malformed body", body: `{"query":`, wantCode: http.StatusBadRequest, wantError: "INVALID_BODY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dash := &fakeDashboard{}
			h := NewHandler(dash, nil, zap.NewNop(), 1, 100)

			req := withRequestContext(httptest.NewRequest("PUT", "/dashboard/location", strings.NewReader(tt.body)), zap.NewNop())
			w := httptest.NewRecorder()
			newTestRouter(h).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantError != "" {
				if code := decodeErrorCode(t, w); code != tt.wantError {
					t.Errorf("error code = %q, want %q", code, tt.wantError)
				}
				if len(dash.queries) != 0 {
					t.Errorf("SetLocation called for invalid input")
				}
				return
			}

			var resp struct {
				Generation uint64 `json:"generation"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Generation != 1 {
				t.Errorf("generation = %d, want 1", resp.Generation)
			}
			got := dash.lastQuery()
			if got.Text != tt.wantQuery.Text {
				t.Errorf("query text = %q, want %q", got.Text, tt.wantQuery.Text)
			}
			if (got.Coordinates == nil) != (tt.wantQuery.Coordinates == nil) ||
				(got.Coordinates != nil && *got.Coordinates != *tt.wantQuery.Coordinates) {
				t.Errorf("query coordinates = %+v, want %+v", got.Coordinates, tt.wantQuery.Coordinates)
			}
		})
	}
}

func TestHandler_GetWeather_ByName(t *testing.T) {
	resetSignals()
	var gotQuery models.LocationQuery
	dash := &fakeDashboard{run: func(_ context.Context, q models.LocationQuery) models.Snapshot {
		gotQuery = q
		return defaultSnapshot(q)
	}}
	h := NewHandler(dash, nil, zap.NewNop(), 0, 0)

	req := withRequestContext(httptest.NewRequest("GET", "/weather/Tampa", nil), zap.NewNop())
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotQuery.Text != "Tampa" {
		t.Errorf("query = %+v, want text Tampa", gotQuery)
	}
	var snap models.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Forecast.Status != models.StatusSuccess || len(snap.Forecast.Value) != 1 {
		t.Errorf("forecast = %+v", snap.Forecast)
	}
	if errs, total := degraded.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1)", errs, total)
	}
}

func TestHandler_GetWeather_ByCoordinates(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantError string
	}{
		{name: "valid", target: "/weather?lat=27.7704&lon=-82.6695", wantCode: http.StatusOK},
		{name: "missing lon", target: "/weather?lat=27.7704", wantCode: http.StatusBadRequest, wantError: "INVALID_COORDINATES"},
		{name: "not a number", target: "/weather?lat=north&lon=1", wantCode: http.StatusBadRequest, wantError: "INVALID_COORDINATES"},
		{name: "out of range", target: "/weather?lat=0&lon=181", wantCode: http.StatusBadRequest, wantError: "INVALID_COORDINATES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetSignals()
			h := NewHandler(&fakeDashboard{}, nil, zap.NewNop(), 0, 0)
			req := withRequestContext(httptest.NewRequest("GET", tt.target, nil), zap.NewNop())
			w := httptest.NewRecorder()
			newTestRouter(h).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantError != "" {
				if code := decodeErrorCode(t, w); code != tt.wantError {
					t.Errorf("error code = %q, want %q", code, tt.wantError)
				}
			}
		})
	}
}

func TestHandler_GetWeather_EmptyLocation(t *testing.T) {
	h := NewHandler(&fakeDashboard{}, nil, zap.NewNop(), 0, 0)
	req := withRequestContext(httptest.NewRequest("GET", "/weather/%20%20%20", nil), zap.NewNop())
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "INVALID_LOCATION" {
		t.Errorf("error code = %q, want INVALID_LOCATION", code)
	}
}

// TestHandler_GetWeather_PrimaryFailed verifies the one-shot endpoint maps a
// snapshot with both primary sources failed to 503 and logs the cause.
func TestHandler_GetWeather_PrimaryFailed(t *testing.T) {
	resetSignals()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	down := errors.New("open-meteo unreachable")
	dash := &fakeDashboard{run: func(_ context.Context, q models.LocationQuery) models.Snapshot {
		return models.Snapshot{
			Query:      q,
			Forecast:   models.Failed[models.DailyForecastSeries](down),
			AirQuality: models.Failed[models.AirQualitySnapshot](down),
			News:       models.Success([]models.NewsArticle{{Title: "still here"}}),
		}
	}}
	h := NewHandler(dash, nil, logger, 0, 0)

	req := withRequestContext(httptest.NewRequest("GET", "/weather/Tampa", nil), logger)
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "UPSTREAM_UNAVAILABLE" {
		t.Errorf("error code = %q, want UPSTREAM_UNAVAILABLE", code)
	}
	if errs, _ := degraded.ErrorRate(time.Minute); errs != 1 {
		t.Errorf("recorded errors = %d, want 1", errs)
	}
	entries := logs.FilterMessage("upstream error").All()
	if len(entries) != 1 {
		t.Fatalf("upstream error logs = %d, want 1", len(entries))
	}
	if !strings.Contains(entries[0].ContextMap()["error"].(string), "open-meteo unreachable") {
		t.Errorf("logged error = %v", entries[0].ContextMap()["error"])
	}
}

func TestHandler_GetWeather_OnePrimaryFailedIsOK(t *testing.T) {
	resetSignals()
	dash := &fakeDashboard{run: func(_ context.Context, q models.LocationQuery) models.Snapshot {
		return models.Snapshot{
			Forecast:   models.Failed[models.DailyForecastSeries](errors.New("down")),
			AirQuality: models.Success(models.AirQualitySnapshot{Level: models.LevelGood}),
		}
	}}
	h := NewHandler(dash, nil, zap.NewNop(), 0, 0)

	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, withRequestContext(httptest.NewRequest("GET", "/weather/Tampa", nil), zap.NewNop()))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when only one primary failed", w.Code)
	}
}

func TestHandler_GetHealth(t *testing.T) {
	resetSignals()
	h := NewHandler(&fakeDashboard{}, &HealthConfig{
		Breakers: map[string]BreakerState{
			models.SourceForecast: stubBreaker(circuitbreaker.StateClosed),
			models.SourceAlerts:   stubBreaker(circuitbreaker.StateOpen),
			models.SourceNews:     stubBreaker(circuitbreaker.StateHalfOpen),
		},
		CachePing: func() error { return errors.New("memcached down") },
	}, zap.NewNop(), 0, 0)

	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var health struct {
		Status  string            `json:"status"`
		Service string            `json:"service"`
		Checks  map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "healthy" || health.Service != "weather-dashboard" {
		t.Errorf("health = %+v", health)
	}
	want := map[string]string{
		models.SourceForecast: "healthy",
		models.SourceAlerts:   "unhealthy",
		models.SourceNews:     "recovering",
		"cache":               "unhealthy",
	}
	for k, v := range want {
		if health.Checks[k] != v {
			t.Errorf("checks[%s] = %q, want %q", k, health.Checks[k], v)
		}
	}
}

func TestHandler_ComputeHealthStatus(t *testing.T) {
	tests := []struct {
		name       string
		setup      func()
		cfg        *HealthConfig
		wantStatus string
		wantCode   int
	}{
		{
			name:       "no config",
			wantStatus: "healthy",
			wantCode:   http.StatusOK,
		},
		{
			name:       "shutting down",
			setup:      func() { lifecycle.SetShuttingDown(true) },
			wantStatus: "shutting-down",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name: "overloaded",
			setup: func() {
				for i := 0; i < 5; i++ {
					overload.RecordDenial()
				}
			},
			cfg:        &HealthConfig{RateLimitRPS: 1, OverloadWindow: time.Second, OverloadThresholdPct: 100},
			wantStatus: "overloaded",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name:       "idle after minimum lifespan",
			cfg:        &HealthConfig{IdleWindow: time.Minute, IdleThresholdReqPerMin: 5, MinimumLifespan: time.Millisecond, StartTime: time.Now().Add(-time.Hour)},
			wantStatus: "idle",
			wantCode:   http.StatusOK,
		},
		{
			name: "degraded by error rate",
			setup: func() {
				degraded.RecordError()
				degraded.RecordSuccess()
			},
			cfg:        &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50},
			wantStatus: "degraded",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name: "below error threshold",
			setup: func() {
				degraded.RecordError()
				degraded.RecordSuccess()
				degraded.RecordSuccess()
			},
			cfg:        &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50},
			wantStatus: "healthy",
			wantCode:   http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetSignals()
			defer resetSignals()
			if tt.setup != nil {
				tt.setup()
			}
			h := NewHandler(&fakeDashboard{}, tt.cfg, zap.NewNop(), 0, 0)
			got := h.computeHealthStatus()
			if got.status != tt.wantStatus || got.statusCode != tt.wantCode {
				t.Errorf("computeHealthStatus() = %s/%d, want %s/%d", got.status, got.statusCode, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	resetSignals()
	defer resetSignals()
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewHandler(&fakeDashboard{}, nil, zap.New(core), 0, 0)

	h.GetHealth(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	lifecycle.SetShuttingDown(true)
	h.GetHealth(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	if entries[0].ContextMap()["current_status"] != "shutting-down" {
		t.Errorf("current_status = %v", entries[0].ContextMap()["current_status"])
	}
	if entries[0].ContextMap()["reason"] != lifecycle.ReasonSignal {
		t.Errorf("reason = %v, want %s", entries[0].ContextMap()["reason"], lifecycle.ReasonSignal)
	}
}
